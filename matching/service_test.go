package matching

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
)

func newTestService(t *testing.T, mutate func(*Config), opts ...Option) *Service {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Workers = 4
	cfg.QueueSize = 2
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := NewService(cfg, zap.NewNop(), opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func sortResults(results []MatchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].FromID != results[j].FromID {
			return results[i].FromID < results[j].FromID
		}
		return results[i].Score > results[j].Score
	})
}

func TestMatchFindsBestCandidate(t *testing.T) {
	from := []Document{
		testDoc("f1", "acme corporation"),
		testDoc("f2", "globex"),
		testDoc("f3", "initech software"),
	}
	to := []Document{
		testDoc("t1", "acme corp"),
		testDoc("t2", "globex international"),
		testDoc("t3", "initech"),
		testDoc("t4", "umbrella"),
	}
	svc := newTestService(t, func(c *Config) { c.Mode = ModeToken })
	sink := &CollectSink{}
	stats, err := svc.Match(context.Background(), from, to, sink)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	got := sink.Results()
	sortResults(got)
	want := map[string]string{"f1": "t1", "f2": "t2", "f3": "t3"}
	if len(got) != len(want) {
		t.Fatalf("got %d results, want %d: %+v", len(got), len(want), got)
	}
	for _, r := range got {
		if want[r.FromID] != r.ToID {
			t.Errorf("%s matched %s, want %s", r.FromID, r.ToID, want[r.FromID])
		}
	}
	if stats.Processed != len(from) || stats.Matches != 3 || stats.Scored != int64(len(from)*len(to)) {
		t.Errorf("stats = %+v", stats)
	}
}

func TestMatchMinimumScoreIsStrict(t *testing.T) {
	from := testDoc("f", "jon smith")
	to := []Document{testDoc("t", "john smith"), testDoc("u", "mary jones")}
	m := mustMatcher(t, NGramMode(2), mustWeights(t, to...))
	exact := mustScore(t, m, from, to[0])

	for _, tc := range []struct {
		name     string
		minScore float64
		want     int
	}{
		{"equal score excluded", exact, 0},
		{"just below included", math.Nextafter(exact, 0), 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestService(t, func(c *Config) { c.MinScore = tc.minScore })
			sink := &CollectSink{}
			if _, err := svc.Match(context.Background(), []Document{from}, to, sink); err != nil {
				t.Fatalf("Match: %v", err)
			}
			var hits int
			for _, r := range sink.Results() {
				if r.ToID == "t" {
					hits++
				}
			}
			if hits != tc.want {
				t.Fatalf("results for t = %d, want %d", hits, tc.want)
			}
		})
	}
}

func TestMatchGroupPrefilter(t *testing.T) {
	from := []Document{
		testGroupDoc("f1", "acme corp", "us"),
		testGroupDoc("f2", "acme corp", "fr"),
	}
	to := []Document{
		testGroupDoc("t1", "acme corp", "us"),
		testGroupDoc("t2", "acme corp", "de"),
		testGroupDoc("t3", "globex", "de"),
	}
	svc := newTestService(t, func(c *Config) {
		c.GroupMatch = true
		c.NumResults = 5
	})
	sink := &CollectSink{}
	stats, err := svc.Match(context.Background(), from, to, sink)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	got := sink.Results()
	if len(got) != 1 || got[0].FromID != "f1" || got[0].ToID != "t1" || got[0].Group != "us" {
		t.Fatalf("results = %+v, want only f1 -> t1 in group us", got)
	}
	if stats.NoCandidates != 1 || stats.Processed != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestMatchKeepsTies(t *testing.T) {
	from := []Document{testDoc("f", "acme")}
	to := []Document{testDoc("a", "acme"), testDoc("b", "acme"), testDoc("c", "globex")}
	eps := 0.0
	svc := newTestService(t, func(c *Config) {
		c.Mode = ModeToken
		c.TiesWithin = &eps
	})
	sink := &CollectSink{}
	if _, err := svc.Match(context.Background(), from, to, sink); err != nil {
		t.Fatalf("Match: %v", err)
	}
	got := sink.Results()
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2 tied results: %+v", len(got), got)
	}
	if got[0].Score != got[1].Score {
		t.Errorf("tied scores differ: %v vs %v", got[0].Score, got[1].Score)
	}
}

func TestMatchBatchIsBestFirst(t *testing.T) {
	from := []Document{testDoc("f", "jonathan smith")}
	to := []Document{
		testDoc("1", "maria garcia"),
		testDoc("2", "jonathon smith"),
		testDoc("3", "jon smyth"),
	}
	svc := newTestService(t, func(c *Config) {
		c.Mode = ModeLevenshtein
		c.NumResults = 3
		c.MinScore = 0
	})
	sink := &CollectSink{}
	if _, err := svc.Match(context.Background(), from, to, sink); err != nil {
		t.Fatalf("Match: %v", err)
	}
	got := sink.Results()
	if len(got) < 2 || got[0].ToID != "2" {
		t.Fatalf("results = %+v, want jonathon smith first", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Fatalf("batch not best first: %+v", got)
		}
	}
}

type failingSink struct {
	err   error
	calls int
}

func (s *failingSink) WriteBatch(context.Context, []MatchResult) error {
	s.calls++
	return s.err
}

func (s *failingSink) Close() error { return nil }

func TestMatchSinkFailure(t *testing.T) {
	var from []Document
	for i := 0; i < 50; i++ {
		from = append(from, testDoc(string(rune('a'+i%26))+"x", "acme corp"))
	}
	to := []Document{testDoc("t", "acme corp"), testDoc("u", "globex")}
	diskFull := errors.New("disk full")
	sink := &failingSink{err: diskFull}
	svc := newTestService(t, nil)

	_, err := svc.Match(context.Background(), from, to, sink)
	if !errors.Is(err, ErrSinkFailed) {
		t.Fatalf("error = %v, want ErrSinkFailed", err)
	}
	if !errors.Is(err, diskFull) {
		t.Fatalf("error = %v, want it to wrap the sink error", err)
	}
	var sinkErr *SinkError
	if !errors.As(err, &sinkErr) || sinkErr.Batch != 1 {
		t.Fatalf("error = %#v, want *SinkError with batch of 1", err)
	}
	if sink.calls != 1 {
		t.Errorf("sink called %d times after failing, want 1", sink.calls)
	}
}

func TestMatchEmptyReference(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := svc.Match(context.Background(), []Document{testDoc("f", "acme")}, nil, &CollectSink{})
	if !errors.Is(err, ErrEmptyReference) {
		t.Fatalf("error = %v, want ErrEmptyReference", err)
	}
}

func TestMatchCanceled(t *testing.T) {
	svc := newTestService(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Match(ctx, []Document{testDoc("f", "acme")}, []Document{testDoc("t", "acme")}, &CollectSink{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestMatchReportsProgress(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []int
		total int
	)
	progress := func(done, n int) {
		mu.Lock()
		calls = append(calls, done)
		total = n
		mu.Unlock()
	}
	from := []Document{testDoc("1", "acme"), testDoc("2", "zzz"), testDoc("3", "globex")}
	to := []Document{testDoc("t", "acme"), testDoc("u", "globex")}
	svc := newTestService(t, nil, WithProgress(progress))
	if _, err := svc.Match(context.Background(), from, to, &CollectSink{}); err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(calls) != 3 || calls[2] != 3 || total != 3 {
		t.Fatalf("progress calls = %v (total %d), want 1..3 of 3", calls, total)
	}
}

func TestRunNormalizesNames(t *testing.T) {
	svc := newTestService(t, func(c *Config) { c.Mode = ModeToken })
	from := []Record{{ID: "1", Name: "  José  SMITH "}}
	to := []Record{{ID: "a", Name: "jose smith"}, {ID: "b", Name: "maria garcia"}}
	sink := &CollectSink{}
	if _, err := svc.Run(context.Background(), from, to, sink); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := sink.Results()
	if len(got) != 1 || got[0].ToID != "a" || !approxEqual(got[0].Score, 1, 1e-9) {
		t.Fatalf("results = %+v, want a single perfect match on a", got)
	}
	if got[0].FromName != "  José  SMITH " {
		t.Errorf("FromName = %q, want the raw name", got[0].FromName)
	}
}

func TestRunCompletesInEveryMode(t *testing.T) {
	word := func(i int) string {
		return string([]byte{'a' + byte(i/26), 'a' + byte(i%26)})
	}
	var from, to []Record
	for i := 0; i < 30; i++ {
		name := "Acme" + word(i) + " " + word(i) + "Holdings"
		to = append(to, Record{ID: fmt.Sprint("t", i), Name: name})
		from = append(from, Record{ID: fmt.Sprint("f", i), Name: strings.ToUpper(name)})
	}
	for _, mode := range []ModeKind{ModeToken, ModeNGram, ModeLevenshtein, ModeDamerauLevenshtein} {
		t.Run(string(mode), func(t *testing.T) {
			svc := newTestService(t, func(c *Config) {
				c.Mode = mode
				c.Workers = 3
				c.QueueSize = 1
			})
			sink := &CollectSink{}
			stats, err := svc.Run(context.Background(), from, to, sink)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if stats.Processed != len(from) || stats.Matches != len(from) || sink.Batches() != len(from) {
				t.Fatalf("stats = %+v, batches = %d", stats, sink.Batches())
			}
			for _, r := range sink.Results() {
				if r.ToID != "t"+strings.TrimPrefix(r.FromID, "f") {
					t.Errorf("%s matched %s", r.FromID, r.ToID)
				}
			}
		})
	}
}

func TestPrepareCanceled(t *testing.T) {
	svc := newTestService(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Prepare(ctx, []Record{{ID: "1", Name: "acme"}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestPrepareKeepsOrder(t *testing.T) {
	svc := newTestService(t, nil)
	records := []Record{{ID: "1", Name: "b a a"}, {ID: "2", Name: "123"}, {ID: "3", Name: "c"}}
	docs, err := svc.Prepare(context.Background(), records)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(docs) != 3 || docs[0].Record.ID != "1" || docs[2].Record.ID != "3" {
		t.Fatalf("docs = %+v", docs)
	}
	if docs[0].Tokens["a"] != 2 || docs[0].Tokens["b"] != 1 {
		t.Errorf("tokens = %v", docs[0].Tokens)
	}
	if len(docs[1].Tokens) != 0 {
		t.Errorf("numeric name produced tokens %v", docs[1].Tokens)
	}
}

func TestNewServiceRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NGramSize = 1
	if _, err := NewService(cfg, nil); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("error = %v, want ErrInvalidWindow", err)
	}
	if _, err := NewService(Config{Mode: ModeNGram, NGramSize: 0}, nil); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("window 0: error = %v, want ErrInvalidWindow", err)
	}
}
