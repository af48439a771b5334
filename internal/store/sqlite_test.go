package store

import (
	"context"
	"path/filepath"
	"testing"

	"yashubustudio/namematch/matching"
)

func TestSQLiteSinkRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "matches.db")
	cfg := matching.DefaultConfig()
	cfg.GroupMatch = true

	sink, err := OpenSQLiteSink(ctx, path, RunInfo{FromSource: "from.csv", ToSource: "to.csv", Config: cfg})
	if err != nil {
		t.Fatalf("OpenSQLiteSink: %v", err)
	}
	if sink.RunID() == "" {
		t.Fatal("empty run id")
	}
	batches := [][]matching.MatchResult{
		{
			{FromID: "2", FromName: "globex", ToID: "g", ToName: "globex inc", Group: "de", Score: 0.8},
		},
		{
			{FromID: "1", FromName: "acme", ToID: "a", ToName: "acme", Group: "us", Score: 1},
			{FromID: "1", FromName: "acme", ToID: "b", ToName: "acme co", Group: "us", Score: 0.6},
		},
	}
	for _, b := range batches {
		if err := sink.WriteBatch(ctx, b); err != nil {
			t.Fatalf("WriteBatch: %v", err)
		}
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sink.WriteBatch(ctx, batches[0]); err == nil {
		t.Fatal("WriteBatch after Close succeeded")
	}

	run, results, err := LoadRun(ctx, path, sink.RunID())
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	if !run.Finished || run.Matches != 3 || run.Mode != "ngram(2)" {
		t.Errorf("run = %+v", run)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].ToID != "a" || results[1].ToID != "b" || results[2].FromID != "2" {
		t.Errorf("results not ordered by from id and position: %+v", results)
	}
	if results[2].Group != "de" || results[2].Score != 0.8 {
		t.Errorf("result = %+v", results[2])
	}
}

func TestSQLiteSinkSeparatesRuns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "matches.sqlite")
	var ids []string
	for i := 0; i < 2; i++ {
		sink, err := OpenSQLiteSink(ctx, path, RunInfo{Config: matching.DefaultConfig()})
		if err != nil {
			t.Fatalf("OpenSQLiteSink: %v", err)
		}
		err = sink.WriteBatch(ctx, []matching.MatchResult{{FromID: "1", FromName: "x", ToID: "y", ToName: "y", Score: 0.5}})
		if err != nil {
			t.Fatalf("WriteBatch: %v", err)
		}
		if err := sink.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		ids = append(ids, sink.RunID())
	}
	if ids[0] == ids[1] {
		t.Fatal("runs share an id")
	}
	for _, id := range ids {
		_, results, err := LoadRun(ctx, path, id)
		if err != nil {
			t.Fatalf("LoadRun: %v", err)
		}
		if len(results) != 1 {
			t.Errorf("run %s has %d results, want 1", id, len(results))
		}
	}
}

func TestLoadRunUnknown(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "matches.db")
	sink, err := OpenSQLiteSink(ctx, path, RunInfo{Config: matching.DefaultConfig()})
	if err != nil {
		t.Fatalf("OpenSQLiteSink: %v", err)
	}
	sink.Close()
	if _, _, err := LoadRun(ctx, path, "nope"); err == nil {
		t.Fatal("LoadRun of an unknown run succeeded")
	}
}

func TestListRuns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "matches.db")
	sink, err := OpenSQLiteSink(ctx, path, RunInfo{Config: matching.DefaultConfig()})
	if err != nil {
		t.Fatalf("OpenSQLiteSink: %v", err)
	}
	runs, err := ListRuns(ctx, path)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != sink.RunID() || runs[0].Finished {
		t.Fatalf("runs = %+v, want one unfinished run", runs)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
