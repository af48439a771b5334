package matching

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Stats summarizes one Match run.
type Stats struct {
	// Processed counts from records whose batch reached the consumer.
	Processed int
	// Scored counts candidate pairs that produced a score.
	Scored int64
	// Matches counts results handed to the sink.
	Matches int
	// NoCandidates counts from records with nothing to compare against.
	NoCandidates int
	Elapsed      time.Duration
}

// ProgressFunc is called after each from record is consumed.
type ProgressFunc func(done, total int)

// Option customizes a Service.
type Option func(*Service)

// WithProgress registers a progress callback. It runs on the consumer
// goroutine and must not block for long.
func WithProgress(fn ProgressFunc) Option {
	return func(s *Service) { s.progress = fn }
}

// WithTokenizer replaces the tokenizer derived from the configuration.
func WithTokenizer(t Tokenizer) Option {
	return func(s *Service) { s.tokenizer = t }
}

// Service runs matching jobs with a fixed configuration.
type Service struct {
	cfg       Config
	tokenizer Tokenizer
	progress  ProgressFunc
	logger    *zap.Logger
}

// NewService validates cfg and prepares the tokenizer. A nil logger disables logging.
func NewService(cfg Config, logger *zap.Logger, opts ...Option) (*Service, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	if s.tokenizer == nil {
		tk, err := tokenizerFor(cfg)
		if err != nil {
			return nil, err
		}
		s.tokenizer = tk
	}
	return s, nil
}

func tokenizerFor(cfg Config) (Tokenizer, error) {
	if cfg.TokenizerPath != "" {
		return NewSubwordTokenizer(cfg.TokenizerPath, cfg.Text)
	}
	return NewNormalizer(cfg.Text), nil
}

// Config returns a copy of the service configuration.
func (s *Service) Config() Config {
	return s.cfg.Clone()
}

// Prepare tokenizes records in parallel. The output order follows the input.
func (s *Service) Prepare(ctx context.Context, records []Record) ([]Document, error) {
	cfg := s.Config()
	tk := s.tokenizer
	docs := make([]Document, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := range records {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tokens, err := tk.Tokenize(NormalizeText(records[i].Name))
			if err != nil {
				return fmt.Errorf("tokenize record %s: %w", records[i].ID, err)
			}
			docs[i] = Document{Record: records[i], Tokens: CountTokens(tokens)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// Run prepares both record sets and matches them.
func (s *Service) Run(ctx context.Context, from, to []Record, sink Sink) (Stats, error) {
	fromDocs, err := s.Prepare(ctx, from)
	if err != nil {
		return Stats{}, fmt.Errorf("prepare from records: %w", err)
	}
	toDocs, err := s.Prepare(ctx, to)
	if err != nil {
		return Stats{}, fmt.Errorf("prepare to records: %w", err)
	}
	return s.Match(ctx, fromDocs, toDocs, sink)
}

// Match scores every from document against its candidate to documents and
// streams the accepted results to sink, one batch per from document. Results
// within a batch are best first; batches arrive in completion order. Match
// does not close the sink.
func (s *Service) Match(ctx context.Context, from, to []Document, sink Sink) (Stats, error) {
	start := time.Now()
	if sink == nil {
		return Stats{}, fmt.Errorf("%w: sink is required", ErrInvalidConfig)
	}
	cfg := s.Config()
	mode, err := cfg.MatchMode()
	if err != nil {
		return Stats{}, err
	}
	counts := make([]TokenCounts, len(to))
	for i, d := range to {
		counts[i] = d.Tokens
	}
	weights, err := NewWeights(counts)
	if err != nil {
		return Stats{}, err
	}
	matcher, err := NewMatcher(mode, weights)
	if err != nil {
		return Stats{}, err
	}
	idx, err := BuildIndex(ctx, matcher, to, cfg.GroupMatch, cfg.Workers)
	if err != nil {
		return Stats{}, err
	}
	s.logger.Info("index built",
		zap.Stringer("mode", mode),
		zap.Int("to", idx.Size()),
		zap.Int("vocabulary", weights.Vocabulary()),
		zap.Bool("grouped", cfg.GroupMatch),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		stats        Stats
		scored       atomic.Int64
		noCandidates atomic.Int64
	)
	batches := make(chan []MatchResult, cfg.QueueSize)
	consumed := make(chan error, 1)
	go func() {
		consumed <- s.consume(ctx, cancel, sink, batches, len(from), &stats)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := range from {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			batch, ok := s.matchOne(gctx, matcher, idx, from[i], cfg, &scored)
			if !ok {
				noCandidates.Add(1)
			}
			select {
			case batches <- batch:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	werr := g.Wait()
	close(batches)
	cerr := <-consumed

	stats.Scored = scored.Load()
	stats.NoCandidates = int(noCandidates.Load())
	stats.Elapsed = time.Since(start)
	if cerr != nil {
		s.logger.Error("sink failed", zap.Error(cerr), zap.Int("processed", stats.Processed))
		return stats, cerr
	}
	if werr != nil {
		return stats, fmt.Errorf("match: %w", werr)
	}
	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("match: %w", err)
	}
	s.logger.Info("match complete",
		zap.Int("from", len(from)),
		zap.Int("matches", stats.Matches),
		zap.Int64("scored", stats.Scored),
		zap.Int("noCandidates", stats.NoCandidates),
		zap.Duration("elapsed", stats.Elapsed),
	)
	return stats, nil
}

// consume is the only goroutine that touches sink and the progress callback.
// After a write fails it cancels the run and discards the remaining batches.
func (s *Service) consume(ctx context.Context, cancel context.CancelFunc, sink Sink, batches <-chan []MatchResult, total int, stats *Stats) error {
	var failed error
	for batch := range batches {
		if failed != nil {
			continue
		}
		if len(batch) > 0 {
			if err := sink.WriteBatch(ctx, batch); err != nil {
				failed = &SinkError{Batch: len(batch), Err: err}
				cancel()
				continue
			}
		}
		stats.Processed++
		stats.Matches += len(batch)
		if s.progress != nil {
			s.progress(stats.Processed, total)
		}
	}
	return failed
}

// matchOne returns the selected results for one from document. The boolean
// is false when the document had no candidates at all.
func (s *Service) matchOne(ctx context.Context, m Matcher, idx ToIndex, doc Document, cfg Config, scored *atomic.Int64) ([]MatchResult, bool) {
	candidates, ok := idx.Candidates(doc.Record)
	if !ok || len(candidates) == 0 {
		return nil, false
	}
	fp := m.Profile(doc)
	sel := NewSelector(cfg.NumResults, cfg.TieRule(), func(r MatchResult) float64 { return r.Score })
	var n int64
	for i, tp := range candidates {
		if i&1023 == 1023 && ctx.Err() != nil {
			break
		}
		score, ok := m.Score(fp, tp)
		if !ok {
			continue
		}
		n++
		if score <= cfg.MinScore {
			continue
		}
		to := tp.Record()
		res := MatchResult{
			FromID:   doc.Record.ID,
			FromName: doc.Record.Name,
			ToID:     to.ID,
			ToName:   to.Name,
			Score:    score,
		}
		if cfg.GroupMatch {
			res.Group = doc.Record.Group
		}
		sel.Push(res)
	}
	scored.Add(n)
	return sel.Drain(), true
}
