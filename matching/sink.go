package matching

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// Sink receives the accepted results of one from record at a time. Match
// calls WriteBatch from a single goroutine, in completion order.
type Sink interface {
	WriteBatch(ctx context.Context, batch []MatchResult) error
	Close() error
}

// CSVHeader is the column layout written by CSVSink.
var CSVHeader = []string{"from_name", "from_id", "to_name", "to_id", "score"}

// CSVSinkOptions configures a CSVSink.
type CSVSinkOptions struct {
	// Force truncates an existing file instead of failing.
	Force bool
	// Grouped appends a group column.
	Grouped bool
}

// CSVSink streams results as CSV rows.
type CSVSink struct {
	mu      sync.Mutex
	closer  io.Closer
	buf     *bufio.Writer
	w       *csv.Writer
	grouped bool
	rows    int
}

// CreateCSVSink creates path and writes the header. The file must not exist
// unless opts.Force is set.
func CreateCSVSink(path string, opts CSVSinkOptions) (*CSVSink, error) {
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if opts.Force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create output %s: %w", filepath.Base(path), err)
	}
	s, err := newCSVSink(f, f, opts.Grouped)
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// NewCSVSink writes CSV to w. Close flushes but does not close w.
func NewCSVSink(w io.Writer, grouped bool) (*CSVSink, error) {
	return newCSVSink(w, nil, grouped)
}

func newCSVSink(w io.Writer, closer io.Closer, grouped bool) (*CSVSink, error) {
	buf := bufio.NewWriter(w)
	s := &CSVSink{closer: closer, buf: buf, w: csv.NewWriter(buf), grouped: grouped}
	header := CSVHeader
	if grouped {
		header = append(append([]string{}, CSVHeader...), "group")
	}
	if err := s.w.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return s, nil
}

// WriteBatch writes and flushes one row per result.
func (s *CSVSink) WriteBatch(_ context.Context, batch []MatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range batch {
		row := []string{r.FromName, r.FromID, r.ToName, r.ToID, strconv.FormatFloat(r.Score, 'f', -1, 64)}
		if s.grouped {
			row = append(row, r.Group)
		}
		if err := s.w.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
		s.rows++
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flush rows: %w", err)
	}
	return nil
}

// Rows returns the number of data rows written so far.
func (s *CSVSink) Rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

// Close flushes buffered rows and closes the underlying file, if any.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	err := s.w.Error()
	if ferr := s.buf.Flush(); err == nil {
		err = ferr
	}
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
		s.closer = nil
	}
	if err != nil {
		return fmt.Errorf("close csv sink: %w", err)
	}
	return nil
}

// CollectSink keeps every result in memory.
type CollectSink struct {
	mu      sync.Mutex
	results []MatchResult
	batches int
}

// WriteBatch appends the batch.
func (s *CollectSink) WriteBatch(_ context.Context, batch []MatchResult) error {
	s.mu.Lock()
	s.results = append(s.results, batch...)
	s.batches++
	s.mu.Unlock()
	return nil
}

// Close is a no-op.
func (s *CollectSink) Close() error { return nil }

// Results returns a copy of the collected results in arrival order.
func (s *CollectSink) Results() []MatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MatchResult, len(s.results))
	copy(out, s.results)
	return out
}

// Batches returns how many non-empty batches were received.
func (s *CollectSink) Batches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches
}

type multiSink []Sink

// MultiSink fans every batch out to each sink in order. The first failure
// stops the batch.
func MultiSink(sinks ...Sink) Sink {
	return multiSink(sinks)
}

func (m multiSink) WriteBatch(ctx context.Context, batch []MatchResult) error {
	for _, s := range m {
		if err := s.WriteBatch(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and returns the first error.
func (m multiSink) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
