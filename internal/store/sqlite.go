// Package store persists match results to SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"yashubustudio/namematch/matching"
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	mode        TEXT NOT NULL,
	from_source TEXT,
	to_source   TEXT,
	config      TEXT,
	matches     INTEGER NOT NULL DEFAULT 0
)`, `
CREATE TABLE IF NOT EXISTS matches (
	run_id    TEXT NOT NULL REFERENCES runs(id),
	from_id   TEXT NOT NULL,
	from_name TEXT NOT NULL,
	to_id     TEXT NOT NULL,
	to_name   TEXT NOT NULL,
	grp       TEXT,
	score     REAL NOT NULL,
	position  INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_run_from ON matches(run_id, from_id)`,
}

// RunInfo describes the run being recorded.
type RunInfo struct {
	FromSource string
	ToSource   string
	Config     matching.Config
}

// SQLiteSink is a matching.Sink that stores every batch in one transaction.
// Several runs can share a database file; each gets its own run id.
type SQLiteSink struct {
	mu     sync.Mutex
	db     *sql.DB
	runID  string
	rows   int
	closed bool
}

// OpenSQLiteSink opens or creates the database at path and registers a new run.
func OpenSQLiteSink(ctx context.Context, path string, info RunInfo) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	cfgJSON, err := json.Marshal(info.Config)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("encode config: %w", err)
	}
	mode := string(info.Config.Mode)
	if m, err := info.Config.MatchMode(); err == nil {
		mode = m.String()
	}
	s := &SQLiteSink{db: db, runID: uuid.New().String()}
	_, err = db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, mode, from_source, to_source, config) VALUES (?, ?, ?, ?, ?, ?)`,
		s.runID, time.Now().UTC().Format(time.RFC3339Nano), mode, info.FromSource, info.ToSource, string(cfgJSON))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("register run: %w", err)
	}
	return s, nil
}

// RunID returns the identifier of the run recorded by this sink.
func (s *SQLiteSink) RunID() string {
	return s.runID
}

// WriteBatch inserts the batch atomically. Position is the 1-based index of
// each result within its batch.
func (s *SQLiteSink) WriteBatch(ctx context.Context, batch []matching.MatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("sqlite sink is closed")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO matches (run_id, from_id, from_name, to_id, to_name, grp, score, position) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for i, r := range batch {
		if _, err := stmt.ExecContext(ctx, s.runID, r.FromID, r.FromName, r.ToID, r.ToName, r.Group, r.Score, i+1); err != nil {
			return fmt.Errorf("insert match: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	s.rows += len(batch)
	return nil
}

// Close stamps the run with its finish time and match count and closes the database.
func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, err := s.db.Exec(`UPDATE runs SET finished_at = ?, matches = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), s.rows, s.runID)
	if cerr := s.db.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("close sqlite sink: %w", err)
	}
	return nil
}

// Run is a stored run summary.
type Run struct {
	ID       string
	Mode     string
	Matches  int
	Finished bool
}

// LoadRun reads a run and its results, ordered by from id and position.
func LoadRun(ctx context.Context, path, runID string) (Run, []matching.MatchResult, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return Run{}, nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	defer db.Close()

	var (
		run      Run
		finished sql.NullString
	)
	err = db.QueryRowContext(ctx, `SELECT id, mode, matches, finished_at FROM runs WHERE id = ?`, runID).
		Scan(&run.ID, &run.Mode, &run.Matches, &finished)
	if err != nil {
		return Run{}, nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	run.Finished = finished.Valid

	rows, err := db.QueryContext(ctx,
		`SELECT from_id, from_name, to_id, to_name, COALESCE(grp, ''), score FROM matches WHERE run_id = ? ORDER BY from_id, position`, runID)
	if err != nil {
		return Run{}, nil, fmt.Errorf("load matches: %w", err)
	}
	defer rows.Close()
	var out []matching.MatchResult
	for rows.Next() {
		var r matching.MatchResult
		if err := rows.Scan(&r.FromID, &r.FromName, &r.ToID, &r.ToName, &r.Group, &r.Score); err != nil {
			return Run{}, nil, fmt.Errorf("scan match: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return Run{}, nil, fmt.Errorf("load matches: %w", err)
	}
	return run, out, nil
}

// ListRuns returns every run in the database, newest first.
func ListRuns(ctx context.Context, path string) ([]Run, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	defer db.Close()
	rows, err := db.QueryContext(ctx, `SELECT id, mode, matches, finished_at FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var (
			run      Run
			finished sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.Mode, &run.Matches, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Finished = finished.Valid
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}
