package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
// Use ":memory:" for a throwaway store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection: an in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		revision TEXT NOT NULL DEFAULT '',
		finished_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS step_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		build_id TEXT NOT NULL DEFAULT '',
		step TEXT NOT NULL,
		processed INTEGER NOT NULL,
		cached INTEGER NOT NULL,
		written INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		removed INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_step_runs_build ON step_runs(build_id);
	CREATE INDEX IF NOT EXISTS idx_builds_finished ON builds(finished_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// AppendBuild stores a finished build.
func (s *SQLiteStore) AppendBuild(ctx context.Context, b BuildRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO builds (id, mode, revision, finished_at, duration_ms, error) VALUES (?, ?, ?, ?, ?, ?)",
		b.ID, string(b.Mode), b.Revision, b.FinishedAt.UnixMilli(), b.Duration.Milliseconds(), b.Err,
	)
	if err != nil {
		return fmt.Errorf("insert build: %w", err)
	}
	return nil
}

// AppendStep stores a step run.
func (s *SQLiteStore) AppendStep(ctx context.Context, r StepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO step_runs (build_id, step, processed, cached, written, skipped, removed, finished_at, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.BuildID, r.Step, r.Report.Processed, r.Report.Cached, r.Report.Written, r.Report.Skipped, r.Report.Removed,
		r.FinishedAt.UnixMilli(), r.Duration.Milliseconds(), r.Err,
	)
	if err != nil {
		return fmt.Errorf("insert step run: %w", err)
	}
	return nil
}

// Recent returns up to limit builds, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]BuildRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, mode, revision, finished_at, duration_ms, error FROM builds ORDER BY finished_at DESC, rowid DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var builds []BuildRecord
	for rows.Next() {
		var (
			b                  BuildRecord
			mode               string
			finished, duration int64
		)
		if err := rows.Scan(&b.ID, &mode, &b.Revision, &finished, &duration, &b.Err); err != nil {
			return nil, fmt.Errorf("scan build: %w", err)
		}
		b.Mode = site.Mode(mode)
		b.FinishedAt = time.UnixMilli(finished)
		b.Duration = time.Duration(duration) * time.Millisecond
		builds = append(builds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate builds: %w", err)
	}
	return builds, nil
}

// Steps returns the step runs recorded for buildID.
func (s *SQLiteStore) Steps(ctx context.Context, buildID string) ([]StepRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, build_id, step, processed, cached, written, skipped, removed, finished_at, duration_ms, error
		FROM step_runs WHERE build_id = ? ORDER BY id`,
		buildID,
	)
	if err != nil {
		return nil, fmt.Errorf("query step runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var steps []StepRecord
	for rows.Next() {
		var (
			r                  StepRecord
			finished, duration int64
		)
		err := rows.Scan(&r.ID, &r.BuildID, &r.Step,
			&r.Report.Processed, &r.Report.Cached, &r.Report.Written, &r.Report.Skipped, &r.Report.Removed,
			&finished, &duration, &r.Err)
		if err != nil {
			return nil, fmt.Errorf("scan step run: %w", err)
		}
		r.Report.Step = r.Step
		r.FinishedAt = time.UnixMilli(finished)
		r.Duration = time.Duration(duration) * time.Millisecond
		steps = append(steps, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate step runs: %w", err)
	}
	return steps, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
