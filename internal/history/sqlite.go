// Package history archives completed run reports in a local SQLite database
// so the status API and later inspection can read past verdicts.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bgricker/matrixdrive/internal/report"
)

// ErrNotFound indicates that no run with the requested id exists.
var ErrNotFound = errors.New("run not found")

// Store persists run reports. Use ":memory:" for an ephemeral store.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// RunSummary is the list-view projection of an archived run.
type RunSummary struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	Verdict    report.Status `json:"verdict"`
	TotalJobs  int           `json:"total_jobs"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	DurationMS int64         `json:"duration_ms"`
}

// New opens (and initializes if needed) the store at path.
func New(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize history schema: %w", err)
	}
	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		verdict TEXT NOT NULL,
		total_jobs INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		report BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append stores a completed run report.
func (s *Store) Append(ctx context.Context, rep report.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO runs (id, started_at, verdict, total_jobs, failed, skipped, duration_ms, report) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		rep.RunID, rep.StartedAt.UnixMilli(), string(rep.Verdict),
		rep.Summary.TotalJobs, rep.Summary.Failed, rep.Summary.Skipped,
		rep.Summary.DurationMS, payload,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", rep.RunID, err)
	}
	return nil
}

// List returns the most recent runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, started_at, verdict, total_jobs, failed, skipped, duration_ms FROM runs ORDER BY started_at DESC, id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var run RunSummary
		var startedMilli int64
		var verdict string
		if err := rows.Scan(&run.ID, &startedMilli, &verdict, &run.TotalJobs, &run.Failed, &run.Skipped, &run.DurationMS); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt = time.UnixMilli(startedMilli).UTC()
		run.Verdict = report.Status(verdict)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get returns the full report for one run.
func (s *Store) Get(ctx context.Context, id string) (report.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanReport(s.db.QueryRowContext(ctx, "SELECT report FROM runs WHERE id = ?", id))
}

// Latest returns the most recently started run's report.
func (s *Store) Latest(ctx context.Context) (report.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanReport(s.db.QueryRowContext(ctx, "SELECT report FROM runs ORDER BY started_at DESC, id DESC LIMIT 1"))
}

func (s *Store) scanReport(row *sql.Row) (report.Report, error) {
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return report.Report{}, ErrNotFound
		}
		return report.Report{}, fmt.Errorf("scan report: %w", err)
	}
	var rep report.Report
	if err := json.Unmarshal(payload, &rep); err != nil {
		return report.Report{}, fmt.Errorf("unmarshal report: %w", err)
	}
	return rep, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
