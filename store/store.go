// Package store persists ranking runs in a local SQLite database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aluiziolira/go-wb-ranker/models"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	target_id   TEXT NOT NULL,
	target_name TEXT NOT NULL DEFAULT '',
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	total       INTEGER NOT NULL,
	found       INTEGER NOT NULL,
	not_found   INTEGER NOT NULL,
	errors      INTEGER NOT NULL,
	filtered    INTEGER NOT NULL,
	requests    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS outcomes (
	run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	row_index       INTEGER NOT NULL,
	keyword         TEXT NOT NULL,
	frequency       REAL,
	status          TEXT NOT NULL,
	position        INTEGER,
	price           REAL,
	pages_scanned   INTEGER NOT NULL,
	elapsed_seconds REAL NOT NULL,
	error_detail    TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, row_index)
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// Run is a stored run header.
type Run struct {
	ID         string
	TargetID   string
	TargetName string
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Found      int
	NotFound   int
	Errors     int
	Filtered   int
	Requests   int64
}

// Store is a run history database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveReport stores the run header and all outcomes in one transaction.
func (s *Store) SaveReport(ctx context.Context, report models.Report) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	summary := report.Summary()
	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(id, target_id, target_name, started_at, finished_at, total, found, not_found, errors, filtered, requests)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, report.Target.ID, report.Target.Name,
		report.StartedAt.UTC().Format(time.RFC3339Nano), report.FinishedAt.UTC().Format(time.RFC3339Nano),
		summary.Total, summary.Found, summary.NotFound, summary.Errors, report.Filtered, report.Requests,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", report.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO outcomes
		(run_id, row_index, keyword, frequency, status, position, price, pages_scanned, elapsed_seconds, error_detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare outcome insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range report.Outcomes {
		_, err = stmt.ExecContext(ctx,
			report.RunID, o.Task.RowIndex, o.Task.Keyword, nullFloat(o.Task.Frequency), string(o.Status),
			nullInt(o.Position), nullFloat(o.Price), o.PagesScanned, o.ElapsedSeconds, o.ErrorDetail,
		)
		if err != nil {
			return fmt.Errorf("insert outcome row %d: %w", o.Task.RowIndex, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, target_id, target_name, started_at, finished_at,
		total, found, not_found, errors, filtered, requests
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &r.TargetID, &r.TargetName, &started, &finished,
			&r.Total, &r.Found, &r.NotFound, &r.Errors, &r.Filtered, &r.Requests); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Outcomes returns the stored outcomes of one run ordered by row.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]models.KeywordOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT row_index, keyword, frequency, status, position, price,
		pages_scanned, elapsed_seconds, error_detail
		FROM outcomes WHERE run_id = ? ORDER BY row_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []models.KeywordOutcome
	for rows.Next() {
		var o models.KeywordOutcome
		var status string
		var freq, price sql.NullFloat64
		var pos sql.NullInt64
		if err := rows.Scan(&o.Task.RowIndex, &o.Task.Keyword, &freq, &status, &pos, &price,
			&o.PagesScanned, &o.ElapsedSeconds, &o.ErrorDetail); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Status = models.Status(status)
		if freq.Valid {
			o.Task.Frequency = &freq.Float64
		}
		if price.Valid {
			o.Price = &price.Float64
		}
		if pos.Valid {
			p := int(pos.Int64)
			o.Position = &p
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
