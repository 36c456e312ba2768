package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("training run not found")

// SQLiteStorage implements RunLog using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and
// initializes the schema. Parent directories are created if they do not
// exist. ":memory:" opens a private in-memory database.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dbPath != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps a :memory: database shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS training_runs (
		id TEXT PRIMARY KEY,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		reason TEXT NOT NULL,
		row_count INTEGER NOT NULL DEFAULT 0,
		dataset_version INTEGER NOT NULL DEFAULT 0,
		bundle_id TEXT,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_training_runs_started_at ON training_runs(started_at);
	`
	_, err := db.Exec(schema)
	return err
}

// StartRun inserts a run. An empty ID is filled with a new UUID and a zero
// StartedAt with the current time.
func (s *SQLiteStorage) StartRun(ctx context.Context, run *TrainingRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO training_runs (id, started_at, reason, row_count, dataset_version)
		 VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt, run.Trigger, run.Rows, run.DatasetVersion,
	)
	return err
}

// FinishRun stores the outcome of a run. A zero FinishedAt is set to now.
func (s *SQLiteStorage) FinishRun(ctx context.Context, run *TrainingRun) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE training_runs SET finished_at = ?, row_count = ?, dataset_version = ?, bundle_id = ?, error = ?
		 WHERE id = ?`,
		run.FinishedAt, run.Rows, run.DatasetVersion, nullString(run.BundleID), nullString(run.Error), run.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}
	return nil
}

const runColumns = `id, started_at, finished_at, reason, row_count, dataset_version, bundle_id, error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (TrainingRun, error) {
	var run TrainingRun
	var finished sql.NullTime
	var bundleID, errText sql.NullString
	if err := row.Scan(&run.ID, &run.StartedAt, &finished, &run.Trigger, &run.Rows,
		&run.DatasetVersion, &bundleID, &errText); err != nil {
		return run, err
	}
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	run.BundleID = bundleID.String
	run.Error = errText.String
	return run, nil
}

// GetRun returns a run by ID.
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*TrainingRun, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM training_runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// RecentRuns returns up to n runs ordered by start time, newest first.
func (s *SQLiteStorage) RecentRuns(ctx context.Context, n int) ([]TrainingRun, error) {
	if n <= 0 {
		n = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM training_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []TrainingRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CountRuns returns the number of runs and how many of them failed.
func (s *SQLiteStorage) CountRuns(ctx context.Context) (total, failed int64, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN error IS NOT NULL AND error != '' THEN 1 ELSE 0 END), 0)
		 FROM training_runs`).Scan(&total, &failed)
	return total, failed, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
