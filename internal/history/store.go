// Package history persists execution records to SQLite for post-mortem
// tooling: one row per retry attempt and one row per terminal outcome.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// AttemptRecord is one retry attempt for a task.
type AttemptRecord struct {
	ID            int64
	TaskID        string
	Step          string
	Attempt       int
	Success       bool
	ErrorCode     string
	ErrorCategory string
	ErrorMessage  string
	Delay         time.Duration
	Timestamp     time.Time
}

// OutcomeRecord is the terminal result of one task execution.
type OutcomeRecord struct {
	ID           int64
	TaskID       string
	Step         string
	Success      bool
	Attempts     int
	Escalated    bool
	ErrorCode    string
	ErrorMessage string
	Duration     time.Duration
	Timestamp    time.Time
}

// Store manages the SQLite execution-history database.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (or creates) the history database at dbPath and applies
// the schema. Use ":memory:" for an ephemeral store in tests.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// busy_timeout must come first so the remaining pragmas wait on locks
	// instead of failing when another foreman process holds the database.
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// execWithRetry executes a SQL statement with exponential backoff on
// "database is locked" errors, which can occur during concurrent
// initialization of the same database file.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordAttempt inserts one attempt record.
func (s *Store) RecordAttempt(ctx context.Context, rec *AttemptRecord) error {
	if rec == nil {
		return fmt.Errorf("attempt record is nil")
	}
	query := `INSERT INTO attempts
		(task_id, step, attempt, success, error_code, error_category, error_message, delay_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := s.db.ExecContext(ctx, query,
		rec.TaskID, rec.Step, rec.Attempt, rec.Success,
		rec.ErrorCode, rec.ErrorCategory, rec.ErrorMessage,
		rec.Delay.Milliseconds(), rec.Timestamp)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	rec.ID, _ = res.LastInsertId()
	return nil
}

// RecordOutcome inserts one terminal outcome record.
func (s *Store) RecordOutcome(ctx context.Context, rec *OutcomeRecord) error {
	if rec == nil {
		return fmt.Errorf("outcome record is nil")
	}
	query := `INSERT INTO outcomes
		(task_id, step, success, attempts, escalated, error_code, error_message, duration_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := s.db.ExecContext(ctx, query,
		rec.TaskID, rec.Step, rec.Success, rec.Attempts, rec.Escalated,
		rec.ErrorCode, rec.ErrorMessage, rec.Duration.Milliseconds(), rec.Timestamp)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	rec.ID, _ = res.LastInsertId()
	return nil
}

// AttemptsForTask returns all attempt records for a task, oldest first.
func (s *Store) AttemptsForTask(ctx context.Context, taskID string) ([]*AttemptRecord, error) {
	query := `SELECT id, task_id, step, attempt, success, error_code, error_category, error_message, delay_ms, timestamp
		FROM attempts WHERE task_id = ? ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var records []*AttemptRecord
	for rows.Next() {
		var rec AttemptRecord
		var delayMs int64
		if err := rows.Scan(&rec.ID, &rec.TaskID, &rec.Step, &rec.Attempt, &rec.Success,
			&rec.ErrorCode, &rec.ErrorCategory, &rec.ErrorMessage, &delayMs, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		rec.Delay = time.Duration(delayMs) * time.Millisecond
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// OutcomesForTask returns all terminal outcomes recorded for a task,
// oldest first.
func (s *Store) OutcomesForTask(ctx context.Context, taskID string) ([]*OutcomeRecord, error) {
	query := `SELECT id, task_id, step, success, attempts, escalated, error_code, error_message, duration_ms, timestamp
		FROM outcomes WHERE task_id = ? ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var records []*OutcomeRecord
	for rows.Next() {
		var rec OutcomeRecord
		var durationMs int64
		if err := rows.Scan(&rec.ID, &rec.TaskID, &rec.Step, &rec.Success, &rec.Attempts,
			&rec.Escalated, &rec.ErrorCode, &rec.ErrorMessage, &durationMs, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		records = append(records, &rec)
	}
	return records, rows.Err()
}
