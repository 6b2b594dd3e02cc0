package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/faceswaplab/api/internal/model"
)

var (
	// ErrDuplicateID is returned when a reference id is created twice.
	ErrDuplicateID = errors.New("reference id already exists")
	// ErrNotFound is returned when no record exists for a reference id.
	ErrNotFound = errors.New("job not found")
	// ErrTerminalState is returned on an attempt to transition a job that
	// already reached completed or failed.
	ErrTerminalState = errors.New("job already in terminal state")
)

// Update carries the optional fields a status transition may set.
type Update struct {
	ResultPath   *string
	Error        *string
	ProcessingMs *int64
}

// JobStore persists job records in SQLite. Every mutation is committed before
// the call returns, so a crash mid-job leaves the last written status visible.
type JobStore struct {
	db *sql.DB
}

// Open opens (or creates) the job database at path and runs the migration.
func Open(path string) (*JobStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := ensureDir(dir); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	s := &JobStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *JobStore) migrate() error {
	q := `
	CREATE TABLE IF NOT EXISTS jobs (
		reference_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		created_at_ms INTEGER NOT NULL,
		updated_at_ms INTEGER NOT NULL,
		result_path TEXT,
		error TEXT,
		processing_ms INTEGER
	);
	`
	_, err := s.db.Exec(q)
	return err
}

// Close closes the underlying database.
func (s *JobStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Create inserts a new record with status pending and current timestamps.
func (s *JobStore) Create(ctx context.Context, referenceID string) error {
	now := nowMs()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs(reference_id,status,created_at_ms,updated_at_ms) VALUES(?,?,?,?)`,
		referenceID, model.JobStatusPending, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create %s: %w", referenceID, ErrDuplicateID)
		}
		return err
	}
	return nil
}

// SetStatus atomically updates status, updated_at_ms and the fields carried by
// upd. Transitions out of a terminal state are refused.
func (s *JobStore) SetStatus(ctx context.Context, referenceID string, status model.JobStatus, upd Update) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current model.JobStatus
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM jobs WHERE reference_id = ?`, referenceID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("set status %s: %w", referenceID, ErrNotFound)
		}
		return err
	}
	if current.IsTerminal() {
		return fmt.Errorf("set status %s -> %s: %w", referenceID, status, ErrTerminalState)
	}

	query := `UPDATE jobs SET status = ?, updated_at_ms = ?`
	args := []interface{}{status, nowMs()}
	if upd.ResultPath != nil {
		query += `, result_path = ?`
		args = append(args, *upd.ResultPath)
	}
	if upd.Error != nil {
		query += `, error = ?`
		args = append(args, *upd.Error)
	}
	if upd.ProcessingMs != nil {
		query += `, processing_ms = ?`
		args = append(args, *upd.ProcessingMs)
	}
	query += ` WHERE reference_id = ?`
	args = append(args, referenceID)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	return tx.Commit()
}

// Get returns the current record snapshot.
func (s *JobStore) Get(ctx context.Context, referenceID string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT reference_id,status,created_at_ms,updated_at_ms,result_path,error,processing_ms
		 FROM jobs WHERE reference_id = ?`, referenceID,
	)

	j := &model.Job{}
	var resultPath, errMsg sql.NullString
	var processingMs sql.NullInt64
	err := row.Scan(&j.ReferenceID, &j.Status, &j.CreatedAtMs, &j.UpdatedAtMs,
		&resultPath, &errMsg, &processingMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get %s: %w", referenceID, ErrNotFound)
		}
		return nil, err
	}
	if resultPath.Valid {
		j.ResultPath = &resultPath.String
	}
	if errMsg.Valid {
		j.Error = &errMsg.String
	}
	if processingMs.Valid {
		j.ProcessingMs = &processingMs.Int64
	}
	return j, nil
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint
	}
	return false
}
