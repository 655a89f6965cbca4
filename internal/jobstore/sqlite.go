package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
)

// SQLiteStore is the single-node / test-mode JobStore backend: a
// pure-Go sqlite driver needs no cgo toolchain, making it the natural
// default for local runs and CI.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("jobstore: open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(createJobsTableSQL); err != nil {
		return nil, fmt.Errorf("jobstore: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// DB exposes the underlying handle so the lock store can share the same
// database file.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

const createJobsTableSQL = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	document TEXT NOT NULL
)`

func (s *SQLiteStore) Create(ctx context.Context, job *model.Job) error {
	doc, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("jobstore: marshal job %s: %w", job.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, status, reason, document) VALUES (?, ?, ?, ?)`,
		job.ID, string(job.Status), string(job.Reason), string(doc))
	if err != nil {
		return fmt.Errorf("jobstore: create job %s: %w", job.ID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, jobID string, status model.JobStatus, reason model.FailureReason) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, reason = ? WHERE id = ?`,
		string(status), string(reason), jobID)
	if err != nil {
		return fmt.Errorf("jobstore: update job %s: %w", jobID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("jobstore: job %s not found", jobID)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, jobID string) (*model.Job, error) {
	var status, reason, doc string
	err := s.db.QueryRowContext(ctx, `SELECT status, reason, document FROM jobs WHERE id = ?`, jobID).Scan(&status, &reason, &doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("jobstore: job %s not found", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("jobstore: get job %s: %w", jobID, err)
	}
	var job model.Job
	if err := json.Unmarshal([]byte(doc), &job); err != nil {
		return nil, fmt.Errorf("jobstore: parse job %s: %w", jobID, err)
	}
	// status/reason columns are the write path's source of truth;
	// UpdateStatus only touches them, not the original document.
	job.Status = model.JobStatus(status)
	job.Reason = model.FailureReason(reason)
	return &job, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
