package jobstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
)

// PostgresStore is the multi-instance production JobStore backend.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("jobstore: connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createJobsTableSQLPostgres); err != nil {
		return nil, fmt.Errorf("jobstore: create schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Pool exposes the underlying pool so the lock store can share the same
// connections.
func (s *PostgresStore) Pool() *pgxpool.Pool { return s.pool }

const createJobsTableSQLPostgres = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	document JSONB NOT NULL
)`

func (s *PostgresStore) Create(ctx context.Context, job *model.Job) error {
	doc, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("jobstore: marshal job %s: %w", job.ID, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO jobs (id, status, reason, document) VALUES ($1, $2, $3, $4)`,
		job.ID, string(job.Status), string(job.Reason), doc)
	if err != nil {
		return fmt.Errorf("jobstore: create job %s: %w", job.ID, err)
	}
	return nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, jobID string, status model.JobStatus, reason model.FailureReason) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, reason = $2 WHERE id = $3`,
		string(status), string(reason), jobID)
	if err != nil {
		return fmt.Errorf("jobstore: update job %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("jobstore: job %s not found", jobID)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, jobID string) (*model.Job, error) {
	var status, reason string
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT status, reason, document FROM jobs WHERE id = $1`, jobID).Scan(&status, &reason, &doc)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("jobstore: job %s not found", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("jobstore: get job %s: %w", jobID, err)
	}
	var job model.Job
	if err := json.Unmarshal(doc, &job); err != nil {
		return nil, fmt.Errorf("jobstore: parse job %s: %w", jobID, err)
	}
	job.Status = model.JobStatus(status)
	job.Reason = model.FailureReason(reason)
	return &job, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
