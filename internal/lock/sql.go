package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
)

// SQLiteStore is a durable Store backed by the same sqlite database the
// jobstore package writes to, for single-instance deployments that still
// want the lock table to survive a controller restart.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(createLocksTableSQL); err != nil {
		return nil, fmt.Errorf("lock: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

const createLocksTableSQL = `
CREATE TABLE IF NOT EXISTS tenant_locks (
	tenant_name TEXT PRIMARY KEY,
	job_id TEXT NOT NULL
)`

func (s *SQLiteStore) Acquire(ctx context.Context, l model.Lock) error {
	var existing string
	err := s.db.QueryRowContext(ctx, `SELECT job_id FROM tenant_locks WHERE tenant_name = ?`, l.TenantName).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err := s.db.ExecContext(ctx, `INSERT INTO tenant_locks (tenant_name, job_id) VALUES (?, ?)`, l.TenantName, l.JobID)
		if err != nil {
			return fmt.Errorf("lock: acquire %s: %w", l.TenantName, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("lock: acquire %s: %w", l.TenantName, err)
	case existing != l.JobID:
		return fmt.Errorf("%w: tenant %s held by job %s", ErrLockHeld, l.TenantName, existing)
	default:
		return nil
	}
}

func (s *SQLiteStore) Release(ctx context.Context, tenantName, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tenant_locks WHERE tenant_name = ? AND job_id = ?`, tenantName, jobID)
	if err != nil {
		return fmt.Errorf("lock: release %s: %w", tenantName, err)
	}
	return nil
}

// PostgresStore is the multi-instance durable Store backend, sharing a
// connection pool with jobstore's PostgresStore in a real deployment.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, createLocksTableSQLPostgres); err != nil {
		return nil, fmt.Errorf("lock: create schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

const createLocksTableSQLPostgres = `
CREATE TABLE IF NOT EXISTS tenant_locks (
	tenant_name TEXT PRIMARY KEY,
	job_id TEXT NOT NULL
)`

func (s *PostgresStore) Acquire(ctx context.Context, l model.Lock) error {
	var existing string
	err := s.pool.QueryRow(ctx, `SELECT job_id FROM tenant_locks WHERE tenant_name = $1`, l.TenantName).Scan(&existing)
	if errors.Is(err, pgx.ErrNoRows) {
		_, err := s.pool.Exec(ctx, `INSERT INTO tenant_locks (tenant_name, job_id) VALUES ($1, $2)`, l.TenantName, l.JobID)
		if err != nil {
			return fmt.Errorf("lock: acquire %s: %w", l.TenantName, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("lock: acquire %s: %w", l.TenantName, err)
	}
	if existing != l.JobID {
		return fmt.Errorf("%w: tenant %s held by job %s", ErrLockHeld, l.TenantName, existing)
	}
	return nil
}

func (s *PostgresStore) Release(ctx context.Context, tenantName, jobID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM tenant_locks WHERE tenant_name = $1 AND job_id = $2`, tenantName, jobID)
	if err != nil {
		return fmt.Errorf("lock: release %s: %w", tenantName, err)
	}
	return nil
}
