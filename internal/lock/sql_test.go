package lock

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "locks.db"))
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	return store
}

func TestSQLiteAcquireAndRelease(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	if err := store.Acquire(ctx, model.Lock{TenantName: "acme", JobID: "job-1"}); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := store.Release(ctx, "acme", "job-1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := store.Acquire(ctx, model.Lock{TenantName: "acme", JobID: "job-2"}); err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
}

func TestSQLiteAcquireHeldByAnotherJobFails(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	if err := store.Acquire(ctx, model.Lock{TenantName: "acme", JobID: "job-1"}); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	err := store.Acquire(ctx, model.Lock{TenantName: "acme", JobID: "job-2"})
	if !errors.Is(err, ErrLockHeld) {
		t.Fatalf("Acquire = %v, want ErrLockHeld", err)
	}
}

func TestSQLiteAcquireSameJobIsIdempotent(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	l := model.Lock{TenantName: "acme", JobID: "job-1"}
	if err := store.Acquire(ctx, l); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := store.Acquire(ctx, l); err != nil {
		t.Fatalf("re-Acquire by same job should succeed: %v", err)
	}
}

func TestSQLiteReleaseWrongJobIsNoop(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	if err := store.Acquire(ctx, model.Lock{TenantName: "acme", JobID: "job-1"}); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := store.Release(ctx, "acme", "job-2"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	err := store.Acquire(ctx, model.Lock{TenantName: "acme", JobID: "job-3"})
	if !errors.Is(err, ErrLockHeld) {
		t.Fatalf("lock should still be held by job-1, got %v", err)
	}
}
