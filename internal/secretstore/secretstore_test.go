package secretstore

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/epam/syndicate-rule-engine-sub000/internal/objectstore"
)

func newTestStore(t *testing.T) *EnvelopeStore {
	t.Helper()
	objects := objectstore.NewFSStore(t.TempDir())
	key := bytes.Repeat([]byte{0x42}, 32)
	store, err := NewEnvelopeStore(objects, key)
	if err != nil {
		t.Fatalf("NewEnvelopeStore: %v", err)
	}
	return store
}

func TestPutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "jobs/job-1/ephemeral", []byte("super-secret")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := store.Get(ctx, "jobs/job-1/ephemeral")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "super-secret" {
		t.Fatalf("got %q, want %q", got, "super-secret")
	}
}

func TestGetMissingKey(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestTakeIsSingleUse(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "jobs/job-2/ephemeral", []byte("one-shot")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := store.Take(ctx, "jobs/job-2/ephemeral")
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if string(got) != "one-shot" {
		t.Fatalf("got %q", got)
	}
	if _, err := store.Get(ctx, "jobs/job-2/ephemeral"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected key removed after Take, err = %v", err)
	}
}

func TestCiphertextNotStoredAsPlaintext(t *testing.T) {
	dir := t.TempDir()
	objects := objectstore.NewFSStore(dir)
	key := bytes.Repeat([]byte{0x7}, 32)
	store, err := NewEnvelopeStore(objects, key)
	if err != nil {
		t.Fatalf("NewEnvelopeStore: %v", err)
	}
	if err := store.Put(context.Background(), "jobs/job-3/ephemeral", []byte("plaintext-marker")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	raw, err := objects.Get(context.Background(), "jobs/job-3/ephemeral")
	if err != nil {
		t.Fatalf("raw Get: %v", err)
	}
	if bytes.Contains(raw, []byte("plaintext-marker")) {
		t.Fatal("backing object store holds plaintext")
	}
}
