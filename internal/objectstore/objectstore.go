// Package objectstore abstracts the blob backend behind the shard store,
// the ruleset content store, and the statistics artifact store. Three
// backends: local filesystem (tests and single-node deployments), AWS S3,
// and Google Cloud Storage.
package objectstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when key does not exist.
var ErrNotFound = errors.New("objectstore: key not found")

// ObjectStore is a flat key/value blob store keyed by opaque string paths.
// Keys use "/" as a path separator by convention but the store itself does
// not interpret them.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	// List returns all keys with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
