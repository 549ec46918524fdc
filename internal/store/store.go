package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no value exists for the key.
var ErrNotFound = errors.New("store: key not found")

// Store is the key-value persistence capability the core writes through.
// Implementations are assumed durable and linearizable per key. Business
// logic never sees the engine behind it.
type Store interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, value []byte) error
	Delete(ctx context.Context, bucket, key string) error
	// Scan returns all entries in a bucket whose key starts with prefix.
	// An empty prefix returns the whole bucket.
	Scan(ctx context.Context, bucket, prefix string) (map[string][]byte, error)
}
