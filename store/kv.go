// Package store provides the key-value backend used for directory caching,
// idempotency records and rate counters. The backend is injected everywhere it
// is used so tests can swap in the in-memory implementation.
package store

import (
	"context"
	"time"
)

// KV is the narrow key-value contract the transport layer needs. All entries
// are transient; the store is never the system of record.
type KV interface {
	// Get returns the value for key, or ("", false, nil) when absent.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX stores value under key only if absent, returning whether the
	// write happened.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Incr atomically increments the counter at key and returns the new
	// value. A fresh counter gets the given TTL.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// TTL returns the remaining lifetime of key, or 0 when absent.
	TTL(ctx context.Context, key string) (time.Duration, error)
}
