// Package store provides the shared key-value store that mirrors routes.
//
// Routes are stored as hashes keyed route:<host>:<destination>. Two
// implementations exist: Redis for production and Memory for tests and
// dry runs.
package store

import (
	"context"
	"time"
)

// Key types as reported by Type.
const (
	TypeNone   = "none"
	TypeHash   = "hash"
	TypeString = "string"
)

// Store is the subset of a Redis-like store the mirror needs.
type Store interface {
	// Keys returns every key starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Type returns the stored type of key, TypeNone if absent.
	Type(ctx context.Context, key string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Get returns the hash at key, or (nil, nil) if it does not exist.
	Get(ctx context.Context, key string) (map[string]string, error)
	// Set replaces key with a hash of fields that expires after ttl.
	// A ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// Batch starts a group of writes applied together by Exec.
	Batch() Batch
}

// Batch queues writes and applies them as one unit.
type Batch interface {
	Delete(keys ...string)
	Set(key string, fields map[string]string, ttl time.Duration)
	Exec(ctx context.Context) error
}
