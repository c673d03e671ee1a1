// Package cache provides the public storage interface behind the request
// cache. Stores are byte-oriented; priority-aware TTL semantics live in the
// request cache built on top of them.
package cache

import (
	"context"
	"time"
)

// Type names a store implementation in configuration.
type Type string

const (
	TypeLocal   Type = "local"
	TypeGoCache Type = "gocache"
	TypeRedis   Type = "redis"
	TypeDual    Type = "dual"
)

// Valid reports whether t names a known store. The empty type is valid and
// means local.
func (t Type) Valid() bool {
	switch t {
	case "", TypeLocal, TypeGoCache, TypeRedis, TypeDual:
		return true
	}
	return false
}

// Shared reports whether the store is visible to other processes.
func (t Type) Shared() bool {
	return t == TypeRedis || t == TypeDual
}

// Cache is a byte store with per-entry expiry. A missing or expired key reads
// as nil with no error. Implementations are safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set replaces any existing value. A non-positive ttl selects the
	// store's default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
	Stats() Stats
}

// Stats are cumulative counters since the store was created.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Sets    int64   `json:"sets"`
	Deletes int64   `json:"deletes"`
	Errors  int64   `json:"errors"`
	HitRate float64 `json:"hit_rate"`
}
