package cache

import (
	"context"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	pcache "github.com/blueberrycongee/llmgov/pkg/cache"
)

// GoCache is an unbounded in-memory store backed by patrickmn/go-cache.
// It suits small deployments where size-based eviction is not needed.
type GoCache struct {
	cache *gocache.Cache

	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
}

// NewGoCache creates a go-cache backed store. defaultTTL applies when Set is
// called with a zero TTL; expired items are swept every cleanupInterval.
func NewGoCache(defaultTTL, cleanupInterval time.Duration) *GoCache {
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	if cleanupInterval <= 0 {
		cleanupInterval = defaultTTL * 2
	}
	return &GoCache{cache: gocache.New(defaultTTL, cleanupInterval)}
}

var _ pcache.Cache = (*GoCache)(nil)

// Get retrieves a value from the store.
func (c *GoCache) Get(_ context.Context, key string) ([]byte, error) {
	val, found := c.cache.Get(key)
	if !found {
		c.misses.Add(1)
		return nil, nil
	}
	b, ok := val.([]byte)
	if !ok {
		c.misses.Add(1)
		return nil, nil
	}
	c.hits.Add(1)
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// Set stores a copy of value.
func (c *GoCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)
	c.cache.Set(key, valueCopy, ttl)
	c.sets.Add(1)
	return nil
}

// Delete removes a key from the store.
func (c *GoCache) Delete(_ context.Context, key string) error {
	c.cache.Delete(key)
	c.deletes.Add(1)
	return nil
}

// Ping always returns nil.
func (c *GoCache) Ping(context.Context) error {
	return nil
}

// Close flushes the store.
func (c *GoCache) Close() error {
	c.cache.Flush()
	return nil
}

// Stats returns store statistics.
func (c *GoCache) Stats() pcache.Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	return pcache.Stats{
		Hits:    hits,
		Misses:  misses,
		Sets:    c.sets.Load(),
		Deletes: c.deletes.Load(),
		HitRate: hitRate(hits, misses),
	}
}

// Len returns the number of items held, including expired ones not yet swept.
func (c *GoCache) Len() int {
	return c.cache.ItemCount()
}
