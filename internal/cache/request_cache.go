package cache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	pcache "github.com/blueberrycongee/llmgov/pkg/cache"
	"github.com/blueberrycongee/llmgov/pkg/types"
)

// RequestCache stores normalized answers keyed by fingerprint. An entry is
// served only while now - created_at < ttl(class at write time); reads never
// extend an entry's life.
type RequestCache struct {
	store  pcache.Cache
	ttl    TTLConfig
	now    func() time.Time
	logger *slog.Logger

	counters [len(priorityIndex)]priorityCounters
}

type priorityCounters struct {
	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
}

// priorityIndex bounds the counters array; indexes beyond it fold into the
// interactive slot.
var priorityIndex = [...]types.Priority{
	types.PriorityInteractive,
	types.PriorityBackground,
	types.PriorityConsciousnessCycle,
}

// RequestCacheOption configures a RequestCache.
type RequestCacheOption func(*RequestCache)

// WithClock overrides the time source used for entry age.
func WithClock(now func() time.Time) RequestCacheOption {
	return func(c *RequestCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger used for store errors.
func WithLogger(logger *slog.Logger) RequestCacheOption {
	return func(c *RequestCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewRequestCache wraps a byte store with priority-aware TTL semantics.
func NewRequestCache(store pcache.Cache, ttl TTLConfig, opts ...RequestCacheOption) *RequestCache {
	c := &RequestCache{
		store:  store,
		ttl:    ttl.withDefaults(),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured TTL for a priority class.
func (c *RequestCache) TTL(p types.Priority) time.Duration {
	return c.ttl.For(p)
}

// Get returns the cached text for key. The priority argument attributes the
// hit or miss; validity is judged by the class the entry was written with.
// Store errors are treated as misses.
func (c *RequestCache) Get(ctx context.Context, key string, priority types.Priority) (string, bool) {
	counters := c.countersFor(priority)

	data, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Debug("cache get failed", "error", err)
		counters.misses.Add(1)
		return "", false
	}
	if data == nil {
		counters.misses.Add(1)
		return "", false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Value == "" {
		counters.misses.Add(1)
		return "", false
	}

	if c.now().Sub(entry.CreatedAt) >= c.ttl.For(entry.TTLClass) {
		counters.misses.Add(1)
		return "", false
	}

	counters.hits.Add(1)
	return entry.Value, true
}

// Set overwrites the entry for key. Empty text is never stored. The store is
// given the class TTL so that physical expiry follows logical expiry.
func (c *RequestCache) Set(ctx context.Context, key, text string, priority types.Priority) {
	if text == "" {
		return
	}
	entry := Entry{
		Value:     text,
		CreatedAt: c.now(),
		TTLClass:  priority,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Debug("cache entry encode failed", "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl.For(priority)); err != nil {
		c.logger.Debug("cache set failed", "error", err)
		return
	}
	c.countersFor(priority).sets.Add(1)
}

// Invalidate removes the entry for key.
func (c *RequestCache) Invalidate(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}

// Ping checks the underlying store.
func (c *RequestCache) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

// Close releases the underlying store.
func (c *RequestCache) Close() error {
	return c.store.Close()
}

// PriorityStats holds hit/miss counters for one priority class.
type PriorityStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Sets    int64   `json:"sets"`
	HitRate float64 `json:"hit_rate"`
}

// RequestCacheStats is a point-in-time view of cache counters.
type RequestCacheStats struct {
	PerPriority map[string]PriorityStats `json:"per_priority"`
	Store       pcache.Stats             `json:"store"`
}

// Stats returns per-priority counters and the store's own statistics.
func (c *RequestCache) Stats() RequestCacheStats {
	out := RequestCacheStats{
		PerPriority: make(map[string]PriorityStats, len(priorityIndex)),
		Store:       c.store.Stats(),
	}
	for i, p := range priorityIndex {
		hits := c.counters[i].hits.Load()
		misses := c.counters[i].misses.Load()
		out.PerPriority[p.String()] = PriorityStats{
			Hits:    hits,
			Misses:  misses,
			Sets:    c.counters[i].sets.Load(),
			HitRate: hitRate(hits, misses),
		}
	}
	return out
}

func (c *RequestCache) countersFor(p types.Priority) *priorityCounters {
	for i, candidate := range priorityIndex {
		if candidate == p {
			return &c.counters[i]
		}
	}
	return &c.counters[0]
}
