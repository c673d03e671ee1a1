package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	pcache "github.com/blueberrycongee/llmgov/pkg/cache"
)

// DualCacheConfig holds configuration for DualCache.
type DualCacheConfig struct {
	// LocalTTL caps how long the near tier keeps a copy.
	LocalTTL time.Duration `yaml:"local_ttl"`
	// RedisTTL applies to the far tier when Set is called without a TTL.
	RedisTTL time.Duration `yaml:"redis_ttl"`
}

// DefaultDualCacheConfig returns the configuration used when none is given.
func DefaultDualCacheConfig() DualCacheConfig {
	return DualCacheConfig{LocalTTL: 5 * time.Minute, RedisTTL: time.Hour}
}

// DualCache layers a process-local MemoryCache in front of a shared store.
// Reads that miss locally but hit the shared store are copied into the
// local tier. far may be nil, leaving a local-only store.
type DualCache struct {
	near *MemoryCache
	far  pcache.Cache
	cfg  DualCacheConfig

	nearHits  atomic.Int64
	farHits   atomic.Int64
	misses    atomic.Int64
	backfills atomic.Int64
}

var _ pcache.Cache = (*DualCache)(nil)

// NewDualCache creates a DualCache over local and redis.
func NewDualCache(local *MemoryCache, redis *RedisCache, cfg DualCacheConfig) *DualCache {
	def := DefaultDualCacheConfig()
	if cfg.LocalTTL <= 0 {
		cfg.LocalTTL = def.LocalTTL
	}
	if cfg.RedisTTL <= 0 {
		cfg.RedisTTL = def.RedisTTL
	}
	d := &DualCache{near: local, cfg: cfg}
	if redis != nil {
		d.far = redis
	}
	return d
}

// Get checks the local tier, then the shared one.
func (d *DualCache) Get(ctx context.Context, key string) ([]byte, error) {
	if val, _ := d.near.Get(ctx, key); val != nil {
		d.nearHits.Add(1)
		return val, nil
	}
	if d.far == nil {
		d.misses.Add(1)
		return nil, nil
	}

	val, err := d.far.Get(ctx, key)
	switch {
	case err != nil:
		return nil, err
	case val == nil:
		d.misses.Add(1)
		return nil, nil
	}
	d.farHits.Add(1)
	d.promote(ctx, key, val)
	return val, nil
}

func (d *DualCache) promote(ctx context.Context, key string, val []byte) {
	if err := d.near.Set(ctx, key, val, d.cfg.LocalTTL); err == nil {
		d.backfills.Add(1)
	}
}

// Set writes to the local tier with a TTL no longer than LocalTTL, then to the
// shared tier.
func (d *DualCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	nearTTL, farTTL := d.cfg.LocalTTL, d.cfg.RedisTTL
	if ttl > 0 {
		nearTTL = min(nearTTL, ttl)
		farTTL = ttl
	}
	if err := d.near.Set(ctx, key, value, nearTTL); err != nil {
		return err
	}
	if d.far == nil {
		return nil
	}
	return d.far.Set(ctx, key, value, farTTL)
}

// Delete removes key from both tiers.
func (d *DualCache) Delete(ctx context.Context, key string) error {
	nearErr := d.near.Delete(ctx, key)
	if d.far == nil {
		return nearErr
	}
	return errors.Join(nearErr, d.far.Delete(ctx, key))
}

// Ping reports the health of the shared tier; the local tier is always up.
func (d *DualCache) Ping(ctx context.Context) error {
	if d.far == nil {
		return d.near.Ping(ctx)
	}
	return d.far.Ping(ctx)
}

// Close closes both tiers.
func (d *DualCache) Close() error {
	err := d.near.Close()
	if d.far != nil {
		err = errors.Join(err, d.far.Close())
	}
	return err
}

// Stats folds both tiers into one view. Hits and misses are counted at this
// layer so a far hit is not also reported as a near miss.
func (d *DualCache) Stats() pcache.Stats {
	near := d.near.Stats()
	var far pcache.Stats
	if d.far != nil {
		far = d.far.Stats()
	}
	hits := d.nearHits.Load() + d.farHits.Load()
	misses := d.misses.Load()
	return pcache.Stats{
		Hits:    hits,
		Misses:  misses,
		Sets:    near.Sets + far.Sets,
		Deletes: near.Deletes + far.Deletes,
		Errors:  far.Errors,
		HitRate: hitRate(hits, misses),
	}
}

// DualCacheStats breaks hits down by tier.
type DualCacheStats struct {
	LocalHits int64   `json:"local_hits"`
	RedisHits int64   `json:"redis_hits"`
	Misses    int64   `json:"misses"`
	Backfills int64   `json:"backfills"`
	HitRate   float64 `json:"hit_rate"`
}

// DetailedStats returns per-tier counters.
func (d *DualCache) DetailedStats() DualCacheStats {
	s := DualCacheStats{
		LocalHits: d.nearHits.Load(),
		RedisHits: d.farHits.Load(),
		Misses:    d.misses.Load(),
		Backfills: d.backfills.Load(),
	}
	s.HitRate = hitRate(s.LocalHits+s.RedisHits, s.Misses)
	return s
}
