package cache

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"

	pcache "github.com/blueberrycongee/llmgov/pkg/cache"
)

// MemoryCacheConfig holds configuration for MemoryCache.
type MemoryCacheConfig struct {
	MaxSize         int           `yaml:"max_size"`
	DefaultTTL      time.Duration `yaml:"default_ttl"`
	MaxItemSize     int           `yaml:"max_item_size"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time `yaml:"-"`
}

const (
	defaultMemoryMaxSize     = 1000
	defaultMemoryTTL         = 10 * time.Minute
	defaultMemoryMaxItemSize = 1 << 20
	defaultCleanupInterval   = time.Minute
)

// DefaultMemoryCacheConfig returns the configuration used when none is given.
func DefaultMemoryCacheConfig() MemoryCacheConfig {
	return MemoryCacheConfig{
		MaxSize:         defaultMemoryMaxSize,
		DefaultTTL:      defaultMemoryTTL,
		MaxItemSize:     defaultMemoryMaxItemSize,
		CleanupInterval: defaultCleanupInterval,
	}
}

// memoryEntry is both the stored value and its slot in the expiry queue.
type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
	slot      int
}

// expiryQueue orders entries by expiresAt, soonest first.
type expiryQueue []*memoryEntry

func (q expiryQueue) Len() int           { return len(q) }
func (q expiryQueue) Less(i, j int) bool { return q[i].expiresAt.Before(q[j].expiresAt) }
func (q expiryQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].slot = i
	q[j].slot = j
}

func (q *expiryQueue) Push(x any) {
	e := x.(*memoryEntry)
	e.slot = len(*q)
	*q = append(*q, e)
}

func (q *expiryQueue) Pop() any {
	old := *q
	last := len(old) - 1
	e := old[last]
	old[last] = nil
	e.slot = -1
	*q = old[:last]
	return e
}

// MemoryCache is a bounded in-process store. Entries expire after their TTL;
// when full, the entry closest to expiry is evicted to make room.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	queue   expiryQueue

	maxSize     int
	maxItemSize int
	defaultTTL  time.Duration
	now         func() time.Time

	stop      chan struct{}
	closeOnce sync.Once

	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
}

var _ pcache.Cache = (*MemoryCache)(nil)

// NewMemoryCache creates a MemoryCache and starts its background sweeper.
// Zero config fields fall back to DefaultMemoryCacheConfig.
func NewMemoryCache(cfg MemoryCacheConfig) *MemoryCache {
	def := DefaultMemoryCacheConfig()
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = def.DefaultTTL
	}
	if cfg.MaxItemSize <= 0 {
		cfg.MaxItemSize = def.MaxItemSize
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	c := &MemoryCache{
		entries:     make(map[string]*memoryEntry),
		maxSize:     cfg.MaxSize,
		maxItemSize: cfg.MaxItemSize,
		defaultTTL:  cfg.DefaultTTL,
		now:         cfg.Now,
		stop:        make(chan struct{}),
	}
	go c.sweep(cfg.CleanupInterval)
	return c
}

func (c *MemoryCache) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *MemoryCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for len(c.queue) > 0 && !c.queue[0].expiresAt.After(now) {
		c.removeLocked(c.queue[0])
	}
}

// removeLocked drops e from both the map and the queue. c.mu must be held.
func (c *MemoryCache) removeLocked(e *memoryEntry) {
	if e.slot >= 0 {
		heap.Remove(&c.queue, e.slot)
	}
	delete(c.entries, e.key)
}

// Get returns a copy of the stored value, or nil when absent or expired.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	var out []byte
	live := ok && c.now().Before(e.expiresAt)
	if live {
		out = append([]byte(nil), e.value...)
	}
	c.mu.RUnlock()

	if live {
		c.hits.Add(1)
		return out, nil
	}
	c.misses.Add(1)
	if ok {
		c.mu.Lock()
		if cur, still := c.entries[key]; still && cur == e {
			c.removeLocked(e)
		}
		c.mu.Unlock()
	}
	return nil, nil
}

// Set stores value under key. Values larger than MaxItemSize are dropped
// without error. A non-positive ttl selects the default.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if len(value) > c.maxItemSize {
		return nil
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	stored := append([]byte(nil), value...)

	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)
	if e, ok := c.entries[key]; ok {
		e.value = stored
		e.expiresAt = expiresAt
		heap.Fix(&c.queue, e.slot)
	} else {
		for len(c.entries) >= c.maxSize && len(c.queue) > 0 {
			c.removeLocked(c.queue[0])
		}
		e := &memoryEntry{key: key, value: stored, expiresAt: expiresAt}
		c.entries[key] = e
		heap.Push(&c.queue, e)
	}
	c.sets.Add(1)
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.removeLocked(e)
		c.deletes.Add(1)
	}
	return nil
}

// Ping always succeeds.
func (c *MemoryCache) Ping(context.Context) error { return nil }

// Close stops the sweeper. It is safe to call more than once.
func (c *MemoryCache) Close() error {
	c.closeOnce.Do(func() { close(c.stop) })
	return nil
}

// Stats returns hit/miss counters.
func (c *MemoryCache) Stats() pcache.Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	return pcache.Stats{
		Hits:    hits,
		Misses:  misses,
		Sets:    c.sets.Load(),
		Deletes: c.deletes.Load(),
		HitRate: hitRate(hits, misses),
	}
}

// Len returns the number of entries held, including expired ones not yet swept.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Flush removes every entry.
func (c *MemoryCache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*memoryEntry)
	c.queue = nil
}

func hitRate(hits, misses int64) float64 {
	if total := hits + misses; total > 0 {
		return float64(hits) / float64(total)
	}
	return 0
}
