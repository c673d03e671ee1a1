package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/llmgov/pkg/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRequestCache(t *testing.T, clock *fakeClock) *RequestCache {
	t.Helper()
	store := newTestMemoryCache(t, 100, time.Hour)
	return NewRequestCache(store, DefaultTTLConfig(), WithClock(clock.Now))
}

func TestRequestCache_TTLPerPriority(t *testing.T) {
	tests := []struct {
		priority types.Priority
		ttl      time.Duration
	}{
		{types.PriorityInteractive, 180 * time.Second},
		{types.PriorityBackground, 600 * time.Second},
		{types.PriorityConsciousnessCycle, 600 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.priority.String(), func(t *testing.T) {
			clock := newFakeClock()
			rc := newTestRequestCache(t, clock)
			ctx := context.Background()

			rc.Set(ctx, "key", "answer", tt.priority)

			clock.Advance(tt.ttl - time.Millisecond)
			got, ok := rc.Get(ctx, "key", tt.priority)
			require.True(t, ok)
			assert.Equal(t, "answer", got)

			clock.Advance(time.Millisecond)
			_, ok = rc.Get(ctx, "key", tt.priority)
			assert.False(t, ok, "entry at exactly ttl is expired")
		})
	}
}

func TestRequestCache_NoSlidingExpiry(t *testing.T) {
	clock := newFakeClock()
	rc := newTestRequestCache(t, clock)
	ctx := context.Background()

	rc.Set(ctx, "key", "answer", types.PriorityInteractive)
	for i := 0; i < 5; i++ {
		clock.Advance(30 * time.Second)
		_, ok := rc.Get(ctx, "key", types.PriorityInteractive)
		require.True(t, ok)
	}
	clock.Advance(30 * time.Second)
	_, ok := rc.Get(ctx, "key", types.PriorityInteractive)
	assert.False(t, ok)
}

func TestRequestCache_ValidityUsesWriteClass(t *testing.T) {
	clock := newFakeClock()
	rc := newTestRequestCache(t, clock)
	ctx := context.Background()

	rc.Set(ctx, "key", "answer", types.PriorityBackground)
	clock.Advance(300 * time.Second)

	got, ok := rc.Get(ctx, "key", types.PriorityInteractive)
	require.True(t, ok)
	assert.Equal(t, "answer", got)
}

func TestRequestCache_OverwriteResetsAge(t *testing.T) {
	clock := newFakeClock()
	rc := newTestRequestCache(t, clock)
	ctx := context.Background()

	rc.Set(ctx, "key", "first", types.PriorityInteractive)
	clock.Advance(170 * time.Second)
	rc.Set(ctx, "key", "second", types.PriorityInteractive)
	clock.Advance(20 * time.Second)

	got, ok := rc.Get(ctx, "key", types.PriorityInteractive)
	require.True(t, ok)
	assert.Equal(t, "second", got)
}

func TestRequestCache_EmptyValueNotStored(t *testing.T) {
	rc := newTestRequestCache(t, newFakeClock())
	ctx := context.Background()

	rc.Set(ctx, "key", "", types.PriorityInteractive)
	_, ok := rc.Get(ctx, "key", types.PriorityInteractive)
	assert.False(t, ok)
}

func TestRequestCache_Invalidate(t *testing.T) {
	rc := newTestRequestCache(t, newFakeClock())
	ctx := context.Background()

	rc.Set(ctx, "key", "answer", types.PriorityInteractive)
	require.NoError(t, rc.Invalidate(ctx, "key"))
	_, ok := rc.Get(ctx, "key", types.PriorityInteractive)
	assert.False(t, ok)
}

func TestRequestCache_CorruptEntryIsMiss(t *testing.T) {
	store := newTestMemoryCache(t, 10, time.Hour)
	rc := NewRequestCache(store, DefaultTTLConfig())
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "key", []byte("not json"), 0))
	_, ok := rc.Get(ctx, "key", types.PriorityInteractive)
	assert.False(t, ok)
}

func TestRequestCache_Stats(t *testing.T) {
	rc := newTestRequestCache(t, newFakeClock())
	ctx := context.Background()

	rc.Set(ctx, "a", "x", types.PriorityInteractive)
	rc.Get(ctx, "a", types.PriorityInteractive)
	rc.Get(ctx, "b", types.PriorityBackground)
	rc.Get(ctx, "c", types.PriorityBackground)

	stats := rc.Stats()
	assert.Equal(t, int64(1), stats.PerPriority["interactive"].Hits)
	assert.Equal(t, int64(1), stats.PerPriority["interactive"].Sets)
	assert.Equal(t, int64(2), stats.PerPriority["background"].Misses)
	assert.Equal(t, int64(0), stats.PerPriority["consciousness_cycle"].Hits)
	assert.Equal(t, int64(1), stats.Store.Sets)
}

func TestRequestCache_RedisStore(t *testing.T) {
	rcStore, mr := newTestRedisCache(t)
	clock := newFakeClock()
	rc := NewRequestCache(rcStore, DefaultTTLConfig(), WithClock(clock.Now))
	ctx := context.Background()

	rc.Set(ctx, "key", "answer", types.PriorityBackground)
	assert.Equal(t, 600*time.Second, mr.TTL("test:key"))

	got, ok := rc.Get(ctx, "key", types.PriorityBackground)
	require.True(t, ok)
	assert.Equal(t, "answer", got)

	clock.Advance(601 * time.Second)
	_, ok = rc.Get(ctx, "key", types.PriorityBackground)
	assert.False(t, ok, "logical expiry applies even while redis still holds the key")
}

func TestRequestCache_StoreErrorIsMiss(t *testing.T) {
	rcStore, mr := newTestRedisCache(t)
	rc := NewRequestCache(rcStore, DefaultTTLConfig())
	mr.Close()

	_, ok := rc.Get(context.Background(), "key", types.PriorityInteractive)
	assert.False(t, ok)
	rc.Set(context.Background(), "key", "v", types.PriorityInteractive)
	assert.Equal(t, int64(0), rc.Stats().PerPriority["interactive"].Sets)
}

func TestRequestCache_Concurrent(t *testing.T) {
	rc := newTestRequestCache(t, newFakeClock())
	ctx := context.Background()
	var wg sync.WaitGroup

	values := []string{"alpha", "beta", "gamma"}
	for i := 0; i < 50; i++ {
		wg.Add(2)
		v := values[i%len(values)]
		go func() {
			defer wg.Done()
			rc.Set(ctx, "shared", v, types.PriorityInteractive)
		}()
		go func() {
			defer wg.Done()
			if got, ok := rc.Get(ctx, "shared", types.PriorityInteractive); ok {
				assert.Contains(t, values, got)
			}
		}()
	}
	wg.Wait()
}

func TestTTLConfig_Defaults(t *testing.T) {
	cfg := TTLConfig{Background: time.Minute}.withDefaults()
	assert.Equal(t, 180*time.Second, cfg.Interactive)
	assert.Equal(t, time.Minute, cfg.ConsciousnessCycle, "consciousness cycle shares the background tier")
}
