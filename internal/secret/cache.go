package secret

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

const defaultSecretTTL = 5 * time.Minute

// CachedProvider memoizes another Provider's answers for a TTL. When a refresh
// fails after the TTL has lapsed, the last value fetched successfully is
// served instead, so a brief secret-store outage does not break a reload.
type CachedProvider struct {
	inner     Provider
	fresh     *cache.Cache
	lastKnown *cache.Cache
}

// NewCachedProvider wraps inner. A non-positive ttl means five minutes.
func NewCachedProvider(inner Provider, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = defaultSecretTTL
	}
	return &CachedProvider{
		inner:     inner,
		fresh:     cache.New(ttl, 2*ttl),
		lastKnown: cache.New(cache.NoExpiration, 0),
	}
}

// Get returns the value for path. Lookup errors are never cached.
func (p *CachedProvider) Get(ctx context.Context, path string) (string, error) {
	if v, ok := lookup(p.fresh, path); ok {
		return v, nil
	}

	v, err := p.inner.Get(ctx, path)
	if err != nil {
		if stale, ok := lookup(p.lastKnown, path); ok {
			return stale, nil
		}
		return "", err
	}
	p.fresh.SetDefault(path, v)
	p.lastKnown.SetDefault(path, v)
	return v, nil
}

// Invalidate forgets everything cached for path, including the last known value.
func (p *CachedProvider) Invalidate(path string) {
	p.fresh.Delete(path)
	p.lastKnown.Delete(path)
}

// Close drops cached values and closes the wrapped provider.
func (p *CachedProvider) Close() error {
	p.fresh.Flush()
	p.lastKnown.Flush()
	return p.inner.Close()
}

func lookup(c *cache.Cache, key string) (string, bool) {
	v, ok := c.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
