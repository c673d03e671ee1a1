package cache

import (
	"fmt"
	"time"

	pcache "github.com/blueberrycongee/llmgov/pkg/cache"
)

// Config holds the complete cache configuration.
type Config struct {
	Type      pcache.Type       `yaml:"type"`      // Store type: local, gocache, redis, dual
	Enabled   bool              `yaml:"enabled"`   // Enable/disable caching
	Namespace string            `yaml:"namespace"` // Key namespace prefix
	TTL       TTLConfig         `yaml:"ttl"`       // TTL per priority class
	Memory    MemoryCacheConfig `yaml:"memory"`    // In-memory store config
	Redis     RedisCacheConfig  `yaml:"redis"`     // Redis store config
	Dual      DualCacheConfig   `yaml:"dual"`      // Dual store config
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Type:      pcache.TypeLocal,
		Enabled:   true,
		Namespace: "llmgov",
		TTL:       DefaultTTLConfig(),
		Memory:    DefaultMemoryCacheConfig(),
		Redis:     DefaultRedisCacheConfig(),
		Dual:      DefaultDualCacheConfig(),
	}
}

// longestTTL is used as the physical default for stores; logical expiry is
// enforced per entry by RequestCache.
func (c Config) longestTTL() time.Duration {
	ttl := c.TTL.withDefaults()
	longest := ttl.Interactive
	for _, d := range []time.Duration{ttl.Background, ttl.ConsciousnessCycle} {
		if d > longest {
			longest = d
		}
	}
	return longest
}

// NewStore creates a byte store based on configuration. It returns nil, nil
// when caching is disabled.
func NewStore(cfg Config) (pcache.Cache, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch cfg.Type {
	case pcache.TypeLocal, "":
		return NewMemoryCache(cfg.Memory), nil

	case pcache.TypeGoCache:
		return NewGoCache(cfg.longestTTL(), cfg.Memory.CleanupInterval), nil

	case pcache.TypeRedis:
		return NewRedisCache(cfg.redisConfig())

	case pcache.TypeDual:
		local := NewMemoryCache(cfg.Memory)

		redis, err := NewRedisCache(cfg.redisConfig())
		if err != nil {
			_ = local.Close()
			return nil, fmt.Errorf("create redis cache: %w", err)
		}

		dualCfg := cfg.Dual
		dualCfg.RedisTTL = cfg.longestTTL()
		return NewDualCache(local, redis, dualCfg), nil

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

func (c Config) redisConfig() RedisCacheConfig {
	redisCfg := c.Redis
	if c.Namespace != "" {
		redisCfg.Namespace = c.Namespace
	}
	redisCfg.DefaultTTL = c.longestTTL()
	return redisCfg
}

// NewRequestCacheFromConfig builds the store and wraps it in a RequestCache.
// It returns nil, nil when caching is disabled.
func NewRequestCacheFromConfig(cfg Config, opts ...RequestCacheOption) (*RequestCache, error) {
	store, err := NewStore(cfg)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, nil
	}
	return NewRequestCache(store, cfg.TTL, opts...), nil
}
