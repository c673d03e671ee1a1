package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pcache "github.com/blueberrycongee/llmgov/pkg/cache"
)

// RedisCacheConfig holds connection settings for the shared store. Exactly
// one topology is used: cluster when ClusterAddrs is set, sentinel failover
// when MasterName is set, otherwise a single node at Addr.
type RedisCacheConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TLS      bool   `yaml:"tls"`

	ClusterAddrs []string `yaml:"cluster_addrs"`

	MasterName    string   `yaml:"master_name"`
	SentinelAddrs []string `yaml:"sentinel_addrs"`

	Namespace    string        `yaml:"namespace"`
	DefaultTTL   time.Duration `yaml:"default_ttl"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
	MaxRetries   int           `yaml:"max_retries"`
}

// DefaultRedisCacheConfig returns a single local node with short timeouts.
func DefaultRedisCacheConfig() RedisCacheConfig {
	return RedisCacheConfig{
		Addr:         "localhost:6379",
		Namespace:    "llmgov",
		DefaultTTL:   time.Hour,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MaxRetries:   3,
	}
}

// NewRedisClient builds a client for cfg's topology without connecting. The
// shared quota reuses it so both talk to the same Redis.
func NewRedisClient(cfg RedisCacheConfig) goredis.UniversalClient {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	var tlsCfg *tls.Config
	if cfg.TLS {
		tlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	switch {
	case len(cfg.ClusterAddrs) > 0:
		return goredis.NewClusterClient(&goredis.ClusterOptions{
			Addrs:        cfg.ClusterAddrs,
			Username:     cfg.Username,
			Password:     cfg.Password,
			TLSConfig:    tlsCfg,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
			MaxRetries:   cfg.MaxRetries,
		})
	case cfg.MasterName != "":
		return goredis.NewFailoverClient(&goredis.FailoverOptions{
			MasterName:    cfg.MasterName,
			SentinelAddrs: cfg.SentinelAddrs,
			Username:      cfg.Username,
			Password:      cfg.Password,
			DB:            cfg.DB,
			TLSConfig:     tlsCfg,
			DialTimeout:   cfg.DialTimeout,
			ReadTimeout:   cfg.ReadTimeout,
			WriteTimeout:  cfg.WriteTimeout,
			PoolSize:      cfg.PoolSize,
			MaxRetries:    cfg.MaxRetries,
		})
	default:
		return goredis.NewClient(&goredis.Options{
			Addr:         cfg.Addr,
			Username:     cfg.Username,
			Password:     cfg.Password,
			DB:           cfg.DB,
			TLSConfig:    tlsCfg,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
			MaxRetries:   cfg.MaxRetries,
		})
	}
}

// NewRedisCache connects and pings within DialTimeout.
func NewRedisCache(cfg RedisCacheConfig) (*RedisCache, error) {
	client := NewRedisClient(cfg)

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisCacheFromClient(client, cfg.Namespace, cfg.DefaultTTL), nil
}

// RedisCache stores entries in Redis so several processes share answers.
// Keys are prefixed with "<namespace>:".
type RedisCache struct {
	client     goredis.UniversalClient
	prefix     string
	defaultTTL time.Duration

	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
	errs    atomic.Int64
}

// NewRedisCacheFromClient wraps client without pinging it.
func NewRedisCacheFromClient(client goredis.UniversalClient, namespace string, defaultTTL time.Duration) *RedisCache {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	c := &RedisCache{client: client, defaultTTL: defaultTTL}
	if namespace != "" {
		c.prefix = namespace + ":"
	}
	return c
}

var _ pcache.Cache = (*RedisCache)(nil)

// failed counts err and wraps it with op.
func (c *RedisCache) failed(op string, err error) error {
	c.errs.Add(1)
	return fmt.Errorf("redis %s: %w", op, err)
}

// Get returns the stored bytes, or nil when the key is absent.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	switch {
	case errors.Is(err, goredis.Nil):
		c.misses.Add(1)
		return nil, nil
	case err != nil:
		return nil, c.failed("get", err)
	}
	c.hits.Add(1)
	return val, nil
}

// Set writes value with ttl, or the default TTL when ttl is not positive.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return c.failed("set", err)
	}
	c.sets.Add(1)
	return nil
}

// Delete removes key. Only keys that existed are counted as deletes.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	n, err := c.client.Del(ctx, c.prefix+key).Result()
	if err != nil {
		return c.failed("del", err)
	}
	c.deletes.Add(n)
	return nil
}

// Ping checks connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Stats returns counters, including transport errors.
func (c *RedisCache) Stats() pcache.Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	return pcache.Stats{
		Hits:    hits,
		Misses:  misses,
		Sets:    c.sets.Load(),
		Deletes: c.deletes.Load(),
		Errors:  c.errs.Load(),
		HitRate: hitRate(hits, misses),
	}
}
