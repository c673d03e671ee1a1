package llmgov

import (
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/blueberrycongee/llmgov/internal/cache"
	"github.com/blueberrycongee/llmgov/internal/normalize"
	"github.com/blueberrycongee/llmgov/internal/observability"
	"github.com/blueberrycongee/llmgov/internal/resilience"
	pcache "github.com/blueberrycongee/llmgov/pkg/cache"
)

// Config holds everything New needs besides the backend.
type Config struct {
	// Caching
	CacheEnabled bool
	CacheStore   pcache.Cache // nil selects an in-memory store
	CacheTTL     cache.TTLConfig
	CachePrefix  string

	// Admission, breaker and retry
	Resilience  resilience.ManagerConfig
	RedisClient redis.UniversalClient // enables the shared quota when set

	// Response normalization
	Normalizer normalize.Config

	// DefaultTimeout applies to requests without their own timeout.
	DefaultTimeout time.Duration

	// Observability
	Logger         *slog.Logger
	Redactor       *observability.Redactor
	Tracer         trace.Tracer
	MetricsEnabled bool

	// Clock overrides time.Now for cache entry age and breaker cooldowns.
	Clock func() time.Time

	// CloseHooks run after the cache store is closed.
	CloseHooks []func() error
}

// Option is a function that configures the Orchestrator.
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		CacheEnabled:   true,
		CacheTTL:       cache.DefaultTTLConfig(),
		CachePrefix:    "llmgov",
		Resilience:     resilience.DefaultManagerConfig(),
		DefaultTimeout: 30 * time.Second,
		Logger:         slog.Default(),
		Redactor:       observability.NewRedactor(),
		MetricsEnabled: true,
	}
}

// WithCacheStore sets the byte store behind the response cache.
// The Orchestrator closes the store on Close.
func WithCacheStore(store pcache.Cache) Option {
	return func(c *Config) {
		c.CacheEnabled = true
		c.CacheStore = store
	}
}

// WithCacheTTL sets the time-to-live per priority class.
func WithCacheTTL(ttl cache.TTLConfig) Option {
	return func(c *Config) {
		c.CacheTTL = ttl
	}
}

// WithCachePrefix sets the cache key prefix.
func WithCachePrefix(prefix string) Option {
	return func(c *Config) {
		c.CachePrefix = prefix
	}
}

// WithoutCache disables response caching.
func WithoutCache() Option {
	return func(c *Config) {
		c.CacheEnabled = false
		c.CacheStore = nil
	}
}

// WithResilience sets the breaker, limiter, rate gate and retry config.
func WithResilience(cfg resilience.ManagerConfig) Option {
	return func(c *Config) {
		c.Resilience = cfg
	}
}

// WithRedisClient enables the shared quota across orchestrator instances.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(c *Config) {
		c.RedisClient = client
	}
}

// WithNormalizer configures the response normalizer.
func WithNormalizer(cfg normalize.Config) Option {
	return func(c *Config) {
		c.Normalizer = cfg
	}
}

// WithDefaultTimeout sets the timeout for requests that carry none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.DefaultTimeout = d
	}
}

// WithLogger sets the logger for the orchestrator.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithRedactor sets the redactor applied to logged errors.
func WithRedactor(r *observability.Redactor) Option {
	return func(c *Config) {
		c.Redactor = r
	}
}

// WithTracer sets the OpenTelemetry tracer used for call spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Config) {
		c.Tracer = tracer
	}
}

// WithMetrics enables or disables Prometheus metrics.
func WithMetrics(enabled bool) Option {
	return func(c *Config) {
		c.MetricsEnabled = enabled
	}
}

// WithClock overrides the time source used for cache ages and breaker
// cooldowns.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		c.Clock = now
	}
}

// WithCloseHook registers fn to run when the Orchestrator is closed, for
// resources the caller hands over, such as the shared-quota Redis client.
func WithCloseHook(fn func() error) Option {
	return func(c *Config) {
		if fn != nil {
			c.CloseHooks = append(c.CloseHooks, fn)
		}
	}
}
