package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// SharedQuotaConfig configures a backend quota shared by every orchestrator
// process that talks to the same Redis.
type SharedQuotaConfig struct {
	// Key identifies the backend the quota protects.
	Key string `yaml:"key"`
	// Limit is the number of calls allowed per window. Zero disables it.
	Limit int64 `yaml:"limit"`
	// Window is the fixed window length (default: 1 minute).
	Window time.Duration `yaml:"window"`
	// FailOpen admits calls when Redis is unreachable.
	FailOpen bool `yaml:"fail_open"`
}

// QuotaResult describes one quota check.
type QuotaResult struct {
	Allowed   bool
	Current   int64
	Remaining int64
	ResetAt   int64 // unix seconds when the window resets
}

// SharedQuota is a fixed-window call counter kept in Redis. A Lua script
// starts or increments the window atomically so concurrent processes see a
// single count. A nil *SharedQuota admits everything.
type SharedQuota struct {
	client redis.UniversalClient
	script *redis.Script
	config SharedQuotaConfig
	logger *slog.Logger
	now    func() time.Time
}

const windowScript = `
local now = tonumber(ARGV[1])
local window_size = tonumber(ARGV[2])
local window_key = KEYS[1]
local counter_key = KEYS[2]

local window_start = redis.call('GET', window_key)
if not window_start or (now - tonumber(window_start)) >= window_size then
    redis.call('SET', window_key, tostring(now))
    redis.call('SET', counter_key, 1)
    redis.call('EXPIRE', window_key, window_size)
    redis.call('EXPIRE', counter_key, window_size)
    return {tostring(now), 1}
end

local counter = redis.call('INCR', counter_key)
if redis.call('TTL', counter_key) == -1 then
    redis.call('EXPIRE', counter_key, window_size)
end
return {window_start, counter}
`

// NewSharedQuota creates a quota, or returns nil when the config disables it.
func NewSharedQuota(client redis.UniversalClient, cfg SharedQuotaConfig, logger *slog.Logger) *SharedQuota {
	if client == nil || cfg.Limit <= 0 {
		return nil
	}
	if cfg.Window < time.Second {
		cfg.Window = time.Minute
	}
	if cfg.Key == "" {
		cfg.Key = "backend"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SharedQuota{
		client: client,
		script: redis.NewScript(windowScript),
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Check counts one call against the quota.
func (q *SharedQuota) Check(ctx context.Context) (QuotaResult, error) {
	windowSize := int64(q.config.Window / time.Second)
	now := q.now().Unix()

	// The hash tag keeps both keys on one cluster slot.
	base := fmt.Sprintf("{llmgov:quota:%s}", q.config.Key)
	keys := []string{base + ":window", base + ":count"}

	val, err := q.script.Run(ctx, q.client, keys, now, windowSize).Result()
	if err != nil {
		return QuotaResult{}, fmt.Errorf("shared quota: %w", err)
	}

	values, ok := val.([]interface{})
	if !ok || len(values) != 2 {
		return QuotaResult{}, fmt.Errorf("shared quota: unexpected script result %T", val)
	}

	windowStart := toInt64(values[0])
	current := toInt64(values[1])
	remaining := q.config.Limit - current
	if remaining < 0 {
		remaining = 0
	}

	return QuotaResult{
		Allowed:   current <= q.config.Limit,
		Current:   current,
		Remaining: remaining,
		ResetAt:   windowStart + windowSize,
	}, nil
}

// Admit returns nil when the call may proceed and ErrRateLimited otherwise.
// Redis errors admit the call only when FailOpen is set.
func (q *SharedQuota) Admit(ctx context.Context) error {
	if q == nil {
		return nil
	}
	res, err := q.Check(ctx)
	if err != nil {
		if q.config.FailOpen {
			q.logger.Warn("shared quota unavailable, admitting call", "error", err)
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	if !res.Allowed {
		return ErrRateLimited
	}
	return nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed
	case float64:
		return int64(n)
	default:
		parsed, _ := strconv.ParseInt(fmt.Sprint(v), 10, 64)
		return parsed
	}
}
