package resilience

import (
	"context"
	"math/rand"
	"sync"
	"time"

	llmerrors "github.com/blueberrycongee/llmgov/pkg/errors"
)

// RetryConfig configures the retry manager.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int `yaml:"max_retries"`
	// BaseBackoff is the wait before the first retry; it doubles per retry.
	BaseBackoff time.Duration `yaml:"base_backoff"`
	// MaxBackoff caps a single wait. Zero means uncapped.
	MaxBackoff time.Duration `yaml:"max_backoff"`
	// Jitter spreads each wait by ±Jitter of its value (0..1).
	Jitter float64 `yaml:"jitter"`
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  3,
		BaseBackoff: 200 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
		Jitter:      0.2,
	}
}

// AttemptFunc performs one attempt. attempt starts at 1.
type AttemptFunc func(ctx context.Context, attempt int) error

// RetryFunc observes a scheduled retry.
type RetryFunc func(attempt int, err error, wait time.Duration)

// RetryManager retries retryable failures with exponential backoff and
// jitter. It never starts an attempt, or sleeps, past the context deadline.
type RetryManager struct {
	config    RetryConfig
	retryable func(error) bool
	onRetry   RetryFunc

	randMu sync.Mutex
	rand   *rand.Rand
}

// NewRetryManager creates a retry manager that classifies errors with
// errors.IsRetryable.
func NewRetryManager(cfg RetryConfig) *RetryManager {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = DefaultRetryConfig().BaseBackoff
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	if cfg.Jitter > 1 {
		cfg.Jitter = 1
	}
	return &RetryManager{
		config:    cfg,
		retryable: llmerrors.IsRetryable,
		rand:      rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // jitter only
	}
}

// OnRetry sets a callback invoked before each backoff sleep.
func (m *RetryManager) OnRetry(fn RetryFunc) {
	m.onRetry = fn
}

// Do runs fn until it succeeds, fails with a non-retryable error, runs out of
// retries, or would cross the context deadline. It returns the number of
// attempts made and the last error.
func (m *RetryManager) Do(ctx context.Context, fn AttemptFunc) (int, error) {
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= m.config.MaxRetries+1; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return attempts, lastErr
			}
			return attempts, err
		}

		attempts++
		err := fn(ctx, attempt)
		if err == nil {
			return attempts, nil
		}
		lastErr = err

		if !m.retryable(err) || attempt > m.config.MaxRetries {
			return attempts, err
		}

		wait := m.Backoff(attempt)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= wait {
			return attempts, err
		}

		if m.onRetry != nil {
			m.onRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempts, lastErr
		case <-timer.C:
		}
	}

	return attempts, lastErr
}

// Backoff returns the wait before retry number retry (1-based):
// BaseBackoff * 2^(retry-1), spread by ±Jitter and capped at MaxBackoff.
func (m *RetryManager) Backoff(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	shift := retry - 1
	if shift > 30 {
		shift = 30
	}
	backoff := m.config.BaseBackoff * time.Duration(1<<shift)

	if m.config.Jitter > 0 {
		m.randMu.Lock()
		r := m.rand.Float64()
		m.randMu.Unlock()
		factor := 1 + m.config.Jitter*(2*r-1)
		backoff = time.Duration(float64(backoff) * factor)
	}

	if m.config.MaxBackoff > 0 && backoff > m.config.MaxBackoff {
		backoff = m.config.MaxBackoff
	}
	if backoff < 0 {
		backoff = 0
	}
	return backoff
}
