package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/blueberrycongee/llmgov/pkg/types"
)

// ManagerConfig contains configuration for the admission controls in front of
// one backend.
type ManagerConfig struct {
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	// Concurrency is the limiter capacity C.
	Concurrency int               `yaml:"concurrency"`
	RateGate    RateGateConfig    `yaml:"rate_gate"`
	SharedQuota SharedQuotaConfig `yaml:"shared_quota"`
	Retry       RetryConfig       `yaml:"retry"`
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		CircuitBreaker: DefaultCircuitBreakerConfig(),
		Concurrency:    8,
		Retry:          DefaultRetryConfig(),
	}
}

// Manager coordinates the resilience components for a backend. The breaker
// gates whole calls; every attempt inside a call passes through the limiter,
// the rate gate and the shared quota.
type Manager struct {
	breaker *CircuitBreaker
	limiter *ConcurrencyLimiter
	gate    *RateGate
	quota   *SharedQuota
	retry   *RetryManager
}

// NewManager creates the resilience components from cfg. client may be nil,
// in which case the shared quota is disabled.
func NewManager(name string, cfg ManagerConfig, client redis.UniversalClient, logger *slog.Logger) *Manager {
	return &Manager{
		breaker: NewCircuitBreaker(name, cfg.CircuitBreaker),
		limiter: NewConcurrencyLimiter(cfg.Concurrency),
		gate:    NewRateGate(cfg.RateGate),
		quota:   NewSharedQuota(client, cfg.SharedQuota, logger),
		retry:   NewRetryManager(cfg.Retry),
	}
}

// Breaker returns the circuit breaker.
func (m *Manager) Breaker() *CircuitBreaker { return m.breaker }

// Limiter returns the concurrency limiter.
func (m *Manager) Limiter() *ConcurrencyLimiter { return m.limiter }

// Retry returns the retry manager.
func (m *Manager) Retry() *RetryManager { return m.retry }

// Admission stages reported by AdmissionError.
const (
	StageLimiter  = "limiter"
	StageRateGate = "rate_limit"
	StageQuota    = "quota"
)

// AdmissionError reports which per-attempt admission stage turned a call
// away. It unwraps to the stage's own error.
type AdmissionError struct {
	Stage string
	Err   error
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("admission rejected at %s: %v", e.Stage, e.Err)
}

func (e *AdmissionError) Unwrap() error { return e.Err }

// AcquireSlot performs per-attempt admission. On success the caller holds a
// limiter slot and must call the returned release exactly once. Errors are
// *AdmissionError wrapping ErrLimiterFull, ErrRateLimited or the context's
// error.
func (m *Manager) AcquireSlot(ctx context.Context, priority types.Priority) (func(), error) {
	if err := m.limiter.Acquire(ctx, priority); err != nil {
		return nil, &AdmissionError{Stage: StageLimiter, Err: err}
	}
	var once sync.Once
	release := func() { once.Do(m.limiter.Release) }

	if err := m.gate.Wait(ctx, priority); err != nil {
		release()
		return nil, &AdmissionError{Stage: StageRateGate, Err: err}
	}
	if err := m.quota.Admit(ctx); err != nil {
		release()
		return nil, &AdmissionError{Stage: StageQuota, Err: err}
	}
	return release, nil
}

// ManagerSnapshot is a read-only view of the admission controls.
type ManagerSnapshot struct {
	Breaker          BreakerSnapshot `json:"breaker"`
	Limiter          LimiterSnapshot `json:"limiter"`
	RateGateRejected int64           `json:"rate_gate_rejected"`
}

// Snapshot returns the current state of every component.
func (m *Manager) Snapshot() ManagerSnapshot {
	return ManagerSnapshot{
		Breaker:          m.breaker.Snapshot(),
		Limiter:          m.limiter.Snapshot(),
		RateGateRejected: m.gate.Rejected(),
	}
}
