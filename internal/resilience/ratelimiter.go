package resilience

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/blueberrycongee/llmgov/pkg/types"
)

// ErrRateLimited is returned when the rate gate has no token for a caller
// that may not wait.
var ErrRateLimited = errors.New("backend rate limit reached")

// RateGateConfig configures the backend token bucket.
type RateGateConfig struct {
	// RequestsPerSecond is the sustained rate. Zero disables the gate.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	// Burst is the bucket size (default: 1).
	Burst int `yaml:"burst"`
}

// RateGate paces backend calls with a token bucket. Interactive callers
// wait for a token within their deadline; other priorities fail fast.
// A nil *RateGate admits everything.
type RateGate struct {
	limiter  *rate.Limiter
	rejected atomic.Int64
}

// NewRateGate creates a gate, or returns nil when the config disables it.
func NewRateGate(cfg RateGateConfig) *RateGate {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &RateGate{limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)}
}

// Wait takes one token according to the priority's policy.
func (g *RateGate) Wait(ctx context.Context, priority types.Priority) error {
	if g == nil {
		return nil
	}
	if priority.Interactive() {
		if err := g.limiter.Wait(ctx); err != nil {
			g.rejected.Add(1)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// rate.Limiter refuses up front when the wait would outlast the deadline.
			return ErrRateLimited
		}
		return nil
	}
	if !g.limiter.Allow() {
		g.rejected.Add(1)
		return ErrRateLimited
	}
	return nil
}

// Rejected returns how many calls the gate turned away.
func (g *RateGate) Rejected() int64 {
	if g == nil {
		return 0
	}
	return g.rejected.Load()
}

// Limit returns the configured rate, or rate.Inf when the gate is disabled.
func (g *RateGate) Limit() rate.Limit {
	if g == nil {
		return rate.Inf
	}
	return g.limiter.Limit()
}
