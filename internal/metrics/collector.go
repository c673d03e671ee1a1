package metrics

import (
	"time"
)

// Breaker state gauge values.
const (
	BreakerStateClosed   = 0.0
	BreakerStateOpen     = 1.0
	BreakerStateHalfOpen = 2.0
)

// CallMetrics contains metrics for a single completed call.
type CallMetrics struct {
	Priority string
	// Source is cache, backend or fallback.
	Source string
	// Reason is set for fallbacks.
	Reason string
	// Strategy is the normalization strategy for backend answers.
	Strategy string

	StartTime time.Time
	EndTime   time.Time
}

// Collector records orchestrator metrics for one backend.
type Collector struct {
	backend  string
	latency  *LatencyTracker
	disabled bool
}

// NewCollector creates a collector. When enabled is false, only the
// in-process latency tracker is updated.
func NewCollector(backend string, enabled bool) *Collector {
	if backend == "" {
		backend = "default"
	}
	return &Collector{
		backend:  backend,
		latency:  NewLatencyTracker(),
		disabled: !enabled,
	}
}

// Latency returns the per-priority latency tracker.
func (c *Collector) Latency() *LatencyTracker {
	return c.latency
}

// RecordCall records all metrics for a completed call.
func (c *Collector) RecordCall(m *CallMetrics) {
	elapsed := m.EndTime.Sub(m.StartTime)
	c.latency.Observe(m.Priority, elapsed)
	if c.disabled {
		return
	}

	CallsTotal.WithLabelValues(m.Priority, m.Source).Inc()
	CallLatency.WithLabelValues(m.Priority, m.Source).Observe(elapsed.Seconds())

	if m.Reason != "" {
		FallbacksTotal.WithLabelValues(m.Priority, m.Reason).Inc()
	}
	if m.Strategy != "" {
		NormalizeStrategy.WithLabelValues(strategyLabel(m.Strategy)).Inc()
	}
}

// RecordCacheLookup records a cache hit or miss.
func (c *Collector) RecordCacheLookup(priority string, hit bool) {
	if c.disabled {
		return
	}
	if hit {
		CacheHits.WithLabelValues(priority).Inc()
	} else {
		CacheMisses.WithLabelValues(priority).Inc()
	}
}

// RecordAttempt records one backend invocation.
func (c *Collector) RecordAttempt(priority string, latency time.Duration, err error) {
	if c.disabled {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	BackendAttempts.WithLabelValues(c.backend, outcome).Inc()
	BackendLatency.WithLabelValues(c.backend, priority).Observe(latency.Seconds())
}

// RecordRetry records a scheduled retry.
func (c *Collector) RecordRetry(errorType string) {
	if c.disabled {
		return
	}
	if errorType == "" {
		errorType = "unknown"
	}
	RetriesTotal.WithLabelValues(c.backend, errorType).Inc()
}

// RecordRejection records a call rejected before backend contact.
func (c *Collector) RecordRejection(priority, stage string) {
	if c.disabled {
		return
	}
	AdmissionRejected.WithLabelValues(priority, stage).Inc()
}

// RecordBreakerTransition records a breaker state change. States are the
// breaker's textual state names.
func (c *Collector) RecordBreakerTransition(from, to string) {
	if c.disabled {
		return
	}
	CircuitBreakerTransitions.WithLabelValues(c.backend, from, to).Inc()
	CircuitBreakerState.WithLabelValues(c.backend).Set(breakerStateValue(to))
}

// SetInFlight publishes the limiter's in-flight count.
func (c *Collector) SetInFlight(n int) {
	if c.disabled {
		return
	}
	LimiterInFlight.WithLabelValues(c.backend).Set(float64(n))
}

func breakerStateValue(state string) float64 {
	switch state {
	case "open":
		return BreakerStateOpen
	case "half-open":
		return BreakerStateHalfOpen
	default:
		return BreakerStateClosed
	}
}

// strategyLabel drops the field path from a strategy name to bound label
// cardinality ("structured:data.answer" becomes "structured").
func strategyLabel(strategy string) string {
	for i := 0; i < len(strategy); i++ {
		if strategy[i] == ':' {
			return strategy[:i]
		}
	}
	return strategy
}
