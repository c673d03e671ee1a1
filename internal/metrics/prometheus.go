// Package metrics provides Prometheus metrics for the orchestrator: call
// outcomes, cache effectiveness, admission rejections, breaker state and
// backend latency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "llmgov"
)

// LatencyBuckets defines histogram buckets for latency metrics (in seconds).
var LatencyBuckets = []float64{
	0.005, 0.0125, 0.025, 0.05, 0.1, 0.25, 0.5,
	1.0, 1.5, 2.0, 2.5, 3.0, 4.0, 5.0, 7.5,
	10.0, 15.0, 20.0, 30.0, 60.0, 120.0,
}

// =============================================================================
// Call Metrics
// =============================================================================

var (
	// CallsTotal counts completed calls by priority and answer source.
	CallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Total number of orchestrated calls",
		},
		[]string{"priority", "source"}, // source: cache, backend, fallback
	)

	// FallbacksTotal counts fallback answers by priority and reason.
	FallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Total number of fallback answers",
		},
		[]string{"priority", "reason"},
	)

	// CallLatency tracks end-to-end call latency.
	CallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_latency_seconds",
			Help:      "End-to-end call latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"priority", "source"},
	)

	// NormalizeStrategy counts which extraction strategy produced answers.
	NormalizeStrategy = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalize_strategy_total",
			Help:      "Answers produced per normalization strategy",
		},
		[]string{"strategy"},
	)
)

// =============================================================================
// Backend Metrics
// =============================================================================

var (
	// BackendAttempts counts backend invocations by outcome.
	BackendAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_attempts_total",
			Help:      "Total backend invocation attempts",
		},
		[]string{"backend", "outcome"}, // outcome: success, error
	)

	// BackendLatency tracks the latency of single backend attempts.
	BackendLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_latency_seconds",
			Help:      "Backend attempt latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"backend", "priority"},
	)

	// RetriesTotal counts retries scheduled after retryable failures.
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Total retries after retryable backend failures",
		},
		[]string{"backend", "error_type"},
	)
)

// =============================================================================
// Cache Metrics
// =============================================================================

var (
	// CacheHits counts cache hits.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total cache hits",
		},
		[]string{"priority"},
	)

	// CacheMisses counts cache misses.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total cache misses",
		},
		[]string{"priority"},
	)
)

// =============================================================================
// Admission Metrics
// =============================================================================

var (
	// CircuitBreakerState tracks circuit breaker status.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"backend"},
	)

	// CircuitBreakerTransitions counts breaker state transitions.
	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Total circuit breaker state transitions",
		},
		[]string{"backend", "from", "to"},
	)

	// AdmissionRejected counts calls rejected before backend contact.
	AdmissionRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_rejected_total",
			Help:      "Calls rejected before reaching the backend",
		},
		[]string{"priority", "stage"}, // stage: breaker, limiter, rate_limit, quota, deadline
	)

	// LimiterInFlight tracks backend calls currently holding a limiter slot.
	LimiterInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "limiter_in_flight",
			Help:      "Backend calls currently holding a concurrency slot",
		},
		[]string{"backend"},
	)
)
