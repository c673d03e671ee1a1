package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordCall(t *testing.T) {
	c := NewCollector("collector-test", true)
	start := time.Now()

	beforeCalls := testutil.ToFloat64(CallsTotal.WithLabelValues("background", "fallback"))
	beforeFallbacks := testutil.ToFloat64(FallbacksTotal.WithLabelValues("background", "throttled"))
	beforeStrategy := testutil.ToFloat64(NormalizeStrategy.WithLabelValues("structured"))

	c.RecordCall(&CallMetrics{
		Priority:  "background",
		Source:    "fallback",
		Reason:    "throttled",
		StartTime: start,
		EndTime:   start.Add(20 * time.Millisecond),
	})
	c.RecordCall(&CallMetrics{
		Priority:  "interactive",
		Source:    "backend",
		Strategy:  "structured:data.answer",
		StartTime: start,
		EndTime:   start.Add(40 * time.Millisecond),
	})

	require.Equal(t, beforeCalls+1, testutil.ToFloat64(CallsTotal.WithLabelValues("background", "fallback")))
	require.Equal(t, beforeFallbacks+1, testutil.ToFloat64(FallbacksTotal.WithLabelValues("background", "throttled")))
	require.Equal(t, beforeStrategy+1, testutil.ToFloat64(NormalizeStrategy.WithLabelValues("structured")))

	stats := c.Latency().Snapshot()
	require.Equal(t, int64(1), stats["background"].Count)
	require.Equal(t, 40*time.Millisecond, stats["interactive"].Max)
}

func TestCollector_BreakerTransition(t *testing.T) {
	c := NewCollector("breaker-test", true)

	c.RecordBreakerTransition("closed", "open")
	require.Equal(t, BreakerStateOpen, testutil.ToFloat64(CircuitBreakerState.WithLabelValues("breaker-test")))

	c.RecordBreakerTransition("open", "half-open")
	require.Equal(t, BreakerStateHalfOpen, testutil.ToFloat64(CircuitBreakerState.WithLabelValues("breaker-test")))

	c.RecordBreakerTransition("half-open", "closed")
	require.Equal(t, BreakerStateClosed, testutil.ToFloat64(CircuitBreakerState.WithLabelValues("breaker-test")))
	require.Equal(t, 1.0, testutil.ToFloat64(CircuitBreakerTransitions.WithLabelValues("breaker-test", "closed", "open")))
}

func TestCollector_AttemptsAndRejections(t *testing.T) {
	c := NewCollector("attempt-test", true)

	c.RecordAttempt("interactive", 10*time.Millisecond, nil)
	c.RecordAttempt("interactive", 10*time.Millisecond, errors.New("boom"))
	c.RecordRetry("")
	c.RecordRejection("background", "limiter")
	c.SetInFlight(3)

	require.Equal(t, 1.0, testutil.ToFloat64(BackendAttempts.WithLabelValues("attempt-test", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(BackendAttempts.WithLabelValues("attempt-test", "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(RetriesTotal.WithLabelValues("attempt-test", "unknown")))
	require.Equal(t, 3.0, testutil.ToFloat64(LimiterInFlight.WithLabelValues("attempt-test")))
}

func TestCollector_Disabled(t *testing.T) {
	c := NewCollector("disabled-test", false)
	start := time.Now()

	c.RecordCall(&CallMetrics{Priority: "disabled-prio", Source: "cache", StartTime: start, EndTime: start})
	c.SetInFlight(5)

	require.Equal(t, 0.0, testutil.ToFloat64(CallsTotal.WithLabelValues("disabled-prio", "cache")))
	require.Equal(t, 0.0, testutil.ToFloat64(LimiterInFlight.WithLabelValues("disabled-test")))
	require.Equal(t, int64(1), c.Latency().Snapshot()["disabled-prio"].Count)
}

func TestStrategyLabel(t *testing.T) {
	require.Equal(t, "string_json", strategyLabel("string_json:response"))
	require.Equal(t, "string", strategyLabel("string"))
}
