package metrics

import (
	"sort"
	"sync"
	"time"
)

// LatencyStats summarizes observed call latencies for one priority class.
type LatencyStats struct {
	Count int64         `json:"count"`
	Mean  time.Duration `json:"mean"`
	Max   time.Duration `json:"max"`
	Last  time.Duration `json:"last"`
}

type latencyAccumulator struct {
	count int64
	total time.Duration
	max   time.Duration
	last  time.Duration
}

// LatencyTracker keeps per-priority latency summaries for snapshots. It is
// safe for concurrent use.
type LatencyTracker struct {
	mu     sync.Mutex
	series map[string]*latencyAccumulator
}

// NewLatencyTracker creates an empty tracker.
func NewLatencyTracker() *LatencyTracker {
	return &LatencyTracker{series: make(map[string]*latencyAccumulator)}
}

// Observe records one latency sample for priority.
func (t *LatencyTracker) Observe(priority string, d time.Duration) {
	if d < 0 {
		d = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	acc, ok := t.series[priority]
	if !ok {
		acc = &latencyAccumulator{}
		t.series[priority] = acc
	}
	acc.count++
	acc.total += d
	acc.last = d
	if d > acc.max {
		acc.max = d
	}
}

// Snapshot returns a copy of the current summaries keyed by priority.
func (t *LatencyTracker) Snapshot() map[string]LatencyStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]LatencyStats, len(t.series))
	for p, acc := range t.series {
		out[p] = LatencyStats{
			Count: acc.count,
			Mean:  acc.total / time.Duration(acc.count),
			Max:   acc.max,
			Last:  acc.last,
		}
	}
	return out
}

// Priorities returns the observed priority names in sorted order.
func (t *LatencyTracker) Priorities() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := make([]string, 0, len(t.series))
	for p := range t.series {
		names = append(names, p)
	}
	sort.Strings(names)
	return names
}
