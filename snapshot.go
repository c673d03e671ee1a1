package llmgov

import (
	"github.com/blueberrycongee/llmgov/internal/cache"
	"github.com/blueberrycongee/llmgov/internal/metrics"
	"github.com/blueberrycongee/llmgov/internal/resilience"
	"github.com/blueberrycongee/llmgov/pkg/types"
)

// Snapshot is a read-only view of an Orchestrator for diagnostics.
type Snapshot struct {
	Backend   string                          `json:"backend"`
	Admission resilience.ManagerSnapshot      `json:"admission"`
	Cache     *cache.RequestCacheStats        `json:"cache,omitempty"`
	Latency   map[string]metrics.LatencyStats `json:"latency"`
	Fallbacks map[string]int64                `json:"fallbacks"`
}

// Snapshot returns breaker and limiter state, cache counters, per-priority
// latency and fallback counts per reason.
func (o *Orchestrator) Snapshot() Snapshot {
	snap := Snapshot{
		Backend:   o.backend.Name(),
		Admission: o.manager.Snapshot(),
		Latency:   o.metrics.Latency().Snapshot(),
		Fallbacks: make(map[string]int64, len(types.Reasons)),
	}
	if o.cache != nil {
		stats := o.cache.Stats()
		snap.Cache = &stats
	}
	for _, r := range types.Reasons {
		snap.Fallbacks[r.String()] = o.fallbacks[r].Load()
	}
	return snap
}
