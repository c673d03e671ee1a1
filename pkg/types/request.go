// Package types defines the request and result structures shared by the
// orchestrator, its collaborators and its callers.
package types //nolint:revive // package name is intentional

import (
	"fmt"
	"strings"
	"time"
)

// Priority is the caller-declared urgency of a request. It governs cache TTL
// and limiter admission behavior.
type Priority int

const (
	// PriorityInteractive is a user-facing chat turn. It may wait for a slot.
	PriorityInteractive Priority = iota
	// PriorityBackground is periodic autonomous background processing.
	PriorityBackground
	// PriorityConsciousnessCycle is a state-consolidation cycle.
	PriorityConsciousnessCycle
)

// Priorities lists every priority class in declaration order.
var Priorities = []Priority{PriorityInteractive, PriorityBackground, PriorityConsciousnessCycle}

func (p Priority) String() string {
	switch p {
	case PriorityInteractive:
		return "interactive"
	case PriorityBackground:
		return "background"
	case PriorityConsciousnessCycle:
		return "consciousness_cycle"
	default:
		return "unknown"
	}
}

// Interactive reports whether callers of this priority may wait for capacity.
func (p Priority) Interactive() bool {
	return p == PriorityInteractive
}

// ParsePriority converts a textual priority (as used in config and on the
// wire) into a Priority.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "interactive", "chat":
		return PriorityInteractive, nil
	case "background", "background_processing":
		return PriorityBackground, nil
	case "consciousness_cycle", "consciousness", "cycle":
		return PriorityConsciousnessCycle, nil
	default:
		return PriorityInteractive, fmt.Errorf("unknown priority %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Well-known context tag keys. The core treats them as opaque; only the
// fallback generator reads them.
const (
	ContextMood  = "mood"
	ContextState = "state"
)

// Request is a single call from an internal caller.
type Request struct {
	Prompt     string            `json:"prompt"`
	Parameters map[string]any    `json:"parameters,omitempty"`
	Priority   Priority          `json:"priority"`
	Timeout    time.Duration     `json:"timeout,omitempty"`
	Context    map[string]string `json:"context,omitempty"`

	// NoCache skips the cache read (force a fresh backend call).
	NoCache bool `json:"no_cache,omitempty"`
	// NoStore skips the cache write.
	NoStore bool `json:"no_store,omitempty"`
}

// Tag returns a context tag or "" when absent.
func (r *Request) Tag(key string) string {
	if r == nil || r.Context == nil {
		return ""
	}
	return r.Context[key]
}
