// Package cache provides the request cache: fingerprinting, priority-aware
// TTLs and the byte stores (memory, go-cache, Redis, dual) underneath.
package cache

import (
	"time"

	"github.com/blueberrycongee/llmgov/pkg/types"
)

// Entry is the serialized form of a cached answer. Validity is decided from
// CreatedAt and TTLClass, not from the store's physical expiry.
type Entry struct {
	Value     string         `json:"value"`
	CreatedAt time.Time      `json:"created_at"`
	TTLClass  types.Priority `json:"ttl_class"`
}

// TTLConfig maps priority classes to time-to-live.
type TTLConfig struct {
	Interactive        time.Duration `yaml:"interactive"`
	Background         time.Duration `yaml:"background"`
	ConsciousnessCycle time.Duration `yaml:"consciousness_cycle"`
}

// DefaultTTLConfig returns the two-tier defaults: interactive answers are
// short-lived; background and consciousness-cycle answers share the long tier.
func DefaultTTLConfig() TTLConfig {
	return TTLConfig{
		Interactive:        180 * time.Second,
		Background:         600 * time.Second,
		ConsciousnessCycle: 600 * time.Second,
	}
}

// For returns the TTL for a priority class. Unknown classes get the
// interactive TTL, the most conservative tier.
func (c TTLConfig) For(p types.Priority) time.Duration {
	switch p {
	case types.PriorityBackground:
		return c.Background
	case types.PriorityConsciousnessCycle:
		return c.ConsciousnessCycle
	default:
		return c.Interactive
	}
}

func (c TTLConfig) withDefaults() TTLConfig {
	def := DefaultTTLConfig()
	if c.Interactive <= 0 {
		c.Interactive = def.Interactive
	}
	if c.Background <= 0 {
		c.Background = def.Background
	}
	if c.ConsciousnessCycle <= 0 {
		c.ConsciousnessCycle = c.Background
	}
	return c
}
