// Package llmgov governs access to a single slow, rate-limited and
// occasionally unreliable language-model backend.
//
// Every call passes through a priority-aware response cache, a circuit
// breaker, a concurrency limiter and a retry manager before reaching the
// backend. Whatever the backend returns is normalized into clean text, and
// every failure path produces a context-appropriate fallback message, so
// Call always returns a usable string.
//
// Basic usage:
//
//	orch, err := llmgov.New(backend,
//	    llmgov.WithResilience(resilience.DefaultManagerConfig()),
//	    llmgov.WithDefaultTimeout(20*time.Second),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer orch.Close()
//
//	text := orch.Call(ctx, llmgov.Request{
//	    Prompt:   "Hello",
//	    Priority: llmgov.PriorityInteractive,
//	})
package llmgov

import (
	"github.com/blueberrycongee/llmgov/pkg/backend"
	"github.com/blueberrycongee/llmgov/pkg/types"
)

// Version is the current version of llmgov.
const Version = "0.1.0"

// Re-export core types for convenience.
type (
	// Request is one caller request.
	Request = types.Request

	// Priority is the caller class of a request.
	Priority = types.Priority

	// CallResult describes how a call was answered.
	CallResult = types.CallResult

	// Reason classifies why a fallback was produced.
	Reason = types.Reason

	// Backend is the language-model endpoint being governed.
	Backend = backend.Backend
)

// Priority classes.
const (
	PriorityInteractive        = types.PriorityInteractive
	PriorityBackground         = types.PriorityBackground
	PriorityConsciousnessCycle = types.PriorityConsciousnessCycle
)

// Fallback reasons.
const (
	ReasonThrottled = types.ReasonThrottled
	ReasonTransient = types.ReasonTransient
	ReasonMalformed = types.ReasonMalformed
	ReasonUnknown   = types.ReasonUnknown
)
