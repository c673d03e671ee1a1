// Package backend defines the contract for the language-model backend that
// the orchestrator governs. Adapters live under backends/.
package backend

import (
	"context"
	"time"
)

// Backend is a single slow, rate-limited language-model endpoint.
//
// Invoke may return any payload shape: plain text, decoded JSON, a struct,
// an error value in disguise, or nil. The orchestrator normalizes whatever
// comes back, so adapters should pass payloads through untouched and only
// return a non-nil error for transport or protocol failures.
type Backend interface {
	// Name identifies the backend in logs, metrics and errors.
	Name() string

	// Invoke sends one prompt. Implementations must honor ctx cancellation.
	Invoke(ctx context.Context, prompt string, params map[string]any) (any, error)
}

// InvokeFunc is the function form of Backend.Invoke.
type InvokeFunc func(ctx context.Context, prompt string, params map[string]any) (any, error)

type funcBackend struct {
	name string
	fn   InvokeFunc
}

// FromFunc adapts a function into a Backend.
func FromFunc(name string, fn InvokeFunc) Backend {
	if name == "" {
		name = "func"
	}
	return &funcBackend{name: name, fn: fn}
}

func (b *funcBackend) Name() string { return b.name }

func (b *funcBackend) Invoke(ctx context.Context, prompt string, params map[string]any) (any, error) {
	return b.fn(ctx, prompt, params)
}

// Config contains adapter configuration shared by network backends.
type Config struct {
	Name    string
	URL     string
	APIKey  string
	Timeout time.Duration
	Headers map[string]string

	// MaxResponseBytes caps response bodies; zero selects 4MB.
	MaxResponseBytes int64
}

// Factory creates backend instances from configuration.
type Factory func(cfg Config) (Backend, error)
