package api //nolint:revive // package name is intentional

import (
	"sync/atomic"

	"github.com/blueberrycongee/llmgov"
)

type refSwap[T interface{ Close() error }] struct {
	current atomic.Pointer[ref[T]]
}

type ref[T interface{ Close() error }] struct {
	value   T
	refs    atomic.Int64
	closing atomic.Bool
	closed  atomic.Bool
}

func newRefSwap[T interface{ Close() error }](value T) *refSwap[T] {
	s := &refSwap[T]{}
	s.current.Store(&ref[T]{value: value})
	return s
}

func (s *refSwap[T]) acquire() (T, func()) {
	r := s.current.Load()
	if r == nil {
		var zero T
		return zero, func() {}
	}

	r.refs.Add(1)

	release := func() {
		if r.refs.Add(-1) == 0 && r.closing.Load() {
			r.closeOnce()
		}
	}

	return r.value, release
}

func (s *refSwap[T]) swap(next T) {
	prev := s.current.Swap(&ref[T]{value: next})
	if prev == nil {
		return
	}

	prev.closing.Store(true)
	if prev.refs.Load() == 0 {
		prev.closeOnce()
	}
}

func (s *refSwap[T]) closeCurrent() {
	r := s.current.Load()
	if r == nil {
		return
	}

	r.closing.Store(true)
	if r.refs.Load() == 0 {
		r.closeOnce()
	}
}

func (s *refSwap[T]) currentValue() T {
	r := s.current.Load()
	if r == nil {
		var zero T
		return zero
	}
	return r.value
}

func (r *ref[T]) closeOnce() {
	if r.closed.CompareAndSwap(false, true) {
		_ = r.value.Close()
	}
}

// OrchestratorSwapper holds the orchestrator serving requests and replaces
// it on config reload. The previous orchestrator is closed once in-flight
// calls release it.
type OrchestratorSwapper struct {
	swapper *refSwap[*llmgov.Orchestrator]
}

// NewOrchestratorSwapper creates a swapper seeded with the initial orchestrator.
func NewOrchestratorSwapper(o *llmgov.Orchestrator) *OrchestratorSwapper {
	return &OrchestratorSwapper{swapper: newRefSwap(o)}
}

// Acquire returns the current orchestrator and a release function.
// Call release when the request is done.
func (s *OrchestratorSwapper) Acquire() (*llmgov.Orchestrator, func()) {
	return s.swapper.acquire()
}

// Swap atomically replaces the current orchestrator.
func (s *OrchestratorSwapper) Swap(next *llmgov.Orchestrator) {
	s.swapper.swap(next)
}

// Close marks the current orchestrator as closing and closes it when idle.
func (s *OrchestratorSwapper) Close() {
	s.swapper.closeCurrent()
}

// Current returns the current orchestrator without affecting its lifetime.
func (s *OrchestratorSwapper) Current() *llmgov.Orchestrator {
	return s.swapper.currentValue()
}
