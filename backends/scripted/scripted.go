// Package scripted provides a deterministic, programmable backend. Each
// invocation consumes the next step of a script; the last step repeats once
// the script is exhausted.
package scripted

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blueberrycongee/llmgov/internal/config"
	"github.com/blueberrycongee/llmgov/pkg/backend"
	llmerrors "github.com/blueberrycongee/llmgov/pkg/errors"
)

// DefaultName is used when no name is given.
const DefaultName = "scripted"

// Step is one scripted reply.
type Step struct {
	Reply any
	Err   error
	// Delay is waited before replying; a context deadline during the delay
	// returns the context's error.
	Delay time.Duration
	// Panic, when non-nil, is raised instead of replying.
	Panic any
}

// Backend replays a script of steps.
type Backend struct {
	name string

	mu    sync.Mutex
	steps []Step
	next  int

	calls       atomic.Int64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

var _ backend.Backend = (*Backend)(nil)

// New creates a scripted backend. With no steps every call returns nil.
func New(name string, steps ...Step) *Backend {
	if name == "" {
		name = DefaultName
	}
	return &Backend{name: name, steps: steps}
}

// Reply is shorthand for a step returning payload.
func Reply(payload any) Step { return Step{Reply: payload} }

// Fail is shorthand for a step returning err.
func Fail(err error) Step { return Step{Err: err} }

// Slow is shorthand for a step that waits d before returning payload.
func Slow(d time.Duration, payload any) Step { return Step{Reply: payload, Delay: d} }

// FromConfig builds a scripted backend from configuration steps.
func FromConfig(name string, steps []config.ScriptStep) (*Backend, error) {
	if name == "" {
		name = DefaultName
	}
	out := make([]Step, 0, len(steps))
	for i, s := range steps {
		step := Step{Reply: s.Reply, Delay: s.Delay}
		if s.Error != "" {
			err, ok := namedError(name, s.Error)
			if !ok {
				return nil, fmt.Errorf("script step %d: unknown error %q", i, s.Error)
			}
			step.Err = err
		}
		out = append(out, step)
	}
	return New(name, out...), nil
}

func namedError(backendName, name string) (error, bool) {
	switch name {
	case "timeout":
		return llmerrors.NewTimeoutError(backendName, "scripted timeout"), true
	case "unavailable":
		return llmerrors.NewServiceUnavailableError(backendName, "scripted outage"), true
	case "rate_limit":
		return llmerrors.NewRateLimitError(backendName, "scripted rate limit"), true
	case "invalid":
		return llmerrors.NewInvalidRequestError(backendName, "scripted invalid request"), true
	case "malformed":
		return llmerrors.NewMalformedResponseError(backendName, "scripted malformed response"), true
	default:
		return nil, false
	}
}

// Name returns the backend name.
func (b *Backend) Name() string { return b.name }

// Invoke plays the next step.
func (b *Backend) Invoke(ctx context.Context, _ string, _ map[string]any) (any, error) {
	b.calls.Add(1)
	n := b.inFlight.Add(1)
	defer b.inFlight.Add(-1)
	for {
		peak := b.maxInFlight.Load()
		if n <= peak || b.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	step := b.step()
	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
	if step.Panic != nil {
		panic(step.Panic)
	}
	return step.Reply, step.Err
}

// SetScript replaces the script and rewinds it.
func (b *Backend) SetScript(steps ...Step) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.steps = steps
	b.next = 0
}

// Calls returns how many times Invoke was entered.
func (b *Backend) Calls() int64 { return b.calls.Load() }

// InFlight returns the number of invocations currently running.
func (b *Backend) InFlight() int64 { return b.inFlight.Load() }

// MaxConcurrent returns the highest number of simultaneous invocations seen.
func (b *Backend) MaxConcurrent() int64 { return b.maxInFlight.Load() }

func (b *Backend) step() Step {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.steps) == 0 {
		return Step{}
	}
	s := b.steps[b.next]
	if b.next < len(b.steps)-1 {
		b.next++
	}
	return s
}
