package resilience

import (
	"context"
	"errors"
	"sync"

	"github.com/blueberrycongee/llmgov/pkg/types"
)

// ErrLimiterFull is returned when no slot is free and the caller may not wait.
var ErrLimiterFull = errors.New("concurrency limiter is full")

// ConcurrencyLimiter bounds in-flight backend calls across all priorities.
// Interactive callers queue for a slot until their context ends; every other
// priority is rejected immediately when the limiter is saturated.
type ConcurrencyLimiter struct {
	mu       sync.Mutex
	capacity int
	current  int
	waiters  []chan struct{}

	rejected map[types.Priority]int64
}

// NewConcurrencyLimiter creates a limiter with the given capacity.
func NewConcurrencyLimiter(capacity int) *ConcurrencyLimiter {
	if capacity <= 0 {
		capacity = 1
	}
	return &ConcurrencyLimiter{
		capacity: capacity,
		rejected: make(map[types.Priority]int64),
	}
}

// TryAcquire attempts to take a slot without blocking.
func (l *ConcurrencyLimiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tryAcquireLocked()
}

func (l *ConcurrencyLimiter) tryAcquireLocked() bool {
	// Queued waiters have first claim on freed slots.
	if l.current < l.capacity && len(l.waiters) == 0 {
		l.current++
		return true
	}
	return false
}

// Acquire takes a slot according to the priority's queuing policy. It returns
// ErrLimiterFull for non-interactive callers when saturated, and ctx.Err()
// when an interactive caller gives up waiting.
func (l *ConcurrencyLimiter) Acquire(ctx context.Context, priority types.Priority) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	if l.tryAcquireLocked() {
		l.mu.Unlock()
		return nil
	}
	if !priority.Interactive() {
		l.rejected[priority]++
		l.mu.Unlock()
		return ErrLimiterFull
	}

	waiter := make(chan struct{})
	l.waiters = append(l.waiters, waiter)
	l.mu.Unlock()

	select {
	case <-waiter:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		for i, w := range l.waiters {
			if w == waiter {
				l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
				l.rejected[priority]++
				l.mu.Unlock()
				return ctx.Err()
			}
		}
		l.mu.Unlock()
		// Release already handed us the slot; give it back.
		l.Release()
		return ctx.Err()
	}
}

// Release frees a slot, handing it to the oldest waiter if any.
func (l *ConcurrencyLimiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current <= 0 {
		return
	}

	if len(l.waiters) > 0 {
		waiter := l.waiters[0]
		l.waiters = l.waiters[1:]
		close(waiter)
		// The slot is transferred, current stays the same.
		return
	}

	l.current--
}

// InFlight returns the number of held slots.
func (l *ConcurrencyLimiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Capacity returns the limiter capacity.
func (l *ConcurrencyLimiter) Capacity() int {
	return l.capacity
}

// LimiterSnapshot is a read-only view of the limiter.
type LimiterSnapshot struct {
	InFlight int              `json:"in_flight"`
	Capacity int              `json:"capacity"`
	Waiting  int              `json:"waiting"`
	Rejected map[string]int64 `json:"rejected"`
}

// Snapshot returns the limiter's current occupancy and rejection counts.
func (l *ConcurrencyLimiter) Snapshot() LimiterSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	rejected := make(map[string]int64, len(l.rejected))
	for p, n := range l.rejected {
		rejected[p.String()] = n
	}
	return LimiterSnapshot{
		InFlight: l.current,
		Capacity: l.capacity,
		Waiting:  len(l.waiters),
		Rejected: rejected,
	}
}
