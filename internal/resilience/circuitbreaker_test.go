package resilience

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(clock *manualClock) *CircuitBreaker {
	return NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 3,
		Window:           time.Minute,
		BaseCooldown:     10 * time.Second,
		MaxCooldown:      35 * time.Second,
		BackoffFactor:    2,
		Clock:            clock.Now,
	})
}

func mustAllow(t *testing.T, cb *CircuitBreaker) Permit {
	t.Helper()
	p, err := cb.Allow()
	if err != nil {
		t.Fatalf("Allow() error = %v, want nil (state %v)", err, cb.State())
	}
	return p
}

func tripBreaker(t *testing.T, cb *CircuitBreaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		cb.RecordFailure(mustAllow(t, cb))
	}
}

func TestCircuitBreakerState_String(t *testing.T) {
	tests := []struct {
		state CircuitState
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{CircuitState(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("CircuitState.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{})

	if cb.Name() != "test" {
		t.Errorf("Name() = %v, want test", cb.Name())
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want StateClosed", cb.State())
	}
	snap := cb.Snapshot()
	if snap.CurrentCooldown != DefaultCircuitBreakerConfig().BaseCooldown {
		t.Errorf("CurrentCooldown = %v, want base cooldown", snap.CurrentCooldown)
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clock := newManualClock()
	cb := newTestBreaker(clock)

	tripBreaker(t, cb, 2)
	if cb.State() != StateClosed {
		t.Fatalf("State() = %v after 2 failures, want closed", cb.State())
	}

	tripBreaker(t, cb, 1)
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v after 3 failures, want open", cb.State())
	}

	if _, err := cb.Allow(); err != ErrCircuitOpen {
		t.Errorf("Allow() error = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	clock := newManualClock()
	cb := newTestBreaker(clock)

	tripBreaker(t, cb, 2)
	cb.RecordSuccess(mustAllow(t, cb))
	tripBreaker(t, cb, 2)

	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed (failures were not consecutive)", cb.State())
	}
	if got := cb.Snapshot().FailureCount; got != 2 {
		t.Errorf("FailureCount = %d, want 2", got)
	}
}

func TestCircuitBreaker_SlidingWindow(t *testing.T) {
	clock := newManualClock()
	cb := newTestBreaker(clock)

	tripBreaker(t, cb, 2)
	clock.Advance(61 * time.Second)
	tripBreaker(t, cb, 1)

	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed (old failures left the window)", cb.State())
	}
	if got := cb.Snapshot().FailureCount; got != 1 {
		t.Errorf("FailureCount = %d, want 1", got)
	}
}

func TestCircuitBreaker_HalfOpenSingleProbe(t *testing.T) {
	clock := newManualClock()
	cb := newTestBreaker(clock)
	tripBreaker(t, cb, 3)

	clock.Advance(9 * time.Second)
	if _, err := cb.Allow(); err != ErrCircuitOpen {
		t.Fatalf("Allow() before cooldown error = %v, want ErrCircuitOpen", err)
	}

	clock.Advance(time.Second)
	probe := mustAllow(t, cb)
	if !probe.Probe() {
		t.Fatal("first permit after cooldown should be the probe")
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("State() = %v, want half-open", cb.State())
	}

	if _, err := cb.Allow(); err != ErrCircuitOpen {
		t.Errorf("second Allow() in half-open error = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_ProbeSuccessCloses(t *testing.T) {
	clock := newManualClock()
	cb := newTestBreaker(clock)
	tripBreaker(t, cb, 3)

	clock.Advance(10 * time.Second)
	cb.RecordSuccess(mustAllow(t, cb))

	snap := cb.Snapshot()
	if snap.State != "closed" {
		t.Errorf("State = %v, want closed", snap.State)
	}
	if snap.FailureCount != 0 {
		t.Errorf("FailureCount = %d, want 0", snap.FailureCount)
	}
	if snap.CurrentCooldown != 10*time.Second {
		t.Errorf("CurrentCooldown = %v, want base", snap.CurrentCooldown)
	}
}

func TestCircuitBreaker_ProbeFailureGrowsCooldown(t *testing.T) {
	clock := newManualClock()
	cb := newTestBreaker(clock)
	tripBreaker(t, cb, 3)

	want := []time.Duration{20 * time.Second, 35 * time.Second, 35 * time.Second}
	prev := cb.Snapshot().CurrentCooldown
	for i, w := range want {
		clock.Advance(prev)
		cb.RecordFailure(mustAllow(t, cb))

		snap := cb.Snapshot()
		if snap.State != "open" {
			t.Fatalf("round %d: State = %v, want open", i, snap.State)
		}
		if snap.CurrentCooldown != w {
			t.Errorf("round %d: CurrentCooldown = %v, want %v", i, snap.CurrentCooldown, w)
		}
		if w < 35*time.Second && snap.CurrentCooldown <= prev {
			t.Errorf("round %d: cooldown did not grow (%v -> %v)", i, prev, snap.CurrentCooldown)
		}
		prev = snap.CurrentCooldown
	}

	// Recovery restores the base cooldown.
	clock.Advance(prev)
	cb.RecordSuccess(mustAllow(t, cb))
	if got := cb.Snapshot().CurrentCooldown; got != 10*time.Second {
		t.Errorf("CurrentCooldown after recovery = %v, want 10s", got)
	}
}

func TestCircuitBreaker_ReleaseProbe(t *testing.T) {
	clock := newManualClock()
	cb := newTestBreaker(clock)
	tripBreaker(t, cb, 3)
	clock.Advance(10 * time.Second)

	probe := mustAllow(t, cb)
	cb.Release(probe)

	next := mustAllow(t, cb)
	if !next.Probe() {
		t.Error("released probe should let the next caller probe")
	}
}

func TestCircuitBreaker_StaleOutcomesIgnored(t *testing.T) {
	clock := newManualClock()
	cb := newTestBreaker(clock)

	stale := mustAllow(t, cb)
	tripBreaker(t, cb, 3)

	clock.Advance(10 * time.Second)
	probe := mustAllow(t, cb)

	// A Closed-era success must not close the half-open breaker.
	cb.RecordSuccess(stale)
	if cb.State() != StateHalfOpen {
		t.Fatalf("State() = %v, want half-open", cb.State())
	}
	cb.RecordFailure(probe)
	if cb.State() != StateOpen {
		t.Errorf("State() = %v, want open", cb.State())
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	clock := newManualClock()
	cb := newTestBreaker(clock)

	var mu sync.Mutex
	var transitions []string
	cb.OnStateChange(func(name string, from, to CircuitState) {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, from.String()+"->"+to.String())
	})

	tripBreaker(t, cb, 3)
	clock.Advance(10 * time.Second)
	cb.RecordSuccess(mustAllow(t, cb))

	mu.Lock()
	defer mu.Unlock()
	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	clock := newManualClock()
	cb := newTestBreaker(clock)
	tripBreaker(t, cb, 3)

	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}
	mustAllow(t, cb)
}

func TestCircuitBreaker_ConcurrentProbe(t *testing.T) {
	clock := newManualClock()
	cb := newTestBreaker(clock)
	tripBreaker(t, cb, 3)
	clock.Advance(10 * time.Second)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cb.Allow(); err == nil {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 1 {
		t.Errorf("allowed probes = %d, want exactly 1", got)
	}
}
