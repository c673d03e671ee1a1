// Package resilience provides the admission controls in front of the backend:
// circuit breaker, concurrency limiter, retry manager and rate gate.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// CircuitState represents the current state of a circuit breaker.
type CircuitState int

const (
	// StateClosed allows requests to pass through normally.
	StateClosed CircuitState = iota
	// StateOpen blocks all requests.
	StateOpen
	// StateHalfOpen allows a single probe to test recovery.
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the circuit breaker rejects a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig contains configuration for a circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of failures (K) that opens the circuit.
	FailureThreshold int `yaml:"failure_threshold"`
	// Window bounds how far back failures are counted. Zero counts every
	// failure since the last success.
	Window time.Duration `yaml:"window"`
	// BaseCooldown is the first Open duration, restored after recovery.
	BaseCooldown time.Duration `yaml:"base_cooldown"`
	// MaxCooldown caps the cooldown growth.
	MaxCooldown time.Duration `yaml:"max_cooldown"`
	// BackoffFactor multiplies the cooldown after each failed probe.
	BackoffFactor float64 `yaml:"backoff_factor"`

	// Clock overrides time.Now, for tests.
	Clock func() time.Time `yaml:"-"`
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		Window:           60 * time.Second,
		BaseCooldown:     30 * time.Second,
		MaxCooldown:      5 * time.Minute,
		BackoffFactor:    2,
	}
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	def := DefaultCircuitBreakerConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.Window < 0 {
		c.Window = 0
	}
	if c.BaseCooldown <= 0 {
		c.BaseCooldown = def.BaseCooldown
	}
	if c.MaxCooldown < c.BaseCooldown {
		c.MaxCooldown = c.BaseCooldown
	}
	if c.BackoffFactor <= 1 {
		c.BackoffFactor = def.BackoffFactor
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Permit is handed out by Allow and must be settled with exactly one of
// RecordSuccess, RecordFailure or Release. Outcomes carrying a permit from an
// earlier state epoch are ignored.
type Permit struct {
	epoch uint64
	probe bool
}

// Probe reports whether the permit is the single half-open probe.
func (p Permit) Probe() bool { return p.probe }

// StateChangeFunc is called after every state transition, outside the lock.
type StateChangeFunc func(name string, from, to CircuitState)

// CircuitBreaker gates calls to the backend through Closed, Open and
// HalfOpen states. Failures in Closed are counted within a sliding window;
// each failed probe grows the cooldown by BackoffFactor up to MaxCooldown.
type CircuitBreaker struct {
	mu     sync.Mutex
	name   string
	config CircuitBreakerConfig

	state           CircuitState
	epoch           uint64
	failures        []time.Time // failure times in Closed, oldest first
	lastFailureAt   time.Time
	openedAt        time.Time
	currentCooldown time.Duration
	probeInFlight   bool

	onStateChange StateChangeFunc
	pending       []transition
}

type transition struct {
	from, to CircuitState
}

// NewCircuitBreaker creates a new circuit breaker with the given config.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	cfg = cfg.withDefaults()
	return &CircuitBreaker{
		name:            name,
		config:          cfg,
		state:           StateClosed,
		currentCooldown: cfg.BaseCooldown,
	}
}

// OnStateChange sets a callback for state transitions.
func (cb *CircuitBreaker) OnStateChange(fn StateChangeFunc) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Allow asks to pass one call through. It returns ErrCircuitOpen while the
// circuit is Open, or HalfOpen with the probe already taken.
func (cb *CircuitBreaker) Allow() (Permit, error) {
	cb.mu.Lock()
	defer cb.unlockAndNotify()

	now := cb.config.Clock()
	cb.advance(now)

	switch cb.state {
	case StateClosed:
		return Permit{epoch: cb.epoch}, nil
	case StateHalfOpen:
		if cb.probeInFlight {
			return Permit{}, ErrCircuitOpen
		}
		cb.probeInFlight = true
		return Permit{epoch: cb.epoch, probe: true}, nil
	default:
		return Permit{}, ErrCircuitOpen
	}
}

// RecordSuccess records a successful call.
func (cb *CircuitBreaker) RecordSuccess(p Permit) {
	cb.mu.Lock()
	defer cb.unlockAndNotify()

	if p.epoch != cb.epoch {
		return
	}

	switch cb.state {
	case StateClosed:
		cb.failures = cb.failures[:0]
	case StateHalfOpen:
		if !p.probe {
			return
		}
		cb.probeInFlight = false
		cb.failures = cb.failures[:0]
		cb.currentCooldown = cb.config.BaseCooldown
		cb.transitionTo(StateClosed)
	}
}

// RecordFailure records a failed call.
func (cb *CircuitBreaker) RecordFailure(p Permit) {
	cb.mu.Lock()
	defer cb.unlockAndNotify()

	if p.epoch != cb.epoch {
		return
	}

	now := cb.config.Clock()

	switch cb.state {
	case StateClosed:
		cb.lastFailureAt = now
		cb.failures = append(cb.failures, now)
		cb.pruneFailures(now)
		if len(cb.failures) >= cb.config.FailureThreshold {
			cb.open(now)
		}
	case StateHalfOpen:
		if !p.probe {
			return
		}
		cb.lastFailureAt = now
		cb.probeInFlight = false
		next := time.Duration(float64(cb.currentCooldown) * cb.config.BackoffFactor)
		if next > cb.config.MaxCooldown || next <= 0 {
			next = cb.config.MaxCooldown
		}
		cb.currentCooldown = next
		cb.open(now)
	}
}

// Release returns a permit without an outcome, e.g. when the call was
// rejected downstream before the backend was contacted. A released probe lets
// the next caller probe instead.
func (cb *CircuitBreaker) Release(p Permit) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if p.probe && p.epoch == cb.epoch && cb.state == StateHalfOpen {
		cb.probeInFlight = false
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.unlockAndNotify()
	cb.advance(cb.config.Clock())
	return cb.state
}

// Name returns the circuit breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Reset forces the breaker back to Closed with base cooldown.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.unlockAndNotify()

	cb.failures = cb.failures[:0]
	cb.probeInFlight = false
	cb.currentCooldown = cb.config.BaseCooldown
	cb.transitionTo(StateClosed)
}

// BreakerSnapshot is a read-only view of breaker state.
type BreakerSnapshot struct {
	Name            string        `json:"name"`
	State           string        `json:"state"`
	FailureCount    int           `json:"failure_count"`
	LastFailureAt   time.Time     `json:"last_failure_at,omitempty"`
	OpenedAt        time.Time     `json:"opened_at,omitempty"`
	CurrentCooldown time.Duration `json:"current_cooldown"`
	ProbeInFlight   bool          `json:"probe_in_flight"`
}

// Snapshot returns a consistent view of the breaker.
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.unlockAndNotify()

	now := cb.config.Clock()
	cb.advance(now)
	cb.pruneFailures(now)

	return BreakerSnapshot{
		Name:            cb.name,
		State:           cb.state.String(),
		FailureCount:    len(cb.failures),
		LastFailureAt:   cb.lastFailureAt,
		OpenedAt:        cb.openedAt,
		CurrentCooldown: cb.currentCooldown,
		ProbeInFlight:   cb.probeInFlight,
	}
}

// advance moves Open to HalfOpen once the cooldown has elapsed. Callers must
// hold cb.mu.
func (cb *CircuitBreaker) advance(now time.Time) {
	if cb.state == StateOpen && now.Sub(cb.openedAt) >= cb.currentCooldown {
		cb.probeInFlight = false
		cb.transitionTo(StateHalfOpen)
	}
}

func (cb *CircuitBreaker) open(now time.Time) {
	cb.openedAt = now
	cb.transitionTo(StateOpen)
}

// pruneFailures drops failures that fell out of the window. Callers must
// hold cb.mu.
func (cb *CircuitBreaker) pruneFailures(now time.Time) {
	if cb.config.Window <= 0 || cb.state != StateClosed {
		return
	}
	cutoff := now.Add(-cb.config.Window)
	i := 0
	for i < len(cb.failures) && !cb.failures[i].After(cutoff) {
		i++
	}
	if i > 0 {
		cb.failures = append(cb.failures[:0], cb.failures[i:]...)
	}
}

func (cb *CircuitBreaker) transitionTo(newState CircuitState) {
	if cb.state == newState {
		return
	}

	oldState := cb.state
	cb.state = newState
	cb.epoch++

	if cb.onStateChange != nil {
		cb.pending = append(cb.pending, transition{from: oldState, to: newState})
	}
}

// unlockAndNotify releases cb.mu and then runs the state-change callback for
// transitions made while it was held.
func (cb *CircuitBreaker) unlockAndNotify() {
	pending := cb.pending
	cb.pending = nil
	fn := cb.onStateChange
	cb.mu.Unlock()

	for _, t := range pending {
		fn(cb.name, t.from, t.to)
	}
}
