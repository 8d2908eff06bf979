package redis

import (
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = 0 // requests pass through
	StateOpen     State = 1 // requests rejected immediately
	StateHalfOpen State = 2 // one probe request allowed through
)

func (s State) String() string {
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

// CircuitBreaker stops calling Redis after repeated failures so a dead
// cache costs one rejected call instead of one dial timeout per fetch.
// After maxFailures consecutive failures it opens for resetTimeout, then
// lets a single probe through: success closes it, failure reopens it.
// Calls arriving while the probe is in flight are rejected.
type CircuitBreaker struct {
	mu           sync.Mutex
	state        State
	failures     int
	maxFailures  int
	resetTimeout time.Duration
	openedAt     time.Time
	probing      bool
	now          func() time.Time

	// OnStateChange is called on transitions, with the lock held.
	OnStateChange func(from, to State)
}

// NewCircuitBreaker creates a circuit breaker.
// maxFailures: consecutive failures before opening (e.g., 3)
// resetTimeout: time to wait before the half-open probe (e.g., 30s)
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
		now:          time.Now,
	}
}

// Execute runs fn through the circuit breaker.
// Returns ErrCircuitOpen without calling fn when the breaker rejects.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn()
	cb.after(err)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.probing = true
	case StateHalfOpen:
		if cb.probing {
			return ErrCircuitOpen
		}
		cb.probing = true
	}
	return nil
}

func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	wasProbe := cb.state == StateHalfOpen
	cb.probing = false

	if err != nil {
		cb.failures++
		if wasProbe || cb.failures >= cb.maxFailures {
			cb.openedAt = cb.now()
			cb.transition(StateOpen)
		}
		return
	}
	if wasProbe {
		cb.transition(StateClosed)
	}
	cb.failures = 0
}

// CurrentState returns the current circuit breaker state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if to == StateClosed {
		cb.failures = 0
	}
	if cb.OnStateChange != nil {
		cb.OnStateChange(from, to)
	}
}
