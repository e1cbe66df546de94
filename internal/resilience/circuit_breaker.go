package resilience

import (
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	StateClosed   CircuitState = iota // Requests pass
	StateOpen                         // Requests are rejected until the reset timeout passes
	StateHalfOpen                     // A few probe requests test whether the dependency recovered
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return "unknown"
}

// DefaultHalfOpenProbes is the number of successful probes that close a half-open circuit
const DefaultHalfOpenProbes = 3

// StateListener is told about every state change, outside the breaker's lock
type StateListener func(name string, from, to CircuitState)

// BreakerOption configures a CircuitBreaker
type BreakerOption func(*CircuitBreaker)

// WithStateListener registers fn for state changes
func WithStateListener(fn StateListener) BreakerOption {
	return func(cb *CircuitBreaker) { cb.listener = fn }
}

// WithHalfOpenProbes sets how many probes run, and must succeed, while half-open
func WithHalfOpenProbes(n int) BreakerOption {
	return func(cb *CircuitBreaker) {
		if n > 0 {
			cb.probes = n
		}
	}
}

// BreakerStats is a point-in-time copy of a breaker's counters
type BreakerStats struct {
	State               CircuitState
	Requests            int64
	Failures            int64
	ConsecutiveFailures int
}

// FailureRate returns the share of failed requests in percent
func (s BreakerStats) FailureRate() float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.Failures) / float64(s.Requests) * 100.0
}

// CircuitBreaker stops using a dependency after repeated failures and lets a few probes
// through once resetTimeout has passed. Callers ask Allow before each attempt and then
// report exactly one of Success, Failure or Release.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	probes       int
	listener     StateListener
	now          func() time.Time

	mu          sync.Mutex
	state       CircuitState
	consecutive int // failures while closed
	inFlight    int // probes handed out while half-open
	succeeded   int // probes that succeeded while half-open
	openedAt    time.Time
	requests    int64
	failures    int64
}

// NewCircuitBreaker creates a closed breaker that opens after maxFailures consecutive failures
func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration, opts ...BreakerOption) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 1
	}
	cb := &CircuitBreaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		probes:       DefaultHalfOpenProbes,
		now:          time.Now,
		state:        StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Name returns the name the breaker was created with
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Allow reports whether an attempt may start
func (cb *CircuitBreaker) Allow() bool {
	return cb.update(func() bool {
		cb.halfOpenIfDue()

		switch cb.state {
		case StateClosed:
			return true
		case StateHalfOpen:
			if cb.inFlight < cb.probes {
				cb.inFlight++
				return true
			}
		}
		return false
	})
}

// Success reports an attempt that worked
func (cb *CircuitBreaker) Success() {
	cb.update(func() bool {
		cb.requests++
		cb.halfOpenIfDue()

		switch cb.state {
		case StateClosed:
			cb.consecutive = 0
		case StateHalfOpen:
			cb.succeeded++
			if cb.succeeded >= cb.probes {
				cb.close()
			}
		}
		return true
	})
}

// Failure reports an attempt that failed. Any failure while half-open reopens the circuit.
func (cb *CircuitBreaker) Failure() {
	cb.update(func() bool {
		cb.requests++
		cb.failures++
		cb.halfOpenIfDue()

		switch cb.state {
		case StateClosed:
			cb.consecutive++
			if cb.consecutive >= cb.maxFailures {
				cb.open()
			}
		case StateHalfOpen:
			cb.open()
		case StateOpen:
			cb.openedAt = cb.now()
		}
		return true
	})
}

// Release gives back an attempt that ended without telling anything about the dependency,
// such as one that was cancelled. A half-open probe slot becomes free again.
func (cb *CircuitBreaker) Release() {
	cb.update(func() bool {
		if cb.state == StateHalfOpen && cb.inFlight > 0 {
			cb.inFlight--
		}
		return true
	})
}

// State returns the current state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns a copy of the breaker's counters
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerStats{
		State:               cb.state,
		Requests:            cb.requests,
		Failures:            cb.failures,
		ConsecutiveFailures: cb.consecutive,
	}
}

// Reset closes the circuit and clears every counter
func (cb *CircuitBreaker) Reset() {
	cb.update(func() bool {
		cb.close()
		cb.requests = 0
		cb.failures = 0
		return true
	})
}

// update runs fn under the lock and notifies the listener if the state changed
func (cb *CircuitBreaker) update(fn func() bool) bool {
	cb.mu.Lock()
	from := cb.state
	result := fn()
	to := cb.state
	cb.mu.Unlock()

	if from != to && cb.listener != nil {
		cb.listener(cb.name, from, to)
	}
	return result
}

func (cb *CircuitBreaker) halfOpenIfDue() {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		cb.state = StateHalfOpen
		cb.inFlight = 0
		cb.succeeded = 0
	}
}

func (cb *CircuitBreaker) open() {
	cb.state = StateOpen
	cb.openedAt = cb.now()
	cb.inFlight = 0
	cb.succeeded = 0
}

func (cb *CircuitBreaker) close() {
	cb.state = StateClosed
	cb.consecutive = 0
	cb.inFlight = 0
	cb.succeeded = 0
}
