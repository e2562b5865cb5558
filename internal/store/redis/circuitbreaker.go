package redis

import (
	"errors"
	"sync"
	"time"
)

// State is the breaker's position in its recovery cycle.
type State int

const (
	StateClosed   State = iota // publishes pass through
	StateOpen                  // publishes dropped without touching the connection
	StateHalfOpen              // one probe publish decides close or reopen
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

// ErrCircuitOpen is returned while the breaker is dropping publishes.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitBreaker keeps a down Redis from stalling the trading loop.
// maxFailures consecutive publish failures open the breaker; telemetry is
// then dropped until resetTimeout has passed, after which a single probe
// publish either closes the breaker again or reopens it.
type CircuitBreaker struct {
	mu            sync.Mutex
	state         State
	failures      int
	maxFailures   int
	resetTimeout  time.Duration
	lastFailureAt time.Time

	// OnStateChange, when set, observes every transition. Called with the
	// breaker's lock held; observers must not call back in.
	OnStateChange func(from, to State)
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
	}
}

// Execute runs one publish attempt through the breaker. While open it
// fails fast with ErrCircuitOpen and fn never runs.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.record(err)
	return err
}

// CurrentState returns the breaker's state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// allow decides whether the next attempt may run, moving an expired open
// breaker to half-open on the way.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen {
		if time.Since(cb.lastFailureAt) <= cb.resetTimeout {
			return false
		}
		cb.transition(StateHalfOpen)
	}
	return true
}

// record folds one attempt's outcome into the failure count and state.
func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if cb.state == StateHalfOpen {
			cb.transition(StateClosed)
		}
		cb.failures = 0
		return
	}

	cb.failures++
	cb.lastFailureAt = time.Now()
	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		cb.transition(StateOpen)
	}
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	if to == StateClosed {
		cb.failures = 0
	}
	if cb.OnStateChange != nil {
		cb.OnStateChange(from, to)
	}
}
