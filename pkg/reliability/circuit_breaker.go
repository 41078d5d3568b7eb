package reliability

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitBreakerOpen is returned while the breaker is refusing calls.
var ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

// CircuitBreakerState represents the state of the circuit breaker.
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateHalfOpen
	StateOpen
)

// CircuitBreaker trips after maxFailures consecutive failures and lets a
// single probe call through once the cool-down has elapsed. It guards the
// completion service so a dead upstream does not burn the exponential
// retry budget on every message.
type CircuitBreaker struct {
	mu              sync.Mutex
	maxFailures     int
	cooldown        time.Duration
	failures        int
	lastFailureTime time.Time
	state           CircuitBreakerState
}

// NewCircuitBreaker creates a circuit breaker.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration) (*CircuitBreaker, error) {
	if maxFailures <= 0 {
		return nil, errors.New("maxFailures must be greater than 0")
	}
	if cooldown <= 0 {
		return nil, errors.New("cooldown must be greater than 0")
	}
	return &CircuitBreaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		state:       StateClosed,
	}, nil
}

// Execute runs fn unless the breaker is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if time.Since(cb.lastFailureTime) > cb.cooldown {
			cb.state = StateHalfOpen
			return nil
		}
		return ErrCircuitBreakerOpen
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.failures = 0
		cb.state = StateClosed
		return
	}

	cb.failures++
	cb.lastFailureTime = time.Now()
	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		cb.state = StateOpen
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset manually closes the breaker.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.state = StateClosed
}
