// Package resilience guards calls to flaky upstreams with a circuit breaker,
// exponential-backoff retries and a token-bucket rate limiter.
package resilience

import (
	"errors"
	"sync"
	"time"

	"chorewalk/pkg/logger"

	"go.uber.org/zap"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker opens after maxFailures consecutive failures and rejects
// calls for the cooldown. After that a single probe call decides whether the
// circuit closes again.
type CircuitBreaker struct {
	mu          sync.Mutex
	maxFailures uint32
	cooldown    time.Duration
	isFailure   func(error) bool
	now         func() time.Time

	state       State
	consecutive uint32
	openedAt    time.Time
	probing     bool
}

func NewCircuitBreaker(maxFailures uint32, cooldown time.Duration) *CircuitBreaker {
	if maxFailures == 0 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		isFailure:   func(err error) bool { return err != nil },
		now:         time.Now,
		state:       StateClosed,
	}
}

// WithFailurePredicate limits which errors count toward opening the circuit.
// Errors rejected by fn are still returned to the caller.
func (cb *CircuitBreaker) WithFailurePredicate(fn func(error) bool) *CircuitBreaker {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.isFailure = func(err error) bool { return err != nil && fn(err) }
	return cb
}

// Execute runs fn unless the circuit rejects the call with ErrCircuitOpen
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.probing = true
	case StateHalfOpen:
		if cb.probing {
			return ErrCircuitOpen
		}
		cb.probing = true
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	probe := cb.state == StateHalfOpen
	if probe {
		cb.probing = false
	}

	if !cb.isFailure(err) {
		cb.consecutive = 0
		if probe {
			cb.setState(StateClosed)
		}
		return
	}

	cb.consecutive++
	if probe || cb.consecutive >= cb.maxFailures {
		cb.openedAt = cb.now()
		cb.setState(StateOpen)
	}
}

// setState must be called with mu held
func (cb *CircuitBreaker) setState(next State) {
	if cb.state == next {
		return
	}
	prev := cb.state
	cb.state = next

	fields := []zap.Field{
		zap.String("from", prev.String()),
		zap.String("to", next.String()),
		zap.Uint32("consecutive_failures", cb.consecutive),
	}
	if next == StateOpen {
		logger.Warn("Circuit breaker opened", append(fields, zap.Duration("cooldown", cb.cooldown))...)
		return
	}
	logger.Info("Circuit breaker state changed", fields...)
}

func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the circuit and forgets past failures
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutive = 0
	cb.probing = false
	cb.setState(StateClosed)
}
