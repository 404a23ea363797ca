package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var errUpstream = errors.New("provider 502")

func failing() error { return errUpstream }

func trip(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_ = cb.Execute(failing)
	}
}

func TestCircuitBreaker_Closed(t *testing.T) {
	cb := NewCircuitBreaker(3, 5*time.Second)

	err := cb.Execute(func() error { return nil })

	assert.NoError(t, err)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(3, 5*time.Second)

	trip(cb, 2)
	require.NoError(t, cb.Execute(func() error { return nil }))
	trip(cb, 2)
	assert.Equal(t, StateClosed, cb.GetState(), "a success resets the streak")

	trip(cb, 1)
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_ProbeClosesCircuit(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(2, time.Minute)
	cb.now = clock.Now

	trip(cb, 2)
	clock.Advance(59 * time.Second)
	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen)

	clock.Advance(time.Second)
	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(3, time.Minute)
	cb.now = clock.Now

	trip(cb, 3)
	clock.Advance(time.Minute)

	assert.ErrorIs(t, cb.Execute(failing), errUpstream)
	assert.Equal(t, StateOpen, cb.GetState())
	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen)
}

func TestCircuitBreaker_SingleProbeAtATime(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(1, time.Second)
	cb.now = clock.Now

	trip(cb, 1)
	clock.Advance(time.Second)

	inProbe := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(func() error {
			close(inProbe)
			<-release
			return nil
		})
	}()

	<-inProbe
	assert.Equal(t, StateHalfOpen, cb.GetState())
	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen)

	close(release)
	assert.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_FailurePredicate(t *testing.T) {
	badInput := errors.New("bad input")
	cb := NewCircuitBreaker(1, time.Minute).WithFailurePredicate(func(err error) bool {
		return !errors.Is(err, badInput)
	})

	err := cb.Execute(func() error { return badInput })
	assert.ErrorIs(t, err, badInput)
	assert.Equal(t, StateClosed, cb.GetState())

	_ = cb.Execute(failing)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Hour)

	trip(cb, 2)
	assert.Equal(t, StateOpen, cb.GetState())

	cb.Reset()

	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, "closed", cb.GetState().String())
	assert.NoError(t, cb.Execute(func() error { return nil }))
}

func TestCircuitBreaker_ZeroThresholdOpensOnFirstFailure(t *testing.T) {
	cb := NewCircuitBreaker(0, time.Hour)

	trip(cb, 1)

	assert.Equal(t, StateOpen, cb.GetState())
}
