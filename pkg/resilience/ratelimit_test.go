package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func limiterWithClock(rate int, interval time.Duration) (*RateLimiter, *fakeClock) {
	clock := newFakeClock()
	rl := NewRateLimiter(rate, interval)
	rl.now = clock.Now
	rl.last = clock.Now()
	return rl, clock
}

func TestRateLimiter_Burst(t *testing.T) {
	rl, clock := limiterWithClock(2, 100*time.Millisecond)

	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())

	clock.Advance(50 * time.Millisecond)
	assert.False(t, rl.Allow())

	clock.Advance(50 * time.Millisecond)
	assert.True(t, rl.Allow())
}

func TestRateLimiter_RefillCapsAtRate(t *testing.T) {
	rl, clock := limiterWithClock(2, time.Second)
	rl.Allow()
	rl.Allow()

	clock.Advance(time.Hour)

	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())
}

func TestRateLimiter_Wait(t *testing.T) {
	rl := NewRateLimiter(1, 100*time.Millisecond)
	rl.Allow()

	start := time.Now()
	err := rl.Wait(context.Background())

	assert.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestRateLimiter_WaitWithTimeout(t *testing.T) {
	rl := NewRateLimiter(1, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	rl.Allow()

	assert.Equal(t, context.DeadlineExceeded, rl.Wait(ctx))
}
