package resilience

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket holding up to rate tokens, refilled
// continuously at one token per interval.
type RateLimiter struct {
	mu       sync.Mutex
	capacity float64
	tokens   float64
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

func NewRateLimiter(rate int, interval time.Duration) *RateLimiter {
	if rate <= 0 {
		rate = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &RateLimiter{
		capacity: float64(rate),
		tokens:   float64(rate),
		interval: interval,
		last:     time.Now(),
		now:      time.Now,
	}
}

// refill must be called with mu held
func (rl *RateLimiter) refill() {
	now := rl.now()
	if elapsed := now.Sub(rl.last); elapsed > 0 {
		rl.tokens = min(rl.capacity, rl.tokens+float64(elapsed)/float64(rl.interval))
	}
	rl.last = now
}

// Allow takes a token if one is available
func (rl *RateLimiter) Allow() bool {
	_, ok := rl.reserve()
	return ok
}

// reserve takes a token, or reports how long until one is available
func (rl *RateLimiter) reserve() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	if rl.tokens >= 1 {
		rl.tokens--
		return 0, true
	}
	return time.Duration((1 - rl.tokens) * float64(rl.interval)), false
}

// Wait blocks until a token is taken or ctx is done
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		wait, ok := rl.reserve()
		if ok {
			return nil
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}
