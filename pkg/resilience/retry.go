package resilience

import (
	"context"
	"math"
	"time"

	"chorewalk/pkg/logger"

	"go.uber.org/zap"
)

type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// Retryable reports whether err is worth another attempt. Nil retries everything.
	Retryable func(error) bool
}

func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
	}
}

// backoff is the pause before the given retry, counting from zero
func (c *RetryConfig) backoff(retry int) time.Duration {
	d := float64(c.InitialInterval) * math.Pow(c.Multiplier, float64(retry))
	if c.MaxInterval > 0 && d > float64(c.MaxInterval) {
		return c.MaxInterval
	}
	return time.Duration(d)
}

// RetryWithExponentialBackoff calls fn until it succeeds, returns a
// non-retryable error, runs out of attempts or ctx is done. The last error
// from fn is returned; a cancelled wait returns ctx.Err().
func RetryWithExponentialBackoff(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	attempts := max(config.MaxAttempts, 1)

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := config.backoff(attempt - 1)
			logger.Debug("Retrying after failure",
				zap.Int("attempt", attempt+1),
				zap.Duration("wait", wait),
				zap.Error(err))
			if werr := sleep(ctx, wait); werr != nil {
				return werr
			}
		} else if cerr := ctx.Err(); cerr != nil {
			return cerr
		}

		if err = fn(); err == nil {
			return nil
		}
		if config.Retryable != nil && !config.Retryable(err) {
			return err
		}
	}

	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
