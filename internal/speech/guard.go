package speech

import (
	"context"
	"errors"
	"time"

	"chorewalk/pkg/apperr"
	"chorewalk/pkg/cache"
	"chorewalk/pkg/logger"
	"chorewalk/pkg/resilience"

	"go.uber.org/zap"
)

type GuardOptions struct {
	// Cache is optional; transcripts are keyed by provider and audio digest.
	Cache    cache.Cache
	Breaker  *resilience.CircuitBreaker
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Guarded wraps a Provider with a transcript cache, a circuit breaker and a call timeout
type Guarded struct {
	inner    Provider
	cache    cache.Cache
	breaker  *resilience.CircuitBreaker
	timeout  time.Duration
	cacheTTL time.Duration
}

func NewGuarded(inner Provider, opts GuardOptions) *Guarded {
	breaker := opts.Breaker
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(5, 30*time.Second)
	}
	breaker.WithFailurePredicate(IsTransient)

	return &Guarded{
		inner:    inner,
		cache:    opts.Cache,
		breaker:  breaker,
		timeout:  opts.Timeout,
		cacheTTL: opts.CacheTTL,
	}
}

func (g *Guarded) Name() string { return g.inner.Name() }

// BreakerState exposes the circuit state for health reporting
func (g *Guarded) BreakerState() resilience.State {
	return g.breaker.GetState()
}

func (g *Guarded) Transcribe(ctx context.Context, req Request) (*Result, error) {
	key := cache.TranscriptCacheKey(g.inner.Name(), cache.AudioDigest(req.Audio))

	if g.cache != nil {
		var cached Result
		err := g.cache.Get(ctx, key, &cached)
		if err == nil {
			logger.Debug("Transcript cache hit", zap.String("key", key))
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			logger.Warn("Transcript cache lookup failed", zap.Error(err))
		}
	}

	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	var result *Result
	err := g.breaker.Execute(func() error {
		var err error
		result, err = g.inner.Transcribe(callCtx, req)
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		logger.Warn("Speech provider circuit open", zap.String("provider", g.inner.Name()))
		return nil, apperr.Wrap(apperr.KindProviderUnavailable, "speech provider is temporarily disabled", err)
	}
	if err != nil {
		return nil, err
	}

	if g.cache != nil && result.Text != "" {
		var setErr error
		if g.cacheTTL > 0 {
			setErr = g.cache.SetWithTTL(ctx, key, result, g.cacheTTL)
		} else {
			setErr = g.cache.Set(ctx, key, result)
		}
		if setErr != nil {
			logger.Warn("Failed to cache transcript", zap.Error(setErr))
		}
	}

	return result, nil
}
