package speech

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"chorewalk/pkg/apperr"
	"chorewalk/pkg/cache"
	"chorewalk/pkg/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	calls atomic.Int32
	fn    func(ctx context.Context, req Request) (*Result, error)
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Transcribe(ctx context.Context, req Request) (*Result, error) {
	s.calls.Add(1)
	return s.fn(ctx, req)
}

func TestGuarded_CachesTranscripts(t *testing.T) {
	inner := &stubProvider{fn: func(ctx context.Context, req Request) (*Result, error) {
		return &Result{Text: "scrub tub", Provider: "stub"}, nil
	}}
	g := NewGuarded(inner, GuardOptions{Cache: cache.NewMemoryCache(time.Hour)})
	req := Request{Audio: []byte("same audio"), MIMEType: "audio/webm"}

	first, err := g.Transcribe(context.Background(), req)
	require.NoError(t, err)
	second, err := g.Transcribe(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "scrub tub", first.Text)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestGuarded_DoesNotCacheEmptyText(t *testing.T) {
	inner := &stubProvider{fn: func(ctx context.Context, req Request) (*Result, error) {
		return &Result{Text: ""}, nil
	}}
	g := NewGuarded(inner, GuardOptions{Cache: cache.NewMemoryCache(0)})
	req := Request{Audio: []byte("silence")}

	_, _ = g.Transcribe(context.Background(), req)
	_, _ = g.Transcribe(context.Background(), req)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestGuarded_OpensCircuitOnTransientFailures(t *testing.T) {
	inner := &stubProvider{fn: func(ctx context.Context, req Request) (*Result, error) {
		return nil, apperr.New(apperr.KindProviderUnavailable, "upstream 503")
	}}
	g := NewGuarded(inner, GuardOptions{Breaker: resilience.NewCircuitBreaker(2, time.Hour)})
	req := Request{Audio: []byte("a")}

	for i := 0; i < 2; i++ {
		_, err := g.Transcribe(context.Background(), req)
		assert.Equal(t, apperr.KindProviderUnavailable, apperr.KindOf(err))
	}
	assert.Equal(t, resilience.StateOpen, g.BreakerState())

	_, err := g.Transcribe(context.Background(), req)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, apperr.KindProviderUnavailable, apperr.KindOf(err))
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestGuarded_InputErrorsDoNotTripBreaker(t *testing.T) {
	inner := &stubProvider{fn: func(ctx context.Context, req Request) (*Result, error) {
		return nil, apperr.New(apperr.KindInvalidInput, "bad audio")
	}}
	g := NewGuarded(inner, GuardOptions{Breaker: resilience.NewCircuitBreaker(1, time.Hour)})

	for i := 0; i < 3; i++ {
		_, err := g.Transcribe(context.Background(), Request{Audio: []byte("a")})
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	}
	assert.Equal(t, resilience.StateClosed, g.BreakerState())
}

func TestGuarded_AppliesTimeout(t *testing.T) {
	inner := &stubProvider{fn: func(ctx context.Context, req Request) (*Result, error) {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return &Result{Text: "ok"}, nil
	}}
	g := NewGuarded(inner, GuardOptions{Timeout: time.Second})

	_, err := g.Transcribe(context.Background(), Request{Audio: []byte("a")})
	require.NoError(t, err)
}
