package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Cache = (*RedisCache)(nil)

func TestTranscriptCacheKey(t *testing.T) {
	assert.Equal(t, "transcript:openai:deadbeef", TranscriptCacheKey("openai", "deadbeef"))
}

func TestAudioDigest(t *testing.T) {
	// sha256("")
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", AudioDigest(nil))
	assert.NotEqual(t, AudioDigest([]byte{1}), AudioDigest([]byte{2}))
}

func TestRedisCache_Namespace(t *testing.T) {
	r := &RedisCache{namespace: "test"}
	assert.Equal(t, "test:transcript:google:ab", r.key(TranscriptCacheKey("google", "ab")))
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	_, err := NewRedisCache(Options{Addr: "127.0.0.1:1", TTL: time.Minute})
	assert.Error(t, err)
}

func TestRedisCache_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	c, err := NewRedisCache(Options{Addr: addr, TTL: time.Minute, Namespace: "chorewalk-test"})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	key := TranscriptCacheKey("openai", AudioDigest([]byte(t.Name())))
	defer c.Delete(ctx, key)

	var out map[string]string
	assert.True(t, errors.Is(c.Get(ctx, key, &out), ErrMiss))

	require.NoError(t, c.Set(ctx, key, map[string]string{"text": "dust the shelves"}))
	require.NoError(t, c.Get(ctx, key, &out))
	assert.Equal(t, "dust the shelves", out["text"])

	ok, err := c.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, key))
	ok, err = c.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}
