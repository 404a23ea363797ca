// Package cache stores provider transcripts keyed by the audio that produced
// them, so identical uploads are transcribed once.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired
var ErrMiss = errors.New("cache miss")

// Cache holds JSON-encoded values
type Cache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any) error
	SetWithTTL(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}

// AudioDigest returns the hex SHA-256 of raw audio bytes
func AudioDigest(audio []byte) string {
	sum := sha256.Sum256(audio)
	return hex.EncodeToString(sum[:])
}

// TranscriptCacheKey keys a transcript by provider and audio digest
func TranscriptCacheKey(provider, digest string) string {
	return strings.Join([]string{"transcript", provider, digest}, ":")
}
