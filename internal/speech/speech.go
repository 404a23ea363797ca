// Package speech defines the provider-neutral speech-to-text contract used
// by the transcription endpoint and the async worker.
package speech

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"chorewalk/pkg/apperr"
	"chorewalk/pkg/audio"
)

// Request is one audio payload to transcribe
type Request struct {
	Audio    []byte
	MIMEType string
	// Language is a BCP-47 tag such as en-US; empty means the provider default.
	Language string
}

// Result is a provider transcription. Confidence is nil when the provider does not report one.
type Result struct {
	Text       string
	Confidence *float64
	Provider   string
}

// Provider turns audio into text
type Provider interface {
	Name() string
	Transcribe(ctx context.Context, req Request) (*Result, error)
}

// Container returns audio ready for providers that need a self-describing file:
// raw L16 PCM is wrapped in WAV, anything else passes through unchanged.
func Container(data []byte, mimeType string) ([]byte, string, error) {
	f, ok := audio.ParseL16(mimeType)
	if !ok {
		return data, mimeType, nil
	}
	wav, err := audio.EncodeWAV(data, f)
	if err != nil {
		return nil, "", fmt.Errorf("failed to wrap pcm: %w", err)
	}
	return wav, "audio/wav", nil
}

// LanguageBase returns the primary subtag of a BCP-47 tag ("en-US" -> "en").
func LanguageBase(tag string) string {
	tag = strings.TrimSpace(tag)
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}

// StatusError classifies an upstream HTTP status into an apperr kind.
func StatusError(provider string, status int, message string) error {
	kind := apperr.KindInternal
	switch {
	case status == http.StatusTooManyRequests:
		kind = apperr.KindRateLimited
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		kind = apperr.KindInvalidInput
	case status >= 500:
		kind = apperr.KindProviderUnavailable
	}
	return apperr.Newf(kind, "%s API error (status %d): %s", provider, status, message)
}

// IsTransient reports whether a provider error is worth counting against the
// circuit breaker. Client-side input errors are not.
func IsTransient(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindInvalidInput, apperr.KindEmptyTranscription, apperr.KindRecordingTooShort:
		return false
	default:
		return true
	}
}
