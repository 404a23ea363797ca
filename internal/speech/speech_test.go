package speech

import (
	"net/http"
	"testing"

	"chorewalk/pkg/apperr"
	"chorewalk/pkg/audio"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainer(t *testing.T) {
	data, mimeType, err := Container([]byte("ogg"), "audio/ogg")
	require.NoError(t, err)
	assert.Equal(t, []byte("ogg"), data)
	assert.Equal(t, "audio/ogg", mimeType)

	pcm := audio.PCM16Bytes([]int{1, 2, 3, 4})
	data, mimeType, err = Container(pcm, "audio/L16;rate=8000;channels=1")
	require.NoError(t, err)
	assert.Equal(t, "audio/wav", mimeType)
	assert.Equal(t, "RIFF", string(data[:4]))
}

func TestLanguageBase(t *testing.T) {
	assert.Equal(t, "en", LanguageBase("en-US"))
	assert.Equal(t, "pt", LanguageBase("pt_BR"))
	assert.Equal(t, "ru", LanguageBase("RU"))
	assert.Equal(t, "", LanguageBase(""))
}

func TestStatusError(t *testing.T) {
	assert.Equal(t, apperr.KindRateLimited, apperr.KindOf(StatusError("X", http.StatusTooManyRequests, "slow down")))
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(StatusError("X", http.StatusBadRequest, "bad")))
	assert.Equal(t, apperr.KindProviderUnavailable, apperr.KindOf(StatusError("X", http.StatusBadGateway, "down")))
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(StatusError("X", http.StatusUnauthorized, "key")))
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(apperr.New(apperr.KindInvalidInput, "bad")))
	assert.True(t, IsTransient(apperr.New(apperr.KindProviderUnavailable, "down")))
	assert.True(t, IsTransient(assert.AnError))
}
