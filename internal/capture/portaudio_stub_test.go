//go:build !portaudio

package capture

import (
	"context"
	"testing"

	"chorewalk/pkg/apperr"

	"github.com/stretchr/testify/assert"
)

func TestMicrophoneStub_ReportsUnavailable(t *testing.T) {
	_, err := NewMicrophone().Open(context.Background(), DefaultConstraints())
	assert.ErrorIs(t, err, apperr.ErrDeviceUnavailable)
}
