//go:build !portaudio

package capture

import (
	"context"

	"chorewalk/pkg/apperr"
)

type unavailableMicrophone struct{}

// NewMicrophone returns a device that always reports no microphone.
// Build with -tags portaudio for real capture.
func NewMicrophone() Device {
	return unavailableMicrophone{}
}

func (unavailableMicrophone) Open(context.Context, Constraints) (Stream, error) {
	return nil, apperr.New(apperr.KindDeviceUnavailable, "built without microphone support (rebuild with -tags portaudio)")
}
