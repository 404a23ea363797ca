//go:build portaudio

package capture

import (
	"context"
	"errors"
	"sync"

	"chorewalk/pkg/apperr"
	"chorewalk/pkg/audio"
	"chorewalk/pkg/logger"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"
)

const defaultFramesPerBuffer = 1024

// Microphone captures from the default PortAudio input device.
type Microphone struct {
	FramesPerBuffer int
}

// NewMicrophone returns the default input device.
func NewMicrophone() Device {
	return &Microphone{FramesPerBuffer: defaultFramesPerBuffer}
}

func (m *Microphone) Open(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, apperr.Wrap(apperr.KindDeviceUnavailable, "audio subsystem unavailable", err)
	}

	if _, err := portaudio.DefaultInputDevice(); err != nil {
		portaudio.Terminate()
		return nil, apperr.Wrap(apperr.KindDeviceUnavailable, apperr.UserMessage(apperr.KindDeviceUnavailable), err)
	}

	// Voice processing is left to the host audio stack; PortAudio has no equivalent switches.
	logger.Debug("Requested voice processing",
		zap.Bool("echo_cancellation", c.EchoCancellation),
		zap.Bool("noise_suppression", c.NoiseSuppression),
		zap.Bool("auto_gain_control", c.AutoGainControl))

	frames := m.FramesPerBuffer
	if frames <= 0 {
		frames = defaultFramesPerBuffer
	}
	in := make([]int16, frames*c.Channels)

	stream, err := portaudio.OpenDefaultStream(c.Channels, 0, float64(c.SampleRate), frames, in)
	if err != nil {
		portaudio.Terminate()
		return nil, mapPortAudioError(err)
	}

	return &micStream{
		stream: stream,
		in:     in,
		format: audio.Format{SampleRate: c.SampleRate, Channels: c.Channels},
		done:   make(chan struct{}),
	}, nil
}

func mapPortAudioError(err error) error {
	switch {
	case errors.Is(err, portaudio.DeviceUnavailable):
		return apperr.Wrap(apperr.KindDeviceBusy, apperr.UserMessage(apperr.KindDeviceBusy), err)
	case errors.Is(err, portaudio.InvalidDevice):
		return apperr.Wrap(apperr.KindDeviceUnavailable, apperr.UserMessage(apperr.KindDeviceUnavailable), err)
	default:
		return apperr.Wrap(apperr.KindDeviceError, "failed to open input stream", err)
	}
}

type micStream struct {
	stream *portaudio.Stream
	in     []int16
	format audio.Format

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	closeErr  error
}

func (s *micStream) Format() audio.Format {
	return s.format
}

func (s *micStream) Start(onData func([]byte), onError func(error)) error {
	if err := s.stream.Start(); err != nil {
		return mapPortAudioError(err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.done:
				return
			default:
			}

			if err := s.stream.Read(); err != nil {
				if errors.Is(err, portaudio.InputOverflowed) {
					logger.Warn("Input overflowed, samples dropped")
					continue
				}
				onError(apperr.Wrap(apperr.KindDeviceError, "microphone read failed", err))
				return
			}

			samples := make([]int, len(s.in))
			for i, v := range s.in {
				samples[i] = int(v)
			}
			onData(audio.PCM16Bytes(samples))
		}
	}()

	return nil
}

func (s *micStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		if err := s.stream.Stop(); err != nil {
			s.closeErr = err
		}
		if err := s.stream.Close(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
		portaudio.Terminate()
	})
	return s.closeErr
}
