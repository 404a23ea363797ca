package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chorewalk/pkg/apperr"
	"chorewalk/pkg/audio"
	"chorewalk/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultChunkInterval is how often buffered audio is emitted as a chunk
const DefaultChunkInterval = 500 * time.Millisecond

// ErrAlreadyOpen is returned when Open is called twice on one session
var ErrAlreadyOpen = errors.New("capture session already opened")

// Constraints are the processing options requested from the device
type Constraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
	SampleRate       int
	Channels         int
}

// DefaultConstraints enables all voice processing at 16 kHz mono
func DefaultConstraints() Constraints {
	return Constraints{
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
		SampleRate:       16000,
		Channels:         1,
	}
}

// AudioChunk is one slice of encoded audio. Ordinals increase strictly within a session.
type AudioChunk struct {
	Data    []byte
	Ordinal int
}

// Device opens audio streams
type Device interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is an opened device. Start pushes PCM to onData until Close;
// onError reports a failure after which no more data arrives.
// Close must be safe to call from any goroutine except the one delivering callbacks.
type Stream interface {
	Start(onData func([]byte), onError func(error)) error
	Format() audio.Format
	Close() error
}

type sessionState int

const (
	sessionNew sessionState = iota
	sessionOpen
	sessionClosed
	sessionFailed
)

// Session owns one device stream and turns its PCM into timed chunks.
// Chunk and error callbacks are delivered from a single goroutine in production order.
type Session struct {
	id       string
	device   Device
	interval time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	state   sessionState
	closing bool
	stream  Stream
	mime    string
	pending []byte
	ordinal int
	onChunk func(AudioChunk)
	onError func(error)

	stop        chan struct{}
	emitterDone chan struct{}
	discard     bool
	stopOnce    sync.Once
	releaseOnce sync.Once
}

// NewSession prepares a session on device. interval <= 0 uses DefaultChunkInterval.
func NewSession(device Device, interval time.Duration) *Session {
	if interval <= 0 {
		interval = DefaultChunkInterval
	}
	id := uuid.New().String()
	return &Session{
		id:          id,
		device:      device,
		interval:    interval,
		log:         logger.Named("capture").With(zap.String("session_id", id)),
		stop:        make(chan struct{}),
		emitterDone: make(chan struct{}),
	}
}

// ID identifies the session in logs
func (s *Session) ID() string {
	return s.id
}

// OnChunk registers the chunk callback. Register before Open.
func (s *Session) OnChunk(fn func(AudioChunk)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChunk = fn
}

// OnError registers the device failure callback. Register before Open.
func (s *Session) OnError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// MIMEType is the encoding of emitted chunks; empty before Open succeeds.
func (s *Session) MIMEType() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mime
}

// Open acquires the device and starts chunk emission.
// Errors are *apperr.Error of kind DeviceUnavailable, PermissionDenied, DeviceBusy or DeviceError.
func (s *Session) Open(ctx context.Context, c Constraints) error {
	s.mu.Lock()
	if s.state != sessionNew {
		s.mu.Unlock()
		return ErrAlreadyOpen
	}
	s.mu.Unlock()

	stream, err := s.device.Open(ctx, c)
	if err != nil {
		s.markClosed()
		return Classify(err)
	}

	s.mu.Lock()
	if s.state != sessionNew {
		s.mu.Unlock()
		_ = stream.Close()
		return apperr.New(apperr.KindDeviceUnavailable, "capture session closed while opening")
	}
	s.stream = stream
	s.mime = stream.Format().MIMEType()
	s.state = sessionOpen
	s.mu.Unlock()

	go s.emit()

	if err := stream.Start(s.handleData, s.handleStreamError); err != nil {
		s.finish(true)
		s.release()
		s.markClosed()
		return Classify(err)
	}

	s.log.Info("Capture started",
		zap.String("mime_type", s.mime),
		zap.Bool("echo_cancellation", c.EchoCancellation),
		zap.Bool("noise_suppression", c.NoiseSuppression),
		zap.Bool("auto_gain_control", c.AutoGainControl))

	return nil
}

// Close stops the device, flushes the last buffered chunk and releases the device.
// It returns after the final chunk callback has run. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	state := s.state
	s.closing = true
	s.mu.Unlock()

	if state == sessionNew {
		s.markClosed()
		return nil
	}

	err := s.release()
	s.finish(false)

	s.mu.Lock()
	if s.state == sessionOpen {
		s.state = sessionClosed
	}
	s.mu.Unlock()

	return err
}

func (s *Session) handleData(p []byte) {
	if len(p) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != sessionOpen {
		return
	}
	s.pending = append(s.pending, p...)
}

func (s *Session) handleStreamError(err error) {
	s.mu.Lock()
	if s.state != sessionOpen || s.closing {
		s.mu.Unlock()
		return
	}
	s.state = sessionFailed
	s.mu.Unlock()

	s.log.Error("Capture device failed", zap.Error(err))

	// The stream may be calling us from its own goroutine; release elsewhere.
	go func() {
		s.finish(true)
		if rerr := s.release(); rerr != nil {
			s.log.Warn("Failed to release device after error", zap.Error(rerr))
		}

		s.mu.Lock()
		onError := s.onError
		s.mu.Unlock()

		if onError != nil {
			onError(Classify(err))
		}
	}()
}

// emit runs until stop is closed, then flushes unless the session failed.
func (s *Session) emit() {
	defer close(s.emitterDone)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flush()
		case <-s.stop:
			s.mu.Lock()
			discard := s.discard
			s.mu.Unlock()
			if discard {
				s.mu.Lock()
				s.pending = nil
				s.mu.Unlock()
				return
			}
			s.flush()
			return
		}
	}
}

func (s *Session) flush() {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	s.ordinal++
	chunk := AudioChunk{Data: s.pending, Ordinal: s.ordinal}
	s.pending = nil
	onChunk := s.onChunk
	s.mu.Unlock()

	if onChunk != nil {
		onChunk(chunk)
	}
}

// finish stops the emitter and waits for it. discard drops unflushed audio.
func (s *Session) finish(discard bool) {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.discard = discard
		s.mu.Unlock()
		close(s.stop)
	})

	s.mu.Lock()
	started := s.stream != nil
	s.mu.Unlock()
	if started {
		<-s.emitterDone
	}
}

func (s *Session) release() error {
	var err error
	s.releaseOnce.Do(func() {
		s.mu.Lock()
		stream := s.stream
		s.mu.Unlock()
		if stream == nil {
			return
		}
		if cerr := stream.Close(); cerr != nil {
			err = fmt.Errorf("failed to close device stream: %w", cerr)
		}
		s.log.Debug("Capture device released")
	})
	return err
}

func (s *Session) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == sessionNew || s.state == sessionOpen {
		s.state = sessionClosed
	}
}

// Classify maps a driver error to a categorized capture error.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.KindDeviceUnavailable, "device request cancelled", err)
	}
	return apperr.Wrap(apperr.KindDeviceError, apperr.UserMessage(apperr.KindDeviceError), err)
}
