// Package recorder drives one recording session at a time: it acquires a
// capture session, buffers its chunks, enforces the time limit and hands a
// validated recording to the caller.
package recorder

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"chorewalk/internal/capture"
	"chorewalk/pkg/apperr"
	"chorewalk/pkg/logger"
	"chorewalk/pkg/model"

	"go.uber.org/zap"
)

var (
	ErrSessionInProgress = errors.New("a recording session is already in progress")
	ErrNotRecording      = errors.New("no active recording")
	ErrSessionCancelled  = errors.New("recording session was cancelled")
)

// State is the lifecycle state of the current session
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateActive
	StateFinalizing
	StateCompleted
	StatePermissionDenied
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateActive:
		return "active"
	case StateFinalizing:
		return "finalizing"
	case StateCompleted:
		return "completed"
	case StatePermissionDenied:
		return "permission_denied"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Busy reports whether a session occupies the device in this state.
func (s State) Busy() bool {
	return s == StateRequesting || s == StateActive || s == StateFinalizing
}

// CaptureSession is the subset of *capture.Session the orchestrator drives
type CaptureSession interface {
	OnChunk(func(capture.AudioChunk))
	OnError(func(error))
	Open(ctx context.Context, c capture.Constraints) error
	MIMEType() string
	Close() error
}

// CaptureFactory creates a fresh capture session for each recording
type CaptureFactory func() CaptureSession

// DeviceFactory adapts a capture device into a CaptureFactory
func DeviceFactory(device capture.Device, chunkInterval time.Duration) CaptureFactory {
	return func() CaptureSession {
		return capture.NewSession(device, chunkInterval)
	}
}

// Options tune the orchestrator
type Options struct {
	MaxSeconds int
	// MinBytes is the smallest rejected size: recordings of MinBytes or fewer are too short.
	MinBytes     int
	Constraints  capture.Constraints
	TickInterval time.Duration
}

// Callbacks receive session outcomes. They run outside the orchestrator lock.
type Callbacks struct {
	OnComplete    func(model.FinalizedRecording)
	OnFailure     func(error)
	OnStateChange func(State)
	OnTick        func(elapsed int)
}

// Orchestrator is the recording state machine. All methods are safe for concurrent use.
type Orchestrator struct {
	factory   CaptureFactory
	opts      Options
	callbacks Callbacks
	timer     *Timer
	log       *zap.Logger

	mu         sync.Mutex
	state      State
	gen        uint64
	session    CaptureSession
	cancelOpen context.CancelFunc
	chunks     [][]byte
	size       int
	startedAt  time.Time
}

func NewOrchestrator(factory CaptureFactory, opts Options, callbacks Callbacks) *Orchestrator {
	timer := NewTimer(opts.TickInterval)
	if callbacks.OnTick != nil {
		timer.OnTick(callbacks.OnTick)
	}
	return &Orchestrator{
		factory:   factory,
		opts:      opts,
		callbacks: callbacks,
		timer:     timer,
		log:       logger.Named("recorder"),
		state:     StateIdle,
	}
}

// State returns the current session state
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Elapsed returns the whole seconds recorded in the current or last session
func (o *Orchestrator) Elapsed() int {
	return o.timer.Elapsed()
}

// EndingSoon reports whether an active session is close to its limit
func (o *Orchestrator) EndingSoon() bool {
	return o.State() == StateActive && o.timer.EndingSoon()
}

// Start requests the device and begins recording. It blocks until the device
// is granted or refused. Device failures are also reported through OnFailure.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.state.Busy() {
		o.mu.Unlock()
		return ErrSessionInProgress
	}

	o.gen++
	gen := o.gen
	o.chunks = nil
	o.size = 0
	o.state = StateRequesting

	openCtx, cancel := context.WithCancel(ctx)
	o.cancelOpen = cancel
	session := o.factory()
	o.session = session
	o.mu.Unlock()

	defer cancel()
	o.notifyState(StateRequesting)

	session.OnChunk(func(c capture.AudioChunk) { o.handleChunk(gen, c) })
	session.OnError(func(err error) { o.handleDeviceError(gen, err) })

	err := session.Open(openCtx, o.opts.Constraints)

	o.mu.Lock()
	if gen != o.gen || o.state != StateRequesting {
		o.mu.Unlock()
		if err == nil {
			// Granted after teardown; give the device back.
			if cerr := session.Close(); cerr != nil {
				o.log.Warn("Failed to release late device grant", zap.Error(cerr))
			}
		}
		return ErrSessionCancelled
	}
	o.cancelOpen = nil

	if err != nil {
		next := StateFailed
		if errors.Is(err, apperr.ErrPermissionDenied) {
			next = StatePermissionDenied
		}
		o.state = next
		o.session = nil
		o.mu.Unlock()

		o.log.Warn("Device request failed", zap.Error(err), zap.String("state", next.String()))
		o.notifyState(next)
		o.notifyFailure(err)
		return err
	}

	o.state = StateActive
	o.startedAt = time.Now()
	o.timer.Start(o.opts.MaxSeconds, func() { o.stop(gen, model.StopReasonMaxDuration) })
	o.mu.Unlock()

	o.log.Info("Recording started", zap.String("mime_type", session.MIMEType()), zap.Int("max_seconds", o.opts.MaxSeconds))
	o.notifyState(StateActive)
	return nil
}

// Stop ends the active session and finalizes it. Outside Active it is a no-op
// returning ErrNotRecording, so a manual stop racing the time limit finalizes once.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	gen := o.gen
	o.mu.Unlock()
	return o.stop(gen, model.StopReasonManual)
}

func (o *Orchestrator) stop(gen uint64, reason model.StopReason) error {
	o.mu.Lock()
	if gen != o.gen || o.state != StateActive {
		o.mu.Unlock()
		return ErrNotRecording
	}
	o.state = StateFinalizing
	session := o.session
	o.timer.Stop()
	o.mu.Unlock()

	o.log.Info("Stopping recording", zap.String("reason", string(reason)))
	o.notifyState(StateFinalizing)

	// Close flushes the final chunk through handleChunk before returning.
	if err := session.Close(); err != nil {
		o.log.Warn("Failed to close capture session", zap.Error(err))
	}

	o.finalize(gen, session.MIMEType(), reason)
	return nil
}

func (o *Orchestrator) finalize(gen uint64, mimeType string, reason model.StopReason) {
	o.mu.Lock()
	if gen != o.gen || o.state != StateFinalizing {
		o.mu.Unlock()
		return
	}

	data := bytes.Join(o.chunks, nil)
	size := o.size
	duration := time.Since(o.startedAt)
	o.chunks = nil
	o.size = 0
	o.session = nil

	if size <= o.opts.MinBytes {
		o.state = StateFailed
		o.mu.Unlock()

		o.log.Warn("Recording too short", zap.Int("size", size), zap.Int("min_bytes", o.opts.MinBytes))
		o.notifyState(StateFailed)
		o.notifyFailure(apperr.Newf(apperr.KindRecordingTooShort, "recording is %d bytes, need more than %d", size, o.opts.MinBytes))
		return
	}

	o.state = StateCompleted
	o.mu.Unlock()

	rec := model.FinalizedRecording{
		Data:       data,
		MIMEType:   mimeType,
		Size:       size,
		Duration:   duration,
		StopReason: reason,
	}

	o.log.Info("Recording completed",
		zap.Int("size", size),
		zap.Duration("duration", duration),
		zap.String("reason", string(reason)))
	o.notifyState(StateCompleted)
	if o.callbacks.OnComplete != nil {
		o.callbacks.OnComplete(rec)
	}
}

// Teardown abandons any session. A device granted later is released on arrival.
func (o *Orchestrator) Teardown() {
	o.mu.Lock()
	prev := o.state
	o.gen++
	o.timer.Stop()
	session := o.session
	cancel := o.cancelOpen
	o.session = nil
	o.cancelOpen = nil
	o.chunks = nil
	o.size = 0
	o.state = StateIdle
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if session != nil && (prev == StateActive || prev == StateFinalizing) {
		if err := session.Close(); err != nil {
			o.log.Warn("Failed to release device on teardown", zap.Error(err))
		}
	}
	if prev != StateIdle {
		o.log.Info("Recording torn down", zap.String("previous_state", prev.String()))
		o.notifyState(StateIdle)
	}
}

func (o *Orchestrator) handleChunk(gen uint64, c capture.AudioChunk) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen || (o.state != StateActive && o.state != StateFinalizing) {
		return
	}
	if len(c.Data) == 0 {
		return
	}
	o.chunks = append(o.chunks, c.Data)
	o.size += len(c.Data)
}

func (o *Orchestrator) handleDeviceError(gen uint64, err error) {
	o.mu.Lock()
	if gen != o.gen || (o.state != StateActive && o.state != StateFinalizing) {
		o.mu.Unlock()
		return
	}
	o.state = StateFailed
	o.timer.Stop()
	o.session = nil
	o.chunks = nil
	o.size = 0
	o.mu.Unlock()

	o.log.Error("Recording failed", zap.Error(err))
	o.notifyState(StateFailed)
	o.notifyFailure(err)
}

func (o *Orchestrator) notifyState(s State) {
	if o.callbacks.OnStateChange != nil {
		o.callbacks.OnStateChange(s)
	}
}

func (o *Orchestrator) notifyFailure(err error) {
	if o.callbacks.OnFailure != nil {
		o.callbacks.OnFailure(err)
	}
}
