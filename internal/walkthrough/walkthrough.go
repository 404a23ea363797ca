// Package walkthrough turns one spoken home walkthrough into chores:
// record, transcribe through the endpoint, then extract tasks.
package walkthrough

import (
	"context"
	"errors"

	"chorewalk/internal/recorder"
	"chorewalk/internal/tasks"
	"chorewalk/internal/transcription"
	"chorewalk/pkg/logger"
	"chorewalk/pkg/model"

	"go.uber.org/zap"
)

// Transcriber sends a finalized recording for transcription
type Transcriber interface {
	Transcribe(ctx context.Context, rec model.FinalizedRecording) (*transcription.Result, error)
}

// Outcome is a transcribed walkthrough
type Outcome struct {
	Recording  model.FinalizedRecording
	Text       string
	Confidence *float64
	Tasks      model.Tasks
}

type Pipeline struct {
	transcriber Transcriber
	extractor   tasks.Extractor
	log         *zap.Logger
}

// NewPipeline wires the stages. A nil extractor leaves Outcome.Tasks empty.
func NewPipeline(transcriber Transcriber, extractor tasks.Extractor) *Pipeline {
	return &Pipeline{
		transcriber: transcriber,
		extractor:   extractor,
		log:         logger.Named("walkthrough"),
	}
}

type finished struct {
	rec model.FinalizedRecording
	err error
}

// Record runs one recording session until stop is closed, the time limit is
// reached or the device fails, then processes the result. Cancelling ctx
// tears the session down and discards anything pending.
func (p *Pipeline) Record(ctx context.Context, factory recorder.CaptureFactory, opts recorder.Options, stop <-chan struct{}, onTick func(elapsed int)) (*Outcome, error) {
	done := make(chan finished, 1)
	report := func(f finished) {
		select {
		case done <- f:
		default:
		}
	}

	orch := recorder.NewOrchestrator(factory, opts, recorder.Callbacks{
		OnComplete: func(rec model.FinalizedRecording) { report(finished{rec: rec}) },
		OnFailure:  func(err error) { report(finished{err: err}) },
		OnTick:     onTick,
		OnStateChange: func(s recorder.State) {
			p.log.Debug("Recorder state changed", zap.String("state", s.String()))
		},
	})
	defer orch.Teardown()

	if err := orch.Start(ctx); err != nil {
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-stop:
			stop = nil
			if err := orch.Stop(); err != nil && !errors.Is(err, recorder.ErrNotRecording) {
				return nil, err
			}
		case f := <-done:
			if f.err != nil {
				return nil, f.err
			}
			return p.Process(ctx, f.rec)
		}
	}
}

// Process transcribes a finalized recording and extracts its tasks. An
// extraction failure keeps the transcript and files it as a single task.
func (p *Pipeline) Process(ctx context.Context, rec model.FinalizedRecording) (*Outcome, error) {
	res, err := p.transcriber.Transcribe(ctx, rec)
	if err != nil {
		p.log.Warn("Transcription failed", zap.Error(err))
		return nil, err
	}

	out := &Outcome{
		Recording:  rec,
		Text:       res.Text,
		Confidence: res.Confidence,
	}

	if p.extractor == nil {
		return out, nil
	}

	extracted, err := p.extractor.Extract(ctx, res.Text)
	if err != nil {
		p.log.Warn("Task extraction failed, keeping transcript", zap.Error(err))
		extracted = tasks.Fallback(res.Text)
	}
	out.Tasks = extracted

	p.log.Info("Walkthrough processed",
		zap.Int("size", rec.Size),
		zap.String("stop_reason", string(rec.StopReason)),
		zap.Int("tasks", len(out.Tasks)))

	return out, nil
}
