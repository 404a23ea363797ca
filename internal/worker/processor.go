package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"chorewalk/internal/queue"
	"chorewalk/internal/speech"
	"chorewalk/internal/tasks"
	"chorewalk/pkg/apperr"
	"chorewalk/pkg/logger"
	"chorewalk/pkg/model"

	"go.uber.org/zap"
)

// JobStore persists transcription jobs
type JobStore interface {
	GetJobByID(ctx context.Context, id string) (*model.Job, error)
	UpdateJob(ctx context.Context, job *model.Job) error
}

// AudioStore fetches archived audio
type AudioStore interface {
	DownloadFile(ctx context.Context, key string) ([]byte, error)
}

type Processor struct {
	db        JobStore
	s3        AudioStore
	provider  speech.Provider
	extractor tasks.Extractor
}

// NewProcessor creates a new worker processor
func NewProcessor(db JobStore, s3 AudioStore, provider speech.Provider, extractor tasks.Extractor) *Processor {
	return &Processor{
		db:        db,
		s3:        s3,
		provider:  provider,
		extractor: extractor,
	}
}

// ProcessJob transcribes one queued AudioJob and records the outcome on its job row.
// Errors wrapping queue.ErrPermanent must not be redelivered.
func (p *Processor) ProcessJob(ctx context.Context, body []byte) error {
	var msg queue.AudioJob
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: failed to unmarshal job: %v", queue.ErrPermanent, err)
	}

	log := logger.With(zap.String("job_id", msg.JobID))
	log.Info("Processing audio job", zap.String("audio_key", msg.AudioKey))

	job, err := p.db.GetJobByID(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return fmt.Errorf("%w: %v", queue.ErrPermanent, err)
		}
		return fmt.Errorf("failed to get job from db: %w", err)
	}

	if job.Status == model.JobStatusDone {
		log.Info("Job already completed, skipping")
		return nil
	}
	if job.Attempts >= model.MaxJobAttempts {
		return fmt.Errorf("%w: job %s exhausted %d attempts", queue.ErrPermanent, job.ID, job.Attempts)
	}

	job.SetInProgress(p.provider.Name())
	if err := p.db.UpdateJob(ctx, job); err != nil {
		log.Error("Failed to update job status", zap.Error(err))
	}

	data, err := p.s3.DownloadFile(ctx, msg.AudioKey)
	if err != nil {
		return p.handleJobError(ctx, job, fmt.Errorf("failed to download audio: %w", err))
	}

	log.Info("Audio downloaded", zap.Int("size", len(data)))

	mimeType := msg.MIMEType
	if mimeType == "" {
		mimeType = job.MIMEType
	}

	result, err := p.provider.Transcribe(ctx, speech.Request{
		Audio:    data,
		MIMEType: mimeType,
		Language: msg.Language,
	})
	if err != nil {
		return p.handleJobError(ctx, job, err)
	}
	if result.Text == "" {
		return p.handleJobError(ctx, job, apperr.New(apperr.KindEmptyTranscription, "No transcription was generated from the audio"))
	}

	extracted, err := p.extractor.Extract(ctx, result.Text)
	if err != nil {
		return p.handleJobError(ctx, job, fmt.Errorf("failed to extract tasks: %w", err))
	}

	job.Tasks = extracted
	job.SetCompleted(result.Text, result.Confidence)
	if err := p.db.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save job result: %w", err)
	}

	log.Info("Job completed successfully",
		zap.Int("text_length", len(result.Text)),
		zap.Int("tasks", len(extracted)))

	return nil
}

// handleJobError records the failure and decides whether the message is retried
func (p *Processor) handleJobError(ctx context.Context, job *model.Job, cause error) error {
	logger.Error("Job processing error",
		zap.String("job_id", job.ID),
		zap.Error(cause))

	job.SetError(cause.Error())
	job.IncrementAttempts()

	if err := p.db.UpdateJob(ctx, job); err != nil {
		logger.Error("Failed to update job error", zap.Error(err))
	}

	if !job.CanRetry() || !speech.IsTransient(cause) {
		return fmt.Errorf("%w: %w", queue.ErrPermanent, cause)
	}
	return cause
}
