// Package endpoint serves the transcription HTTP API with gin.
package endpoint

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"chorewalk/internal/queue"
	"chorewalk/internal/speech"
	"chorewalk/internal/tasks"
	"chorewalk/pkg/apperr"
	"chorewalk/pkg/audio"
	"chorewalk/pkg/logger"
	"chorewalk/pkg/model"
	"chorewalk/pkg/resilience"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultMIMEType = "audio/webm"

// JobStore persists transcription jobs
type JobStore interface {
	CreateJob(ctx context.Context, job *model.Job) error
	GetJobByID(ctx context.Context, id string) (*model.Job, error)
	UpdateJob(ctx context.Context, job *model.Job) error
}

// AudioArchive keeps a copy of submitted audio
type AudioArchive interface {
	UploadFile(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	GenerateKey(id, extension string) string
}

// JobPublisher hands async jobs to the worker
type JobPublisher interface {
	PublishJob(ctx context.Context, job *queue.AudioJob) error
}

// Dependencies of the handler. Only Provider is required.
type Dependencies struct {
	Provider  speech.Provider
	Extractor tasks.Extractor
	Jobs      JobStore
	Archive   AudioArchive
	Publisher JobPublisher
	Limiter   *resilience.RateLimiter

	Language     string
	MaxBodyBytes int64
	ArchiveRetry *resilience.RetryConfig
}

type Handler struct {
	provider  speech.Provider
	extractor tasks.Extractor
	jobs      JobStore
	archive   AudioArchive
	publisher JobPublisher
	limiter   *resilience.RateLimiter

	language     string
	maxBodyBytes int64
	archiveRetry *resilience.RetryConfig
}

func NewHandler(deps Dependencies) *Handler {
	h := &Handler{
		provider:     deps.Provider,
		extractor:    deps.Extractor,
		jobs:         deps.Jobs,
		archive:      deps.Archive,
		publisher:    deps.Publisher,
		limiter:      deps.Limiter,
		language:     deps.Language,
		maxBodyBytes: deps.MaxBodyBytes,
		archiveRetry: deps.ArchiveRetry,
	}
	if h.extractor == nil {
		h.extractor = tasks.Passthrough{}
	}
	if h.archiveRetry == nil {
		h.archiveRetry = &resilience.RetryConfig{
			MaxAttempts:     3,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     2 * time.Second,
			Multiplier:      2.0,
		}
	}
	return h
}

// Router builds the gin engine with all routes and middleware
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), Recovery(), RequestLogger(), CORS(), BodySizeLimit(h.maxBodyBytes))

	r.GET("/health", h.health)
	r.GET("/jobs/:id", h.getJob)

	api := r.Group("/")
	if h.limiter != nil {
		api.Use(RateLimit(h.limiter))
	}
	api.POST("/transcribe-audio", h.transcribeAudio)
	api.POST("/process-audio-transcript", h.processAudioTranscript)
	api.POST("/process-audio", h.processAudio)

	return r
}

type transcribeRequest struct {
	Audio    string `json:"audio"`
	MIMEType string `json:"mimeType"`
}

type transcribeResponse struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
}

func (h *Handler) transcribeAudio(c *gin.Context) {
	var req transcribeRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	if req.Audio == "" {
		writeError(c, apperr.New(apperr.KindInvalidInput, "No audio data provided"))
		return
	}
	if req.MIMEType == "" {
		req.MIMEType = DefaultMIMEType
	}

	data, err := decodeAudio(req.Audio)
	if err != nil {
		writeError(c, err)
		return
	}

	logger.Info("Received audio data",
		zap.String("mime_type", req.MIMEType),
		zap.Int("size", len(data)))

	ctx := c.Request.Context()
	job := h.startJob(ctx, req.MIMEType, len(data))
	if job != nil {
		c.Header("X-Job-Id", job.ID)
	}

	result, err := h.provider.Transcribe(ctx, speech.Request{
		Audio:    data,
		MIMEType: req.MIMEType,
		Language: h.language,
	})
	if err != nil {
		logger.Error("Transcription failed", zap.Error(err))
		h.failJob(ctx, job, err)
		writeError(c, err)
		return
	}

	logger.Info("Transcription successful",
		zap.String("provider", result.Provider),
		zap.Int("text_length", len(result.Text)))

	if job != nil {
		h.archiveAudio(ctx, job, data)
		job.SetCompleted(result.Text, result.Confidence)
		h.saveJob(ctx, job)
	}

	c.JSON(http.StatusOK, transcribeResponse{
		Text:       result.Text,
		Confidence: result.Confidence,
	})
}

type processTranscriptRequest struct {
	AudioBase64 string `json:"audioBase64"`
	FileID      string `json:"fileId"`
	MIMEType    string `json:"mimeType"`
}

type processTranscriptResponse struct {
	Success         bool        `json:"success"`
	TranscribedText string      `json:"transcribedText"`
	Tasks           model.Tasks `json:"tasks"`
	FileID          string      `json:"fileId"`
}

func (h *Handler) processAudioTranscript(c *gin.Context) {
	var req processTranscriptRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	if req.AudioBase64 == "" || req.FileID == "" {
		writeError(c, apperr.New(apperr.KindInvalidInput, "Missing required parameters: audioBase64 or fileId"))
		return
	}
	if req.MIMEType == "" {
		req.MIMEType = DefaultMIMEType
	}

	data, err := decodeAudio(req.AudioBase64)
	if err != nil {
		writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	result, err := h.provider.Transcribe(ctx, speech.Request{
		Audio:    data,
		MIMEType: req.MIMEType,
		Language: h.language,
	})
	if err != nil {
		logger.Error("Transcription failed", zap.String("file_id", req.FileID), zap.Error(err))
		writeError(c, err)
		return
	}
	if strings.TrimSpace(result.Text) == "" {
		writeError(c, apperr.New(apperr.KindEmptyTranscription, "No transcription was generated from the audio"))
		return
	}

	extracted, err := h.extractor.Extract(ctx, result.Text)
	if err != nil {
		logger.Error("Task extraction failed", zap.String("file_id", req.FileID), zap.Error(err))
		writeError(c, err)
		return
	}

	if err := h.recordTranscript(ctx, req.FileID, result, extracted); err != nil {
		writeError(c, err)
		return
	}

	logger.Info("Audio transcript processed",
		zap.String("file_id", req.FileID),
		zap.Int("tasks", len(extracted)))

	c.JSON(http.StatusOK, processTranscriptResponse{
		Success:         true,
		TranscribedText: result.Text,
		Tasks:           extracted,
		FileID:          req.FileID,
	})
}

// recordTranscript stores the result on the job named by fileID, if there is one
func (h *Handler) recordTranscript(ctx context.Context, fileID string, result *speech.Result, extracted model.Tasks) error {
	if h.jobs == nil {
		return nil
	}
	if _, err := uuid.Parse(fileID); err != nil {
		logger.Debug("File id is not a job id, skipping update", zap.String("file_id", fileID))
		return nil
	}

	job, err := h.jobs.GetJobByID(ctx, fileID)
	if errors.Is(err, apperr.ErrNotFound) {
		logger.Warn("No job for file id", zap.String("file_id", fileID))
		return nil
	}
	if err != nil {
		return err
	}

	job.Provider = result.Provider
	job.Tasks = extracted
	job.SetCompleted(result.Text, result.Confidence)
	return h.jobs.UpdateJob(ctx, job)
}

type processAudioRequest struct {
	FilePath string `json:"filePath"`
	MIMEType string `json:"mimeType"`
}

type processAudioResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
}

func (h *Handler) processAudio(c *gin.Context) {
	var req processAudioRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	if req.FilePath == "" {
		writeError(c, apperr.New(apperr.KindInvalidInput, "Missing required parameter: filePath"))
		return
	}
	if h.jobs == nil || h.publisher == nil {
		writeError(c, apperr.New(apperr.KindProviderUnavailable, "async processing is not configured"))
		return
	}
	if req.MIMEType == "" {
		req.MIMEType = DefaultMIMEType
	}

	ctx := c.Request.Context()
	job := newJob(req.MIMEType, 0)
	job.AudioKey = &req.FilePath

	if err := h.jobs.CreateJob(ctx, job); err != nil {
		writeError(c, err)
		return
	}

	err := h.publisher.PublishJob(ctx, &queue.AudioJob{
		JobID:     job.ID,
		AudioKey:  req.FilePath,
		MIMEType:  req.MIMEType,
		Language:  h.language,
		CreatedAt: job.CreatedAt,
	})
	if err != nil {
		h.failJob(ctx, job, err)
		writeError(c, apperr.Wrap(apperr.KindProviderUnavailable, "failed to enqueue job", err))
		return
	}

	logger.Info("Audio job queued", zap.String("job_id", job.ID), zap.String("file_path", req.FilePath))

	c.JSON(http.StatusAccepted, processAudioResponse{Success: true, JobID: job.ID})
}

func (h *Handler) getJob(c *gin.Context) {
	if h.jobs == nil {
		writeError(c, apperr.New(apperr.KindNotFound, "job storage is not configured"))
		return
	}

	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(c, apperr.Newf(apperr.KindNotFound, "job %s not found", id))
		return
	}

	job, err := h.jobs.GetJobByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

type breakerReporter interface {
	BreakerState() resilience.State
}

func (h *Handler) health(c *gin.Context) {
	body := gin.H{
		"status":   "ok",
		"provider": h.provider.Name(),
	}
	if br, ok := h.provider.(breakerReporter); ok {
		body["breaker"] = br.BreakerState().String()
	}
	c.JSON(http.StatusOK, body)
}

// bindJSON decodes the body, reporting oversized bodies and bad JSON as input errors
func bindJSON(c *gin.Context, v any) error {
	err := c.ShouldBindJSON(v)
	if err == nil {
		return nil
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return apperr.Newf(apperr.KindInvalidInput, "request body exceeds %d bytes", maxErr.Limit)
	}
	return apperr.Wrap(apperr.KindInvalidInput, "invalid JSON body", err)
}

// decodeAudio accepts raw base64 or a data URL and returns the audio bytes
func decodeAudio(encoded string) ([]byte, error) {
	if i := strings.Index(encoded, ","); i >= 0 {
		encoded = encoded[i+1:]
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, "audio is not valid base64", err)
	}
	if len(data) == 0 {
		return nil, apperr.New(apperr.KindInvalidInput, "No audio data provided")
	}
	return data, nil
}

func newJob(mimeType string, size int) *model.Job {
	now := time.Now()
	return &model.Job{
		ID:        uuid.New().String(),
		Status:    model.JobStatusQueued,
		MIMEType:  mimeType,
		Size:      size,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// startJob records an in-progress job; persistence failures never block transcription
func (h *Handler) startJob(ctx context.Context, mimeType string, size int) *model.Job {
	if h.jobs == nil {
		return nil
	}

	job := newJob(mimeType, size)
	job.SetInProgress(h.provider.Name())
	if err := h.jobs.CreateJob(ctx, job); err != nil {
		logger.Warn("Failed to record job", zap.Error(err))
		return nil
	}
	return job
}

func (h *Handler) failJob(ctx context.Context, job *model.Job, cause error) {
	if job == nil {
		return
	}
	job.SetError(cause.Error())
	job.IncrementAttempts()
	h.saveJob(ctx, job)
}

func (h *Handler) saveJob(ctx context.Context, job *model.Job) {
	if err := h.jobs.UpdateJob(ctx, job); err != nil {
		logger.Warn("Failed to update job", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// archiveAudio uploads the audio with retries; failure only leaves AudioKey unset
func (h *Handler) archiveAudio(ctx context.Context, job *model.Job, data []byte) {
	if h.archive == nil {
		return
	}

	key := h.archive.GenerateKey(job.ID, audio.Extension(job.MIMEType))
	err := resilience.RetryWithExponentialBackoff(ctx, h.archiveRetry, func() error {
		_, err := h.archive.UploadFile(ctx, key, bytes.NewReader(data), audio.BaseType(job.MIMEType))
		return err
	})
	if err != nil {
		logger.Warn("Failed to archive audio", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	job.AudioKey = &key
}
