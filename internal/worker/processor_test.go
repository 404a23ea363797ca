package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"chorewalk/internal/queue"
	"chorewalk/internal/speech"
	"chorewalk/pkg/apperr"
	"chorewalk/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDB struct {
	mock.Mock
}

func (m *MockDB) GetJobByID(ctx context.Context, id string) (*model.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Job), args.Error(1)
}

func (m *MockDB) UpdateJob(ctx context.Context, job *model.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

type MockS3 struct {
	mock.Mock
}

func (m *MockS3) DownloadFile(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Transcribe(ctx context.Context, req speech.Request) (*speech.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*speech.Result), args.Error(1)
}

type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, transcript string) (model.Tasks, error) {
	args := m.Called(ctx, transcript)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(model.Tasks), args.Error(1)
}

type fixture struct {
	db        *MockDB
	s3        *MockS3
	provider  *MockProvider
	extractor *MockExtractor
	processor *Processor
}

func newFixture() *fixture {
	f := &fixture{
		db:        new(MockDB),
		s3:        new(MockS3),
		provider:  new(MockProvider),
		extractor: new(MockExtractor),
	}
	f.processor = NewProcessor(f.db, f.s3, f.provider, f.extractor)
	return f
}

func queuedJob(attempts int) *model.Job {
	return &model.Job{
		ID:        "job-123",
		Status:    model.JobStatusQueued,
		MIMEType:  "audio/webm",
		Size:      4096,
		Attempts:  attempts,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func message(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(queue.AudioJob{
		JobID:    "job-123",
		AudioKey: "audio/2025/10/07/job-123.webm",
		MIMEType: "audio/webm",
		Size:     4096,
	})
	require.NoError(t, err)
	return body
}

func TestProcessor_ProcessJob_Success(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	job := queuedJob(0)
	conf := 0.9
	extracted := model.Tasks{{Text: "Clean the oven", RoomName: "Kitchen"}}

	f.db.On("GetJobByID", ctx, "job-123").Return(job, nil)
	f.db.On("UpdateJob", ctx, job).Return(nil)
	f.s3.On("DownloadFile", ctx, "audio/2025/10/07/job-123.webm").Return([]byte("audio"), nil)
	f.provider.On("Transcribe", ctx, speech.Request{Audio: []byte("audio"), MIMEType: "audio/webm"}).
		Return(&speech.Result{Text: "clean the oven", Confidence: &conf}, nil)
	f.extractor.On("Extract", ctx, "clean the oven").Return(extracted, nil)

	err := f.processor.ProcessJob(ctx, message(t))

	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDone, job.Status)
	assert.Equal(t, "mock", job.Provider)
	require.NotNil(t, job.Text)
	assert.Equal(t, "clean the oven", *job.Text)
	assert.Equal(t, &conf, job.Confidence)
	assert.Equal(t, extracted, job.Tasks)
	assert.NotNil(t, job.ProcessedAt)
	f.db.AssertNumberOfCalls(t, "UpdateJob", 2)
}

func TestProcessor_ProcessJob_MalformedMessage(t *testing.T) {
	f := newFixture()

	err := f.processor.ProcessJob(context.Background(), []byte("{not json"))

	assert.ErrorIs(t, err, queue.ErrPermanent)
	f.db.AssertNotCalled(t, "GetJobByID", mock.Anything, mock.Anything)
}

func TestProcessor_ProcessJob_UnknownJob(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.db.On("GetJobByID", ctx, "job-123").Return(nil, apperr.New(apperr.KindNotFound, "job job-123 not found"))

	err := f.processor.ProcessJob(ctx, message(t))

	assert.ErrorIs(t, err, queue.ErrPermanent)
}

func TestProcessor_ProcessJob_AlreadyDone(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	job := queuedJob(0)
	job.SetCompleted("done already", nil)
	f.db.On("GetJobByID", ctx, "job-123").Return(job, nil)

	require.NoError(t, f.processor.ProcessJob(ctx, message(t)))
	f.s3.AssertNotCalled(t, "DownloadFile", mock.Anything, mock.Anything)
}

func TestProcessor_ProcessJob_TransientFailureIsRetried(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	job := queuedJob(0)
	downloadErr := errors.New("S3 connection failed")

	f.db.On("GetJobByID", ctx, "job-123").Return(job, nil)
	f.db.On("UpdateJob", ctx, job).Return(nil)
	f.s3.On("DownloadFile", ctx, mock.Anything).Return(nil, downloadErr)

	err := f.processor.ProcessJob(ctx, message(t))

	require.Error(t, err)
	assert.ErrorIs(t, err, downloadErr)
	assert.NotErrorIs(t, err, queue.ErrPermanent)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Equal(t, 1, job.Attempts)
	require.NotNil(t, job.ErrorText)
	assert.Contains(t, *job.ErrorText, "S3 connection failed")
}

func TestProcessor_ProcessJob_LastAttemptIsPermanent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	job := queuedJob(model.MaxJobAttempts - 1)

	f.db.On("GetJobByID", ctx, "job-123").Return(job, nil)
	f.db.On("UpdateJob", ctx, job).Return(nil)
	f.s3.On("DownloadFile", ctx, mock.Anything).Return([]byte("audio"), nil)
	f.provider.On("Transcribe", ctx, mock.Anything).Return(nil, apperr.New(apperr.KindProviderUnavailable, "503"))

	err := f.processor.ProcessJob(ctx, message(t))

	assert.ErrorIs(t, err, queue.ErrPermanent)
	assert.Equal(t, model.MaxJobAttempts, job.Attempts)
}

func TestProcessor_ProcessJob_EmptyTranscriptIsPermanent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	job := queuedJob(0)

	f.db.On("GetJobByID", ctx, "job-123").Return(job, nil)
	f.db.On("UpdateJob", ctx, job).Return(nil)
	f.s3.On("DownloadFile", ctx, mock.Anything).Return([]byte("audio"), nil)
	f.provider.On("Transcribe", ctx, mock.Anything).Return(&speech.Result{Text: ""}, nil)

	err := f.processor.ProcessJob(ctx, message(t))

	assert.ErrorIs(t, err, queue.ErrPermanent)
	assert.ErrorIs(t, err, apperr.ErrEmptyTranscription)
	require.NotNil(t, job.ErrorText)
	assert.Contains(t, *job.ErrorText, "No transcription was generated from the audio")
	f.extractor.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
}

func TestProcessor_ProcessJob_ExhaustedAttempts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.db.On("GetJobByID", ctx, "job-123").Return(queuedJob(model.MaxJobAttempts), nil)

	err := f.processor.ProcessJob(ctx, message(t))

	assert.ErrorIs(t, err, queue.ErrPermanent)
	f.s3.AssertNotCalled(t, "DownloadFile", mock.Anything, mock.Anything)
}
