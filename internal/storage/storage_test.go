package storage

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"chorewalk/pkg/apperr"
	"chorewalk/pkg/model"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKey(t *testing.T) {
	now := time.Date(2025, 3, 7, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "audio/2025/03/07/abc.webm", GenerateKey(now, "abc", ".webm"))
}

func TestS3Storage_ObjectURL(t *testing.T) {
	s, err := NewS3Storage(context.Background(), S3Options{
		Endpoint:  "https://storage.yandexcloud.net/",
		Region:    "ru-central1",
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "audio-recordings",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://storage.yandexcloud.net/audio-recordings/audio/x.ogg", s.ObjectURL("audio/x.ogg"))

	s, err = NewS3Storage(context.Background(), S3Options{Region: "eu-west-1", AccessKey: "k", SecretKey: "s", Bucket: "b"})
	require.NoError(t, err)
	assert.Equal(t, "https://s3.eu-west-1.amazonaws.com/b/k1", s.ObjectURL("k1"))
}

func TestDownloadError_MissingKeyIsNotFound(t *testing.T) {
	err := downloadError("audio/gone.webm", &types.NoSuchKey{})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "audio/gone.webm")

	err = downloadError("audio/x.webm", assert.AnError)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.ErrorIs(t, err, assert.AnError)
}

func TestMigrationsURL(t *testing.T) {
	u, err := migrationsURL("migrations")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "file://"))
	assert.True(t, strings.HasSuffix(u, "/migrations"))
}

func TestPostgresStorage_JobLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	// Migrations are resolved from the module root
	require.NoError(t, os.Chdir("../.."))
	t.Cleanup(func() { _ = os.Chdir("internal/storage") })

	ctx := context.Background()
	store, err := NewPostgresStorage(ctx, dsn)
	require.NoError(t, err)
	defer store.Close()

	now := time.Now().UTC().Truncate(time.Microsecond)
	job := &model.Job{
		ID:        uuid.New().String(),
		Status:    model.JobStatusQueued,
		MIMEType:  "audio/webm",
		Size:      2048,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.CreateJob(ctx, job))

	job.SetCompleted("clean the bathroom", nil)
	job.Tasks = model.Tasks{{Text: "Clean the bathroom", RoomName: "Bathroom"}}
	require.NoError(t, store.UpdateJob(ctx, job))

	got, err := store.GetJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDone, got.Status)
	require.NotNil(t, got.Text)
	assert.Equal(t, "clean the bathroom", *got.Text)
	assert.Equal(t, job.Tasks, got.Tasks)

	_, err = store.GetJobByID(ctx, uuid.New().String())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
