package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_Lifecycle(t *testing.T) {
	job := &Job{ID: "job-1", Status: JobStatusQueued, CreatedAt: time.Now()}

	job.SetInProgress("whisper")
	assert.Equal(t, JobStatusInProgress, job.Status)
	assert.Equal(t, "whisper", job.Provider)
	assert.False(t, job.IsCompleted())

	conf := 0.91
	job.SetCompleted("wipe the counters", &conf)
	assert.Equal(t, JobStatusDone, job.Status)
	require.NotNil(t, job.Text)
	assert.Equal(t, "wipe the counters", *job.Text)
	assert.NotNil(t, job.ProcessedAt)
	assert.True(t, job.IsCompleted())
}

func TestJob_CanRetry(t *testing.T) {
	job := &Job{ID: "job-2"}

	for i := 0; i < MaxJobAttempts-1; i++ {
		job.SetError("provider down")
		job.IncrementAttempts()
		assert.True(t, job.CanRetry())
	}

	job.IncrementAttempts()
	assert.False(t, job.CanRetry())
	require.NotNil(t, job.ErrorText)
	assert.Equal(t, "provider down", *job.ErrorText)
}

func TestTasks_ValueScan(t *testing.T) {
	tasks := Tasks{{Text: "vacuum rug", RoomName: "Living Room"}}

	v, err := tasks.Value()
	require.NoError(t, err)

	var scanned Tasks
	require.NoError(t, scanned.Scan(v))
	assert.Equal(t, tasks, scanned)

	require.NoError(t, scanned.Scan(`[{"text":"mop","roomName":"Kitchen"}]`))
	assert.Equal(t, "Kitchen", scanned[0].RoomName)

	assert.Error(t, scanned.Scan(42))

	require.NoError(t, scanned.Scan(nil))
	assert.Nil(t, scanned)
}
