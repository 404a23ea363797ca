package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus represents the status of a transcription job
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusDone       JobStatus = "done"
	JobStatusFailed     JobStatus = "failed"
)

// MaxJobAttempts bounds redelivery of asynchronous jobs
const MaxJobAttempts = 3

// StopReason records why a recording session ended
type StopReason string

const (
	StopReasonManual      StopReason = "manual"
	StopReasonMaxDuration StopReason = "max_duration"
)

// FinalizedRecording is the assembled audio of one recording session
type FinalizedRecording struct {
	Data       []byte        `json:"-"`
	MIMEType   string        `json:"mime_type"`
	Size       int           `json:"size"`
	Duration   time.Duration `json:"duration"`
	StopReason StopReason    `json:"stop_reason"`
}

// Tasks is a list of extracted chores stored as JSONB
type Tasks []ExtractedTask

// Value implements the driver.Valuer interface
func (t Tasks) Value() (driver.Value, error) {
	if t == nil {
		return nil, nil
	}
	return json.Marshal(t)
}

// Scan implements the sql.Scanner interface
func (t *Tasks) Scan(value interface{}) error {
	if value == nil {
		*t = nil
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported tasks column type %T", value)
	}

	return json.Unmarshal(raw, t)
}

// Job is a transcription request handled by the endpoint or the worker
type Job struct {
	ID          string     `json:"id" db:"id"`
	Status      JobStatus  `json:"status" db:"status"`
	MIMEType    string     `json:"mime_type" db:"mime_type"`
	Size        int        `json:"size" db:"size"`
	AudioKey    *string    `json:"audio_key,omitempty" db:"audio_key"`
	Provider    string     `json:"provider" db:"provider"`
	Text        *string    `json:"text,omitempty" db:"text"`
	Confidence  *float64   `json:"confidence,omitempty" db:"confidence"`
	Tasks       Tasks      `json:"tasks,omitempty" db:"tasks"`
	Attempts    int        `json:"attempts" db:"attempts"`
	ErrorText   *string    `json:"error_text,omitempty" db:"error_text"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty" db:"processed_at"`
}

// IsCompleted returns true if the job is in a final state
func (j *Job) IsCompleted() bool {
	return j.Status == JobStatusDone || j.Status == JobStatusFailed
}

// CanRetry returns true if the job may be redelivered
func (j *Job) CanRetry() bool {
	return j.Status == JobStatusFailed && j.Attempts < MaxJobAttempts
}

// IncrementAttempts increases the attempt counter
func (j *Job) IncrementAttempts() {
	j.Attempts++
}

// SetError marks the job failed with an error message
func (j *Job) SetError(errorText string) {
	j.Status = JobStatusFailed
	j.ErrorText = &errorText
	j.UpdatedAt = time.Now()
}

// SetInProgress marks the job as being transcribed by provider
func (j *Job) SetInProgress(provider string) {
	j.Status = JobStatusInProgress
	j.Provider = provider
	j.UpdatedAt = time.Now()
}

// SetCompleted stores the transcript and marks the job done
func (j *Job) SetCompleted(text string, confidence *float64) {
	now := time.Now()
	j.Status = JobStatusDone
	j.Text = &text
	j.Confidence = confidence
	j.ErrorText = nil
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// Room groups tasks by location in the home
type Room struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Task is a chore handed to the room/task layer
type Task struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	RoomID    string `json:"roomId"`
	Urgent    bool   `json:"urgent"`
	Important bool   `json:"important"`
}

// ExtractedTask is a chore inferred from a transcript
type ExtractedTask struct {
	Text     string `json:"text"`
	RoomName string `json:"roomName"`
}

// DefaultRoomName is used when no room can be inferred
const DefaultRoomName = "General"
