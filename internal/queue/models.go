package queue

import "time"

// AudioJob asks the worker to transcribe archived audio and extract tasks
type AudioJob struct {
	JobID     string    `json:"job_id"`
	AudioKey  string    `json:"audio_key"`
	MIMEType  string    `json:"mime_type"`
	Size      int       `json:"size"`
	Language  string    `json:"language,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
