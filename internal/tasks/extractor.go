// Package tasks turns a transcript into room-scoped chores.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"chorewalk/internal/speech"
	"chorewalk/pkg/apperr"
	"chorewalk/pkg/logger"
	"chorewalk/pkg/model"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const DefaultModel = openai.GPT4oMini

const promptTemplate = `Extract tasks from this transcription and format them as a JSON array of {text: string, roomName: string} objects.
Infer room names from context. If no room is mentioned, use "%s".
Respond with the JSON array only.
Here's the transcription: %s`

// Extractor infers chores from a transcript
type Extractor interface {
	Extract(ctx context.Context, transcript string) (model.Tasks, error)
}

type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// OpenAIExtractor asks a chat model for the task list
type OpenAIExtractor struct {
	client *openai.Client
	model  string
}

func NewOpenAIExtractor(opts Options) *OpenAIExtractor {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}

	model := opts.Model
	if model == "" {
		model = DefaultModel
	}

	return &OpenAIExtractor{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (e *OpenAIExtractor) Extract(ctx context.Context, transcript string) (model.Tasks, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil, apperr.New(apperr.KindEmptyTranscription, "No transcription was generated from the audio")
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(promptTemplate, model.DefaultRoomName, transcript)},
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, classify(err)
	}

	if len(resp.Choices) == 0 {
		logger.Warn("Task extraction returned no choices, using fallback")
		return Fallback(transcript), nil
	}

	tasks := Parse(resp.Choices[0].Message.Content, transcript)

	logger.Debug("Tasks extracted",
		zap.Int("count", len(tasks)),
		zap.String("model", e.model))

	return tasks, nil
}

// Parse decodes the model's JSON array. Unparseable or empty output yields
// the whole transcript as a single task in the default room.
func Parse(content, transcript string) model.Tasks {
	raw := stripCodeFence(content)

	var parsed []model.ExtractedTask
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		logger.Warn("Failed to parse extracted tasks, using fallback", zap.Error(err))
		return Fallback(transcript)
	}

	tasks := make(model.Tasks, 0, len(parsed))
	for _, t := range parsed {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		room := strings.TrimSpace(t.RoomName)
		if room == "" {
			room = model.DefaultRoomName
		}
		tasks = append(tasks, model.ExtractedTask{Text: text, RoomName: room})
	}

	if len(tasks) == 0 {
		return Fallback(transcript)
	}
	return tasks
}

// Fallback is the single-task list used when extraction yields nothing usable
func Fallback(transcript string) model.Tasks {
	return model.Tasks{{Text: strings.TrimSpace(transcript), RoomName: model.DefaultRoomName}}
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return speech.StatusError("Task extraction", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return speech.StatusError("Task extraction", reqErr.HTTPStatusCode, reqErr.Error())
	}
	return apperr.Wrap(apperr.KindProviderUnavailable, "task extraction request failed", err)
}

// Passthrough skips the model and files the transcript as one task
type Passthrough struct{}

func (Passthrough) Extract(_ context.Context, transcript string) (model.Tasks, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, apperr.New(apperr.KindEmptyTranscription, "No transcription was generated from the audio")
	}
	return Fallback(transcript), nil
}
