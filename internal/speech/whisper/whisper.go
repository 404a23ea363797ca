// Package whisper transcribes audio with the OpenAI Whisper API.
package whisper

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"

	"chorewalk/internal/speech"
	"chorewalk/pkg/apperr"
	"chorewalk/pkg/audio"
	"chorewalk/pkg/logger"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const Name = "openai"

type Options struct {
	APIKey  string
	BaseURL string
	Model   string
	// Language is the default BCP-47 tag used when a request has none.
	Language   string
	HTTPClient *http.Client
}

type Provider struct {
	client   *openai.Client
	model    string
	language string
}

func New(opts Options) *Provider {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}

	model := opts.Model
	if model == "" {
		model = openai.Whisper1
	}

	return &Provider{
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		language: opts.Language,
	}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Transcribe(ctx context.Context, req speech.Request) (*speech.Result, error) {
	data, mimeType, err := speech.Container(req.Audio, req.MIMEType)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, "failed to prepare audio", err)
	}

	language := req.Language
	if language == "" {
		language = p.language
	}

	logger.Debug("Sending audio to Whisper",
		zap.Int("size", len(data)),
		zap.String("mime_type", mimeType),
		zap.String("model", p.model))

	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    p.model,
		FilePath: "audio" + audio.Extension(mimeType),
		Reader:   bytes.NewReader(data),
		Language: speech.LanguageBase(language),
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return nil, classify(err)
	}

	return &speech.Result{
		Text:     strings.TrimSpace(resp.Text),
		Provider: Name,
	}, nil
}

func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return speech.StatusError("Whisper", apiErr.HTTPStatusCode, apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return speech.StatusError("Whisper", reqErr.HTTPStatusCode, reqErr.Error())
	}

	return apperr.Wrap(apperr.KindProviderUnavailable, "Whisper API request failed", err)
}
