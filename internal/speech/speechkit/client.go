// Package speechkit transcribes audio with Yandex SpeechKit async recognition.
// Audio is first uploaded to object storage; SpeechKit reads it from there.
package speechkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chorewalk/internal/speech"
	"chorewalk/pkg/apperr"
	"chorewalk/pkg/audio"
	"chorewalk/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	Name = "speechkit"

	RecognizeURL  = "https://transcribe.api.cloud.yandex.net/speech/stt/v2/longRunningRecognize"
	OperationURL  = "https://operation.api.cloud.yandex.net/operations"
	OperationPoll = 5 * time.Second
	MaxWaitTime   = 30 * time.Minute
)

// Uploader stores audio where SpeechKit can fetch it and returns its URI
type Uploader interface {
	UploadFile(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	GenerateKey(id, extension string) string
}

type Options struct {
	APIKey       string
	FolderID     string
	Model        string
	Language     string
	PollInterval time.Duration
	MaxWait      time.Duration
	RecognizeURL string
	OperationURL string
	HTTPClient   *http.Client
}

type Client struct {
	apiKey       string
	folderID     string
	model        string
	language     string
	pollInterval time.Duration
	maxWait      time.Duration
	recognizeURL string
	operationURL string
	uploader     Uploader
	client       *http.Client
}

// New Yandex SpeechKit client
func NewClient(opts Options, uploader Uploader) *Client {
	c := &Client{
		apiKey:       opts.APIKey,
		folderID:     opts.FolderID,
		model:        opts.Model,
		language:     opts.Language,
		pollInterval: opts.PollInterval,
		maxWait:      opts.MaxWait,
		recognizeURL: opts.RecognizeURL,
		operationURL: opts.OperationURL,
		uploader:     uploader,
		client:       opts.HTTPClient,
	}
	if c.model == "" {
		c.model = "general"
	}
	if c.pollInterval <= 0 {
		c.pollInterval = OperationPoll
	}
	if c.maxWait <= 0 {
		c.maxWait = MaxWaitTime
	}
	if c.recognizeURL == "" {
		c.recognizeURL = RecognizeURL
	}
	if c.operationURL == "" {
		c.operationURL = OperationURL
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: 30 * time.Second}
	}
	return c
}

func (c *Client) Name() string { return Name }

// Transcribe uploads the audio, starts recognition and waits for the result.
func (c *Client) Transcribe(ctx context.Context, req speech.Request) (*speech.Result, error) {
	spec, err := specFor(req.MIMEType)
	if err != nil {
		return nil, err
	}
	spec.Model = c.model
	spec.LanguageCode = req.Language
	if spec.LanguageCode == "" {
		spec.LanguageCode = c.language
	}
	spec.LiteratureText = true

	key := c.uploader.GenerateKey(uuid.New().String(), audio.Extension(req.MIMEType))
	uri, err := c.uploader.UploadFile(ctx, key, bytes.NewReader(req.Audio), audio.BaseType(req.MIMEType))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProviderUnavailable, "failed to upload audio for recognition", err)
	}

	operationID, err := c.startRecognition(ctx, uri, spec)
	if err != nil {
		return nil, err
	}

	result, err := c.waitForResult(ctx, operationID)
	if err != nil {
		return nil, err
	}

	text, confidence := result.fullText()
	return &speech.Result{Text: text, Confidence: confidence, Provider: Name}, nil
}

// specFor maps a MIME type to a SpeechKit audio encoding
func specFor(mimeType string) (specification, error) {
	if f, ok := audio.ParseL16(mimeType); ok {
		return specification{
			AudioEncoding:     "LINEAR16_PCM",
			SampleRateHertz:   f.SampleRate,
			AudioChannelCount: f.Channels,
		}, nil
	}

	switch audio.BaseType(mimeType) {
	case "audio/ogg", "audio/opus":
		return specification{AudioEncoding: "OGG_OPUS"}, nil
	case "audio/mpeg", "audio/mp3":
		return specification{AudioEncoding: "MP3"}, nil
	default:
		return specification{}, apperr.Newf(apperr.KindInvalidInput, "speechkit does not support %s audio", mimeType)
	}
}

// startRecognition submits an async recognition and returns its operation ID
func (c *Client) startRecognition(ctx context.Context, uri string, spec specification) (string, error) {
	body, err := json.Marshal(recognitionRequest{
		Config: recognitionConfig{Specification: spec},
		Audio:  audioSource{URI: uri},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.recognizeURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-folder-id", c.folderID)

	logger.Debug("Starting speech recognition", zap.String("uri", uri))

	op, err := c.do(req)
	if err != nil {
		return "", err
	}

	logger.Info("Recognition started", zap.String("operation_id", op.ID))

	return op.ID, nil
}

// waitForResult polls the operation until it is done
func (c *Client) waitForResult(ctx context.Context, operationID string) (*recognition, error) {
	url := fmt.Sprintf("%s/%s", c.operationURL, operationID)
	startTime := time.Now()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		if time.Since(startTime) > c.maxWait {
			return nil, apperr.New(apperr.KindProviderUnavailable, "recognition timeout exceeded")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		op, err := c.do(req)
		if err != nil {
			return nil, err
		}

		if op.Done {
			if op.Error != nil {
				return nil, apperr.Newf(apperr.KindProviderUnavailable, "recognition failed: %s (code: %d)", op.Error.Message, op.Error.Code)
			}

			result := op.Response
			if result == nil {
				result = &recognition{}
			}

			logger.Info("Recognition completed",
				zap.String("operation_id", operationID),
				zap.Int("chunks", len(result.Chunks)))

			return result, nil
		}

		logger.Debug("Recognition in progress",
			zap.String("operation_id", operationID),
			zap.Duration("elapsed", time.Since(startTime)))

		select {
		case <-ctx.Done():
			return nil, apperr.Wrap(apperr.KindProviderUnavailable, "recognition wait cancelled", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) do(req *http.Request) (*operation, error) {
	req.Header.Set("Authorization", fmt.Sprintf("Api-Key %s", c.apiKey))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProviderUnavailable, "failed to send request", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProviderUnavailable, "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, speech.StatusError("SpeechKit", resp.StatusCode, string(respBody))
	}

	var op operation
	if err := json.Unmarshal(respBody, &op); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &op, nil
}

// fullText joins the first alternative of every chunk. Confidence is the mean
// of reported alternative confidences, nil when none are reported.
func (r *recognition) fullText() (string, *float64) {
	var parts []string
	var sum float64
	var n int

	for _, ch := range r.Chunks {
		if len(ch.Alternatives) == 0 {
			continue
		}
		alt := ch.Alternatives[0]
		if t := strings.TrimSpace(alt.Text); t != "" {
			parts = append(parts, t)
		}
		if alt.Confidence > 0 {
			sum += alt.Confidence
			n++
		}
	}

	text := strings.Join(parts, " ")
	if n == 0 {
		return text, nil
	}
	avg := sum / float64(n)
	return text, &avg
}
