// Package transcription submits finalized recordings to the transcription
// endpoint and maps the reply to text or a categorized error.
package transcription

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"chorewalk/pkg/apperr"
	"chorewalk/pkg/logger"
	"chorewalk/pkg/model"

	"go.uber.org/zap"
)

const (
	DefaultTimeout  = 30 * time.Second
	DefaultMinBytes = 1000
	maxResponseSize = 1 << 20
)

// Request is the endpoint's wire request
type Request struct {
	Audio    string `json:"audio"`
	MIMEType string `json:"mimeType"`
}

// Response is the endpoint's wire response; Error is set on failure
type Response struct {
	Text       *string  `json:"text,omitempty"`
	Confidence *float64 `json:"confidence"`
	Error      string   `json:"error,omitempty"`
	Details    string   `json:"details,omitempty"`
}

// Result is a successful transcription
type Result struct {
	Text       string
	Confidence *float64
}

// Options configures a Client
type Options struct {
	EndpointURL string
	// FallbackURL, when set, gets exactly one extra attempt after a transport failure.
	FallbackURL string
	APIKey      string
	Timeout     time.Duration
	// MinBytes rejects recordings of this size or smaller without a network call.
	MinBytes   int
	HTTPClient *http.Client
}

type Client struct {
	endpointURL    string
	fallbackURL    string
	apiKey         string
	timeout        time.Duration
	minBytes       int
	client         *http.Client
	fallbackClient *http.Client
}

// NewClient builds a client. The fallback path uses its own transport
// without connection reuse so a wedged keep-alive pool is bypassed.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: timeout,
		}
	}

	return &Client{
		endpointURL: opts.EndpointURL,
		fallbackURL: opts.FallbackURL,
		apiKey:      opts.APIKey,
		timeout:     timeout,
		minBytes:    opts.MinBytes,
		client:      httpClient,
		fallbackClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:             http.ProxyFromEnvironment,
				DisableKeepAlives: true,
				ForceAttemptHTTP2: false,
				TLSNextProto:      map[string]func(string, *tls.Conn) http.RoundTripper{},
			},
		},
	}
}

// Transcribe submits rec once, plus at most one fallback attempt on transport failure.
// Errors are *apperr.Error of kind RecordingTooShort, TransportFailure or EmptyTranscription.
func (c *Client) Transcribe(ctx context.Context, rec model.FinalizedRecording) (*Result, error) {
	if rec.Size <= c.minBytes || len(rec.Data) <= c.minBytes {
		return nil, apperr.Newf(apperr.KindRecordingTooShort, "recording is %d bytes, need more than %d", len(rec.Data), c.minBytes)
	}

	body, err := json.Marshal(Request{
		Audio:    base64.StdEncoding.EncodeToString(rec.Data),
		MIMEType: rec.MIMEType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	logger.Debug("Submitting recording for transcription",
		zap.Int("size", rec.Size),
		zap.String("mime_type", rec.MIMEType))

	result, err := c.post(ctx, c.client, c.endpointURL, body)
	if err == nil {
		return result, nil
	}

	if c.fallbackURL == "" || apperr.KindOf(err) != apperr.KindTransportFailure || ctx.Err() != nil {
		return nil, err
	}

	logger.Warn("Primary transcription request failed, trying fallback",
		zap.Error(err),
		zap.String("fallback_url", c.fallbackURL))

	result, ferr := c.post(ctx, c.fallbackClient, c.fallbackURL, body)
	if ferr == nil {
		return result, nil
	}

	var primary *apperr.Error
	errors.As(err, &primary)
	return nil, &apperr.Error{
		Kind:    primary.Kind,
		Message: fmt.Sprintf("%s (fallback also failed: %s)", primary.Message, fallbackReason(ferr)),
		Cause:   primary.Cause,
	}
}

func fallbackReason(err error) string {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}

func (c *Client) post(ctx context.Context, client *http.Client, url string, body []byte) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransportFailure, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransportFailure, "failed to reach transcription endpoint", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransportFailure, "failed to read response", err)
	}

	var parsed Response
	decodeErr := json.Unmarshal(respBody, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr == nil && parsed.Error != "" {
			return nil, apperr.New(apperr.KindTransportFailure, parsed.Error)
		}
		return nil, apperr.Newf(apperr.KindTransportFailure, "transcription endpoint returned status %d", resp.StatusCode)
	}

	if decodeErr != nil {
		return nil, apperr.Wrap(apperr.KindTransportFailure, "malformed transcription response", decodeErr)
	}
	if parsed.Error != "" {
		return nil, apperr.New(apperr.KindTransportFailure, parsed.Error)
	}
	if parsed.Text == nil || *parsed.Text == "" {
		return nil, apperr.New(apperr.KindEmptyTranscription, apperr.UserMessage(apperr.KindEmptyTranscription))
	}

	return &Result{Text: *parsed.Text, Confidence: parsed.Confidence}, nil
}
