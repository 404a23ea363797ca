// Package google transcribes audio with Google Cloud Speech-to-Text v2.
package google

import (
	"context"
	"fmt"
	"strings"

	"chorewalk/internal/speech"
	"chorewalk/pkg/apperr"
	"chorewalk/pkg/audio"
	"chorewalk/pkg/logger"

	"cloud.google.com/go/auth/credentials"
	speechapi "cloud.google.com/go/speech/apiv2"
	"cloud.google.com/go/speech/apiv2/speechpb"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	Name = "google"

	defaultLocation = "global"
	defaultModel    = "long"
	endpointPort    = 443
	cloudScope      = "https://www.googleapis.com/auth/cloud-platform"
)

type Options struct {
	ProjectID       string
	CredentialsJSON string
	Location        string
	Model           string
	Language        string
}

type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)
}

type clientRecognizer struct {
	client *speechapi.Client
}

func (r clientRecognizer) Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
	return r.client.Recognize(ctx, req)
}

type Provider struct {
	recognizer     recognizer
	closeFn        func() error
	recognizerName string
	model          string
	language       string
}

// New dials the regional Speech endpoint. An empty CredentialsJSON falls back to
// application default credentials.
func New(ctx context.Context, opts Options) (*Provider, error) {
	location := strings.TrimSpace(opts.Location)
	if location == "" {
		location = defaultLocation
	}

	detect := &credentials.DetectOptions{Scopes: []string{cloudScope}}
	if opts.CredentialsJSON != "" {
		detect.CredentialsJSON = []byte(opts.CredentialsJSON)
	}
	creds, err := credentials.DetectDefault(detect)
	if err != nil {
		return nil, fmt.Errorf("failed to detect google credentials: %w", err)
	}

	clientOpts := []option.ClientOption{option.WithAuthCredentials(creds)}
	if location != defaultLocation {
		clientOpts = append(clientOpts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:%d", location, endpointPort)))
	}

	client, err := speechapi.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	p := newProvider(clientRecognizer{client: client}, opts.ProjectID, location, opts.Model, opts.Language)
	p.closeFn = client.Close

	logger.Info("Google speech provider initialized",
		zap.String("location", location),
		zap.String("model", p.model))

	return p, nil
}

func newProvider(r recognizer, projectID, location, model, language string) *Provider {
	if model == "" {
		model = defaultModel
	}
	return &Provider{
		recognizer:     r,
		recognizerName: fmt.Sprintf("projects/%s/locations/%s/recognizers/_", projectID, location),
		model:          model,
		language:       language,
	}
}

func (p *Provider) Name() string { return Name }

// Close releases the gRPC connection
func (p *Provider) Close() error {
	if p.closeFn == nil {
		return nil
	}
	return p.closeFn()
}

func (p *Provider) Transcribe(ctx context.Context, req speech.Request) (*speech.Result, error) {
	language := req.Language
	if language == "" {
		language = p.language
	}

	resp, err := p.recognizer.Recognize(ctx, p.buildRequest(req, language))
	if err != nil {
		return nil, classify(err)
	}

	text, confidence := collect(resp)

	logger.Debug("Google recognition finished",
		zap.Int("results", len(resp.GetResults())),
		zap.Int("text_length", len(text)))

	return &speech.Result{Text: text, Confidence: confidence, Provider: Name}, nil
}

func (p *Provider) buildRequest(req speech.Request, language string) *speechpb.RecognizeRequest {
	cfg := &speechpb.RecognitionConfig{
		Model:         p.model,
		LanguageCodes: []string{language},
		Features: &speechpb.RecognitionFeatures{
			EnableAutomaticPunctuation: true,
		},
	}

	if f, ok := audio.ParseL16(req.MIMEType); ok {
		cfg.DecodingConfig = &speechpb.RecognitionConfig_ExplicitDecodingConfig{
			ExplicitDecodingConfig: &speechpb.ExplicitDecodingConfig{
				Encoding:          speechpb.ExplicitDecodingConfig_LINEAR16,
				SampleRateHertz:   int32(f.SampleRate),
				AudioChannelCount: int32(f.Channels),
			},
		}
	} else {
		cfg.DecodingConfig = &speechpb.RecognitionConfig_AutoDecodingConfig{
			AutoDecodingConfig: &speechpb.AutoDetectDecodingConfig{},
		}
	}

	return &speechpb.RecognizeRequest{
		Recognizer:  p.recognizerName,
		Config:      cfg,
		AudioSource: &speechpb.RecognizeRequest_Content{Content: req.Audio},
	}
}

// collect joins the top alternative of every result and averages the reported confidences.
func collect(resp *speechpb.RecognizeResponse) (string, *float64) {
	var parts []string
	var sum float64
	var n int

	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if t := strings.TrimSpace(alts[0].GetTranscript()); t != "" {
			parts = append(parts, t)
		}
		if c := alts[0].GetConfidence(); c > 0 {
			sum += float64(c)
			n++
		}
	}

	if n == 0 {
		return strings.Join(parts, " "), nil
	}
	avg := sum / float64(n)
	return strings.Join(parts, " "), &avg
}

func classify(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return apperr.Wrap(apperr.KindProviderUnavailable, "Google speech request failed", err)
	}

	kind := apperr.KindInternal
	switch st.Code() {
	case codes.ResourceExhausted:
		kind = apperr.KindRateLimited
	case codes.InvalidArgument:
		kind = apperr.KindInvalidInput
	case codes.Unavailable, codes.DeadlineExceeded, codes.Internal, codes.Aborted:
		kind = apperr.KindProviderUnavailable
	}
	return apperr.Newf(kind, "Google speech API error (%s): %s", st.Code(), st.Message())
}
