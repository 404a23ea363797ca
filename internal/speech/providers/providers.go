// Package providers builds the configured speech provider.
package providers

import (
	"context"
	"fmt"

	"chorewalk/internal/config"
	"chorewalk/internal/speech"
	"chorewalk/internal/speech/google"
	"chorewalk/internal/speech/speechkit"
	"chorewalk/internal/speech/whisper"
	"chorewalk/pkg/logger"

	"go.uber.org/zap"
)

// New returns the provider named by cfg.Speech.Provider and a release func.
// uploader is required only for speechkit.
func New(ctx context.Context, cfg *config.Config, uploader speechkit.Uploader) (speech.Provider, func() error, error) {
	noop := func() error { return nil }
	sc := cfg.Speech

	switch sc.Provider {
	case config.ProviderOpenAI:
		if sc.OpenAI.APIKey == "" {
			return nil, nil, fmt.Errorf("speech.openai.api_key is required for provider %s", sc.Provider)
		}
		p := whisper.New(whisper.Options{
			APIKey:   sc.OpenAI.APIKey,
			BaseURL:  sc.OpenAI.BaseURL,
			Model:    sc.OpenAI.Model,
			Language: sc.Language,
		})
		logger.Info("Speech provider initialized", zap.String("provider", p.Name()))
		return p, noop, nil

	case config.ProviderGoogle:
		if sc.Google.ProjectID == "" {
			return nil, nil, fmt.Errorf("speech.google.project_id is required for provider %s", sc.Provider)
		}
		p, err := google.New(ctx, google.Options{
			ProjectID:       sc.Google.ProjectID,
			CredentialsJSON: sc.Google.CredentialsJSON,
			Location:        sc.Google.Location,
			Model:           sc.Google.Model,
			Language:        sc.Language,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create google provider: %w", err)
		}
		return p, p.Close, nil

	case config.ProviderSpeechKit:
		if uploader == nil {
			return nil, nil, fmt.Errorf("provider %s needs object storage configured", sc.Provider)
		}
		if sc.SpeechKit.APIKey == "" || sc.SpeechKit.FolderID == "" {
			return nil, nil, fmt.Errorf("speech.speechkit.api_key and folder_id are required for provider %s", sc.Provider)
		}
		p := speechkit.NewClient(speechkit.Options{
			APIKey:       sc.SpeechKit.APIKey,
			FolderID:     sc.SpeechKit.FolderID,
			Model:        sc.SpeechKit.Model,
			Language:     sc.Language,
			PollInterval: sc.SpeechKit.PollInterval,
			MaxWait:      sc.SpeechKit.MaxWait,
		}, uploader)
		logger.Info("Speech provider initialized", zap.String("provider", p.Name()))
		return p, noop, nil

	default:
		return nil, nil, fmt.Errorf("unknown speech provider %q", sc.Provider)
	}
}
