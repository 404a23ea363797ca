package providers

import (
	"context"
	"testing"
	"time"

	"chorewalk/internal/config"
	"chorewalk/internal/speech/whisper"
	"chorewalk/internal/tasks"
	"chorewalk/pkg/cache"
	"chorewalk/pkg/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_OpenAI(t *testing.T) {
	cfg := &config.Config{}
	cfg.Speech.Provider = config.ProviderOpenAI
	cfg.Speech.OpenAI.APIKey = "sk-test"

	p, release, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer release()

	assert.Equal(t, whisper.Name, p.Name())
}

func TestNew_MissingSettings(t *testing.T) {
	tests := []struct {
		name     string
		provider string
	}{
		{"openai without key", config.ProviderOpenAI},
		{"google without project", config.ProviderGoogle},
		{"speechkit without storage", config.ProviderSpeechKit},
		{"unknown", "watson"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Speech.Provider = tt.provider

			_, _, err := New(context.Background(), cfg, nil)
			assert.Error(t, err)
		})
	}
}

func TestNewExtractor(t *testing.T) {
	cfg := &config.Config{}
	assert.IsType(t, tasks.Passthrough{}, NewExtractor(cfg))

	cfg.Tasks.Enabled = true
	assert.IsType(t, tasks.Passthrough{}, NewExtractor(cfg))

	cfg.Speech.OpenAI.APIKey = "sk-test"
	assert.IsType(t, &tasks.OpenAIExtractor{}, NewExtractor(cfg))
}

func TestNewCache_FallsBackToMemory(t *testing.T) {
	if testing.Short() {
		t.Skip("dials a closed port")
	}

	cfg := &config.Config{}
	cfg.Redis.Addr = "127.0.0.1:1"
	cfg.Redis.TTL = time.Minute

	c := NewCache(cfg)
	defer c.Close()

	assert.IsType(t, &cache.MemoryCache{}, c)
}

func TestGuard(t *testing.T) {
	cfg := &config.Config{}
	cfg.Speech.OpenAI.APIKey = "sk-test"
	cfg.Resilience.BreakerFailures = 3
	cfg.Resilience.BreakerTimeout = time.Second

	g := Guard(whisper.New(whisper.Options{APIKey: "sk-test"}), cfg, cache.NewMemoryCache(0))

	assert.Equal(t, whisper.Name, g.Name())
	assert.Equal(t, resilience.StateClosed, g.BreakerState())
}
