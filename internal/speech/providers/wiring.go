package providers

import (
	"chorewalk/internal/config"
	"chorewalk/internal/speech"
	"chorewalk/internal/tasks"
	"chorewalk/pkg/cache"
	"chorewalk/pkg/logger"
	"chorewalk/pkg/resilience"

	"go.uber.org/zap"
)

// NewCache connects to Redis, falling back to an in-process cache when Redis is unreachable
func NewCache(cfg *config.Config) cache.Cache {
	rc, err := cache.NewRedisCache(cache.Options{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		TTL:       cfg.Redis.TTL,
		Namespace: cfg.Redis.Namespace,
	})
	if err != nil {
		logger.Warn("Redis unavailable, using in-memory transcript cache", zap.Error(err))
		return cache.NewMemoryCache(cfg.Redis.TTL)
	}

	logger.Info("Redis cache connection established", zap.String("addr", cfg.Redis.Addr))
	return rc
}

// Guard wraps p with the configured breaker, timeout and transcript cache
func Guard(p speech.Provider, cfg *config.Config, c cache.Cache) *speech.Guarded {
	return speech.NewGuarded(p, speech.GuardOptions{
		Cache:    c,
		Breaker:  resilience.NewCircuitBreaker(cfg.Resilience.BreakerFailures, cfg.Resilience.BreakerTimeout),
		Timeout:  cfg.Speech.Timeout,
		CacheTTL: cfg.Redis.TTL,
	})
}

// NewExtractor returns the chat-model extractor when enabled, otherwise the passthrough.
// The task key defaults to the OpenAI speech key.
func NewExtractor(cfg *config.Config) tasks.Extractor {
	if !cfg.Tasks.Enabled {
		return tasks.Passthrough{}
	}

	apiKey := cfg.Tasks.APIKey
	if apiKey == "" {
		apiKey = cfg.Speech.OpenAI.APIKey
	}
	if apiKey == "" {
		logger.Warn("Task extraction enabled without an API key, filing transcripts as single tasks")
		return tasks.Passthrough{}
	}

	return tasks.NewOpenAIExtractor(tasks.Options{
		APIKey:  apiKey,
		BaseURL: cfg.Tasks.BaseURL,
		Model:   cfg.Tasks.Model,
	})
}
