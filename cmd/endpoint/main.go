package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"chorewalk/internal/config"
	"chorewalk/internal/endpoint"
	"chorewalk/internal/queue"
	"chorewalk/internal/speech/providers"
	"chorewalk/internal/speech/speechkit"
	"chorewalk/internal/storage"
	"chorewalk/pkg/logger"
	"chorewalk/pkg/resilience"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}

	// Initialize logger
	logOpts := cfg.Log
	logOpts.Service = "endpoint"
	if err := logger.Init(logOpts); err != nil {
		panic("Failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("Starting chorewalk transcription endpoint")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	deps := endpoint.Dependencies{
		Language:     cfg.Speech.Language,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		Limiter:      resilience.NewRateLimiter(cfg.Resilience.RateLimit, cfg.Resilience.RateInterval),
		Extractor:    providers.NewExtractor(cfg),
	}

	// Optional job persistence
	if cfg.Postgres.DSN != "" {
		db, err := storage.NewPostgresStorage(ctx, cfg.Postgres.DSN)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		deps.Jobs = db
	}

	// Optional audio archive
	var uploader speechkit.Uploader
	if cfg.S3.Bucket != "" && (cfg.S3.Endpoint != "" || cfg.S3.AccessKey != "") {
		s3Storage, err := storage.NewS3Storage(ctx, storage.S3Options{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
		})
		if err != nil {
			logger.Fatal("Failed to initialize S3 storage", zap.Error(err))
		}
		logger.Info("S3 storage initialized", zap.String("bucket", cfg.S3.Bucket))
		deps.Archive = s3Storage
		uploader = s3Storage
	}

	// Optional async job queue
	if cfg.RabbitMQ.URL != "" {
		rabbitMQ, err := queue.NewRabbitMQ(cfg.RabbitMQ.URL)
		if err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer rabbitMQ.Close()
		deps.Publisher = rabbitMQ
	}

	provider, release, err := providers.New(ctx, cfg, uploader)
	if err != nil {
		logger.Fatal("Failed to initialize speech provider", zap.Error(err))
	}
	defer release()

	transcriptCache := providers.NewCache(cfg)
	defer transcriptCache.Close()

	deps.Provider = providers.Guard(provider, cfg, transcriptCache)

	gin.SetMode(cfg.HTTP.Mode)
	handler := endpoint.NewHandler(deps)

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", zap.Error(err))
			cancel()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("Shutting down endpoint")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Endpoint shutdown complete")
}
