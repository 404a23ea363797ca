package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"chorewalk/internal/config"
	"chorewalk/internal/queue"
	"chorewalk/internal/speech/providers"
	"chorewalk/internal/storage"
	"chorewalk/internal/worker"
	"chorewalk/pkg/logger"

	"go.uber.org/zap"
)

const requeueBatch = 100

func main() {
	// Parse command line flags
	resetDB := flag.Bool("reset-db", false, "Reset database by dropping all tables and re-running migrations")
	requeue := flag.Bool("requeue", false, "Republish jobs still queued in the database before consuming")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}

	// Initialize logger
	logOpts := cfg.Log
	logOpts.Service = "worker"
	if err := logger.Init(logOpts); err != nil {
		panic("Failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("Starting chorewalk worker service")

	if cfg.Postgres.DSN == "" {
		logger.Fatal("postgres.dsn (POSTGRES_DSN) is required")
	}

	// Reset database if flag is provided
	if *resetDB {
		logger.Info("Resetting database...")
		if err := storage.ResetMigrations(cfg.Postgres.DSN); err != nil {
			logger.Fatal("Failed to reset database", zap.Error(err))
		}
		logger.Info("Database reset completed successfully")
		return
	}

	// Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Connect to database
	db, err := storage.NewPostgresStorage(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize S3 storage from config
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

	logger.Info("S3 storage initialized")

	provider, release, err := providers.New(ctx, cfg, s3Storage)
	if err != nil {
		logger.Fatal("Failed to initialize speech provider", zap.Error(err))
	}
	defer release()

	transcriptCache := providers.NewCache(cfg)
	defer transcriptCache.Close()

	// Connect to RabbitMQ
	rabbitMQ, err := queue.NewRabbitMQ(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer rabbitMQ.Close()

	logger.Info("RabbitMQ connection established")

	if *requeue {
		republishQueued(ctx, db, rabbitMQ, cfg.Speech.Language)
	}

	processor := worker.NewProcessor(db, s3Storage, providers.Guard(provider, cfg, transcriptCache), providers.NewExtractor(cfg))

	// Start consuming messages
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting to consume messages from queue", zap.Int("concurrency", cfg.Worker.Concurrency))
		errCh <- rabbitMQ.Consume(ctx, queue.QueueNameAudioProcessing, cfg.Worker.Concurrency, processor.ProcessJob)
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal, waiting for in-flight jobs")
		<-errCh
	case err := <-errCh:
		if err != nil {
			logger.Error("Failed to consume messages", zap.Error(err))
			cancel()
			os.Exit(1)
		}
	}

	logger.Info("Worker service shutdown complete")
}

// republishQueued puts jobs left in the queued state back on the queue
func republishQueued(ctx context.Context, db *storage.PostgresStorage, mq *queue.RabbitMQ, language string) {
	jobs, err := db.GetQueuedJobs(ctx, requeueBatch)
	if err != nil {
		logger.Error("Failed to load queued jobs", zap.Error(err))
		return
	}

	for _, job := range jobs {
		if job.AudioKey == nil {
			logger.Warn("Queued job has no audio, skipping", zap.String("job_id", job.ID))
			continue
		}

		err := mq.PublishJob(ctx, &queue.AudioJob{
			JobID:     job.ID,
			AudioKey:  *job.AudioKey,
			MIMEType:  job.MIMEType,
			Size:      job.Size,
			Language:  language,
			CreatedAt: job.CreatedAt,
		})
		if err != nil {
			logger.Error("Failed to republish job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}

	logger.Info("Queued jobs republished", zap.Int("count", len(jobs)))
}
