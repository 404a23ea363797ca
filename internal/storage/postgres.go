package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"runtime"

	"chorewalk/pkg/apperr"
	"chorewalk/pkg/logger"
	"chorewalk/pkg/model"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// MigrationsDir is resolved relative to the working directory
const MigrationsDir = "migrations"

const jobColumns = `id, status, mime_type, size, audio_key, provider, text, confidence,
		       tasks, attempts, error_text, created_at, updated_at, processed_at`

type PostgresStorage struct {
	pool *pgxpool.Pool
}

// New PostgreSQL storage instance
func NewPostgresStorage(ctx context.Context, databaseURL string) (*PostgresStorage, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established")

	if err := runMigrations(databaseURL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

// migrationsURL builds a file:// source URL for dir (works on both Windows and Unix)
func migrationsURL(dir string) (string, error) {
	path, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to get migrations path: %w", err)
	}

	if runtime.GOOS == "windows" {
		u := &url.URL{
			Scheme: "file",
			Path:   filepath.ToSlash(path),
		}
		return u.String(), nil
	}
	return fmt.Sprintf("file://%s", path), nil
}

func newMigrate(databaseURL string) (*migrate.Migrate, func(), error) {
	sourceURL, err := migrationsURL(MigrationsDir)
	if err != nil {
		return nil, nil, err
	}

	connConfig, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// golang-migrate needs a database/sql handle
	db := stdlib.OpenDB(*connConfig)

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	logger.Info("Running migrations", zap.String("path", sourceURL))

	return m, func() {
		m.Close()
		db.Close()
	}, nil
}

// Executing database migrations
func runMigrations(databaseURL string) error {
	m, closeFn, err := newMigrate(databaseURL)
	if err != nil {
		return err
	}
	defer closeFn()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("No new migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Migrations applied successfully")
	return nil
}

// Drops all tables and re-runs migrations (for development)
func ResetMigrations(databaseURL string) error {
	logger.Warn("Resetting database - this will drop all data!")

	m, closeFn, err := newMigrate(databaseURL)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := m.Drop(); err != nil {
		return fmt.Errorf("failed to drop database: %w", err)
	}

	logger.Info("Database dropped successfully")

	if err := m.Up(); err != nil {
		return fmt.Errorf("failed to run migrations after reset: %w", err)
	}

	logger.Info("Database reset and migrations applied successfully")
	return nil
}

// Closes the database connection pool
func (s *PostgresStorage) Close() {
	s.pool.Close()
}

// Ping checks the database connection
func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateJob inserts a new transcription job
func (s *PostgresStorage) CreateJob(ctx context.Context, job *model.Job) error {
	query := `
		INSERT INTO transcription_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := s.pool.Exec(ctx, query,
		job.ID,
		job.Status,
		job.MIMEType,
		job.Size,
		job.AudioKey,
		job.Provider,
		job.Text,
		job.Confidence,
		job.Tasks,
		job.Attempts,
		job.ErrorText,
		job.CreatedAt,
		job.UpdatedAt,
		job.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetJobByID retrieves a job by its ID
func (s *PostgresStorage) GetJobByID(ctx context.Context, id string) (*model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM transcription_jobs WHERE id = $1`

	var job model.Job
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&job.ID,
		&job.Status,
		&job.MIMEType,
		&job.Size,
		&job.AudioKey,
		&job.Provider,
		&job.Text,
		&job.Confidence,
		&job.Tasks,
		&job.Attempts,
		&job.ErrorText,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.Newf(apperr.KindNotFound, "job %s not found", id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// UpdateJob updates a full job
func (s *PostgresStorage) UpdateJob(ctx context.Context, job *model.Job) error {
	query := `
		UPDATE transcription_jobs
		SET status = $2, mime_type = $3, size = $4, audio_key = $5, provider = $6,
		    text = $7, confidence = $8, tasks = $9, attempts = $10, error_text = $11,
		    updated_at = $12, processed_at = $13
		WHERE id = $1`

	result, err := s.pool.Exec(ctx, query,
		job.ID,
		job.Status,
		job.MIMEType,
		job.Size,
		job.AudioKey,
		job.Provider,
		job.Text,
		job.Confidence,
		job.Tasks,
		job.Attempts,
		job.ErrorText,
		job.UpdatedAt,
		job.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperr.Newf(apperr.KindNotFound, "job %s not found", job.ID)
	}

	return nil
}

// GetQueuedJobs retrieves the oldest jobs still waiting for the worker
func (s *PostgresStorage) GetQueuedJobs(ctx context.Context, limit int) ([]*model.Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM transcription_jobs
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, model.JobStatusQueued, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get queued jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		var job model.Job
		err := rows.Scan(
			&job.ID,
			&job.Status,
			&job.MIMEType,
			&job.Size,
			&job.AudioKey,
			&job.Provider,
			&job.Text,
			&job.Confidence,
			&job.Tasks,
			&job.Attempts,
			&job.ErrorText,
			&job.CreatedAt,
			&job.UpdatedAt,
			&job.ProcessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, &job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}

	return jobs, nil
}
