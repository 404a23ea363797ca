package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"chorewalk/pkg/apperr"
	"chorewalk/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// S3Options configures an S3-compatible bucket
type S3Options struct {
	// Endpoint is an S3-compatible URL such as https://storage.yandexcloud.net; empty means AWS.
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
}

// baseURL is the public prefix objects are addressed under, path-style
func (o S3Options) baseURL() string {
	if o.Endpoint != "" {
		return strings.TrimRight(o.Endpoint, "/")
	}
	return fmt.Sprintf("https://s3.%s.amazonaws.com", o.Region)
}

// S3Storage archives recorded audio in a bucket
type S3Storage struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

func NewS3Storage(ctx context.Context, opts S3Options) (*S3Storage, error) {
	var loadOpts []func(*config.LoadOptions) error
	loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	if opts.AccessKey != "" {
		static := credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")
		loadOpts = append(loadOpts, config.WithCredentialsProvider(static))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})

	s := &S3Storage{client: client, bucket: opts.Bucket, baseURL: opts.baseURL()}

	logger.Info("Audio archive ready",
		zap.String("bucket", s.bucket),
		zap.String("endpoint", s.baseURL))

	return s, nil
}

// ObjectURL returns the path-style URL of key
func (s *S3Storage) ObjectURL(key string) string {
	return s.baseURL + "/" + path.Join(s.bucket, key)
}

// UploadFile stores body under key and returns the object URL
func (s *S3Storage) UploadFile(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	url := s.ObjectURL(key)
	logger.Info("Audio archived", zap.String("key", key), zap.String("url", url))
	return url, nil
}

func (s *S3Storage) GenerateKey(id, extension string) string {
	return GenerateKey(time.Now().UTC(), id, extension)
}

// GenerateKey lays audio out by day: audio/2006/01/02/<id><ext>
func GenerateKey(now time.Time, id, extension string) string {
	return path.Join("audio", now.Format("2006/01/02"), id+extension)
}

// DownloadFile reads the whole object. A missing key is reported as
// apperr.KindNotFound so callers do not retry it.
func (s *S3Storage) DownloadFile(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, downloadError(key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	logger.Debug("Audio fetched from archive", zap.String("key", key), zap.Int("size", len(data)))
	return data, nil
}

func downloadError(key string, err error) error {
	var missing *types.NoSuchKey
	if errors.As(err, &missing) {
		return apperr.Wrap(apperr.KindNotFound, fmt.Sprintf("archived audio %s not found", key), err)
	}
	return fmt.Errorf("failed to download %s: %w", key, err)
}
