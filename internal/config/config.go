package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"chorewalk/pkg/logger"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const defaultConfigPath = "configs/config.yaml"

// Speech provider names accepted in Speech.Provider
const (
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderSpeechKit = "speechkit"
)

type Config struct {
	Log logger.Options `yaml:"log"`

	HTTP struct {
		Addr            string        `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"30s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"180s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
		MaxBodyBytes    int64         `yaml:"max_body_bytes" env:"HTTP_MAX_BODY_BYTES" env-default:"33554432"`
		Mode            string        `yaml:"mode" env:"GIN_MODE" env-default:"release"`
	} `yaml:"http"`

	Recorder struct {
		Device           string        `yaml:"device" env:"RECORDER_DEVICE" env-default:"portaudio"`
		MaxSeconds       int           `yaml:"max_seconds" env:"RECORDER_MAX_SECONDS" env-default:"60"`
		MinBytes         int           `yaml:"min_bytes" env:"RECORDER_MIN_BYTES" env-default:"1000"`
		ChunkInterval    time.Duration `yaml:"chunk_interval" env:"RECORDER_CHUNK_INTERVAL" env-default:"500ms"`
		SampleRate       int           `yaml:"sample_rate" env:"RECORDER_SAMPLE_RATE" env-default:"16000"`
		Channels         int           `yaml:"channels" env:"RECORDER_CHANNELS" env-default:"1"`
		EchoCancellation bool          `yaml:"echo_cancellation" env:"RECORDER_ECHO_CANCELLATION" env-default:"true"`
		NoiseSuppression bool          `yaml:"noise_suppression" env:"RECORDER_NOISE_SUPPRESSION" env-default:"true"`
		AutoGainControl  bool          `yaml:"auto_gain_control" env:"RECORDER_AUTO_GAIN_CONTROL" env-default:"true"`
	} `yaml:"recorder"`

	Client struct {
		EndpointURL string        `yaml:"endpoint_url" env:"TRANSCRIBE_ENDPOINT_URL" env-default:"http://localhost:8080/transcribe-audio"`
		FallbackURL string        `yaml:"fallback_url" env:"TRANSCRIBE_FALLBACK_URL"`
		APIKey      string        `yaml:"api_key" env:"TRANSCRIBE_API_KEY"`
		Timeout     time.Duration `yaml:"timeout" env:"TRANSCRIBE_TIMEOUT" env-default:"30s"`
	} `yaml:"client"`

	Speech struct {
		Provider string        `yaml:"provider" env:"SPEECH_PROVIDER" env-default:"openai"`
		Language string        `yaml:"language" env:"SPEECH_LANGUAGE" env-default:"en-US"`
		Timeout  time.Duration `yaml:"timeout" env:"SPEECH_TIMEOUT" env-default:"120s"`

		OpenAI struct {
			APIKey  string `yaml:"api_key" env:"OPENAI_API_KEY"`
			BaseURL string `yaml:"base_url" env:"OPENAI_BASE_URL"`
			Model   string `yaml:"model" env:"OPENAI_TRANSCRIPTION_MODEL" env-default:"whisper-1"`
		} `yaml:"openai"`

		Google struct {
			ProjectID       string `yaml:"project_id" env:"GOOGLE_PROJECT_ID"`
			CredentialsJSON string `yaml:"credentials_json" env:"GOOGLE_CREDENTIALS_JSON"`
			Location        string `yaml:"location" env:"GOOGLE_SPEECH_LOCATION" env-default:"global"`
			Model           string `yaml:"model" env:"GOOGLE_SPEECH_MODEL" env-default:"long"`
		} `yaml:"google"`

		SpeechKit struct {
			FolderID     string        `yaml:"folder_id" env:"YANDEX_FOLDER_ID"`
			APIKey       string        `yaml:"api_key" env:"YANDEX_API_KEY"`
			Model        string        `yaml:"model" env:"YANDEX_SPEECH_MODEL" env-default:"general"`
			PollInterval time.Duration `yaml:"poll_interval" env:"YANDEX_POLL_INTERVAL" env-default:"5s"`
			MaxWait      time.Duration `yaml:"max_wait" env:"YANDEX_MAX_WAIT" env-default:"30m"`
		} `yaml:"speechkit"`
	} `yaml:"speech"`

	Tasks struct {
		Enabled bool   `yaml:"enabled" env:"TASKS_ENABLED" env-default:"true"`
		APIKey  string `yaml:"api_key" env:"TASKS_API_KEY"`
		BaseURL string `yaml:"base_url" env:"TASKS_BASE_URL"`
		Model   string `yaml:"model" env:"TASKS_MODEL" env-default:"gpt-4o-mini"`
	} `yaml:"tasks"`

	Resilience struct {
		BreakerFailures uint32        `yaml:"breaker_failures" env:"BREAKER_FAILURES" env-default:"5"`
		BreakerTimeout  time.Duration `yaml:"breaker_timeout" env:"BREAKER_TIMEOUT" env-default:"30s"`
		RateLimit       int           `yaml:"rate_limit" env:"RATE_LIMIT" env-default:"10"`
		RateInterval    time.Duration `yaml:"rate_interval" env:"RATE_INTERVAL" env-default:"1s"`
	} `yaml:"resilience"`

	RabbitMQ struct {
		URL string `yaml:"url" env:"RABBITMQ_URL"`
	} `yaml:"rabbitmq"`

	Postgres struct {
		DSN string `yaml:"dsn" env:"POSTGRES_DSN"`
	} `yaml:"postgres"`

	S3 struct {
		Endpoint  string `yaml:"endpoint" env:"S3_ENDPOINT"`
		Region    string `yaml:"region" env:"S3_REGION" env-default:"ru-central1"`
		AccessKey string `yaml:"access_key" env:"S3_ACCESS_KEY"`
		SecretKey string `yaml:"secret_key" env:"S3_SECRET_KEY"`
		Bucket    string `yaml:"bucket" env:"S3_BUCKET" env-default:"audio-recordings"`
	} `yaml:"s3"`

	Redis struct {
		Addr      string        `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
		Password  string        `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
		DB        int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
		TTL       time.Duration `yaml:"ttl" env:"REDIS_TTL" env-default:"24h"`
		Namespace string        `yaml:"namespace" env:"REDIS_NAMESPACE" env-default:"chorewalk"`
	} `yaml:"redis"`

	Worker struct {
		Concurrency int `yaml:"concurrency" env:"WORKER_CONCURRENCY" env-default:"4"`
	} `yaml:"worker"`
}

// LoadConfig reads CONFIG_PATH (or configs/config.yaml) and applies env overrides.
// A missing file is not an error; env and defaults are used instead.
func LoadConfig() (*Config, error) {
	// Load .env file
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}

	var cfg Config
	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Info("Config loaded successfully")
	return &cfg, nil
}

// Validate checks cross-field rules cleanenv cannot express
func (c *Config) Validate() error {
	var errs []error

	if c.Recorder.MaxSeconds <= 0 {
		errs = append(errs, errors.New("recorder.max_seconds must be positive"))
	}
	if c.Recorder.MinBytes < 0 {
		errs = append(errs, errors.New("recorder.min_bytes must not be negative"))
	}
	if c.Recorder.ChunkInterval <= 0 {
		errs = append(errs, errors.New("recorder.chunk_interval must be positive"))
	}
	if c.Recorder.SampleRate <= 0 || c.Recorder.Channels <= 0 {
		errs = append(errs, errors.New("recorder.sample_rate and recorder.channels must be positive"))
	}
	if c.Client.Timeout <= 0 {
		errs = append(errs, errors.New("client.timeout must be positive"))
	}

	switch c.Speech.Provider {
	case ProviderOpenAI, ProviderGoogle, ProviderSpeechKit:
	default:
		errs = append(errs, fmt.Errorf("unknown speech.provider %q", c.Speech.Provider))
	}

	return errors.Join(errs...)
}
