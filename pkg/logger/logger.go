// Package logger holds the process-wide zap logger and thin helpers around it.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger discards everything until Init is called.
var Logger = zap.NewNop()

// Options controls how the global logger is built
type Options struct {
	Debug    bool   `yaml:"debug" env:"LOG_DEBUG" env-default:"false"`
	Level    string `yaml:"level" env:"LOG_LEVEL" env-default:""`
	Encoding string `yaml:"encoding" env:"LOG_ENCODING" env-default:""`
	// Service is attached to every entry; set by each binary, not by config.
	Service string `yaml:"-" env:"-"`
}

func (o Options) zapConfig() (zap.Config, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if o.Debug {
		cfg = zap.NewDevelopmentConfig()
	}

	if o.Level != "" {
		level, err := zapcore.ParseLevel(o.Level)
		if err != nil {
			return cfg, fmt.Errorf("failed to parse log level %q: %w", o.Level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
	}
	if o.Encoding != "" {
		cfg.Encoding = o.Encoding
	}
	if o.Service != "" {
		cfg.InitialFields = map[string]interface{}{"service": o.Service}
	}
	return cfg, nil
}

// Init builds the global logger from opts
func Init(opts Options) error {
	cfg, err := opts.zapConfig()
	if err != nil {
		return err
	}

	built, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	Logger = built
	return nil
}

// Replace swaps the global logger and returns a func restoring the previous one
func Replace(l *zap.Logger) func() {
	prev := Logger
	Logger = l
	return func() { Logger = prev }
}

// Named returns a child of the global logger scoped to a component
func Named(component string) *zap.Logger { return Logger.Named(component) }

// With returns a child of the global logger carrying fields
func With(fields ...zap.Field) *zap.Logger { return Logger.With(fields...) }

// Level helpers write through whatever Logger is current at call time.

func Debug(msg string, fields ...zap.Field) { Logger.Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { Logger.Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { Logger.Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { Logger.Error(msg, fields...) }

// Fatal logs and exits the process
func Fatal(msg string, fields ...zap.Field) { Logger.Fatal(msg, fields...) }

func Sync() error { return Logger.Sync() }
