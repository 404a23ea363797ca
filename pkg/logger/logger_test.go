package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaultLoggerIsUsableBeforeInit(t *testing.T) {
	assert.NotPanics(t, func() {
		Info("before init", zap.String("k", "v"))
	})
}

func TestInit_InvalidLevel(t *testing.T) {
	err := Init(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestInit_Production(t *testing.T) {
	restore := Replace(Logger)
	defer restore()

	require.NoError(t, Init(Options{Level: "warn", Encoding: "console"}))
	assert.False(t, Logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, Logger.Core().Enabled(zapcore.WarnLevel))
}

func TestReplace_RoutesHelpers(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := Replace(zap.New(core))
	defer restore()

	Debug("d")
	Info("i", zap.Int("n", 1))
	Warn("w")
	Error("e")
	Named("capture").Info("scoped")

	require.Equal(t, 5, logs.Len())
	assert.Equal(t, "i", logs.All()[1].Message)
	assert.Equal(t, "capture", logs.All()[4].LoggerName)
}

func TestOptions_ZapConfig(t *testing.T) {
	cfg, err := Options{Service: "worker", Encoding: "console"}.zapConfig()
	require.NoError(t, err)
	assert.Equal(t, "console", cfg.Encoding)
	assert.Equal(t, "worker", cfg.InitialFields["service"])
	assert.False(t, cfg.Development)

	cfg, err = Options{Debug: true}.zapConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Development)
	assert.Nil(t, cfg.InitialFields)
}

func TestWith_AttachesFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := Replace(zap.New(core))
	defer restore()

	With(zap.String("job_id", "j1")).Info("picked up")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "j1", logs.All()[0].ContextMap()["job_id"])
}
