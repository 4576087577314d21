package config

import (
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv() {
	os.Unsetenv("PORT")
	os.Unsetenv("UPLOAD_DIR")
	os.Unsetenv("OUTPUT_DIR")
	os.Unsetenv("MAX_UPLOAD_MB")
	os.Unsetenv("JOB_TTL")
	os.Unsetenv("SWEEP_INTERVAL")
	os.Unsetenv("PROCESS_TIMEOUT")
	os.Unsetenv("FFMPEG_PATH")
	os.Unsetenv("FFPROBE_PATH")
	os.Unsetenv("DETECTOR_PATH")
	os.Unsetenv("S3_BUCKET")
	os.Unsetenv("S3_REGION")
	os.Unsetenv("AWS_ACCESS_KEY_ID")
	os.Unsetenv("AWS_SECRET_ACCESS_KEY")
	os.Unsetenv("LOG_FORMAT")
	os.Unsetenv("LOG_LEVEL")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/tmp/penguinblur/uploads", cfg.UploadDir)
	assert.Equal(t, "/tmp/penguinblur/processed", cfg.OutputDir)
	assert.Equal(t, int64(100), cfg.MaxUploadMB)
	assert.Equal(t, 15*time.Minute, cfg.JobTTL)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 5*time.Minute, cfg.ProcessTimeout)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.S3Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv()
	t.Setenv("PORT", "9090")
	t.Setenv("JOB_TTL", "30m")
	t.Setenv("MAX_UPLOAD_MB", "250")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 30*time.Minute, cfg.JobTTL)
	assert.Equal(t, int64(250), cfg.MaxUploadMB)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_Validation(t *testing.T) {
	t.Run("TTL below one minute returns error", func(t *testing.T) {
		clearEnv()
		t.Setenv("JOB_TTL", "30s")

		_, err := Load()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTTLTooShort)
	})

	t.Run("bucket without region returns error", func(t *testing.T) {
		clearEnv()
		t.Setenv("S3_BUCKET", "results")

		_, err := Load()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrS3Partial)
	})

	t.Run("region without bucket returns error", func(t *testing.T) {
		clearEnv()
		t.Setenv("S3_REGION", "eu-west-1")

		_, err := Load()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrS3Partial)
	})

	t.Run("bucket and region together succeed", func(t *testing.T) {
		clearEnv()
		t.Setenv("S3_BUCKET", "results")
		t.Setenv("S3_REGION", "eu-west-1")

		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.S3Enabled())
	})
}

func TestConfig_MaxUploadBytes(t *testing.T) {
	cfg := &Config{MaxUploadMB: 100}
	assert.Equal(t, int64(100<<20), cfg.MaxUploadBytes())
}

func TestConfig_String_MasksSecrets(t *testing.T) {
	cfg := &Config{
		Port:               8080,
		AWSAccessKeyID:     "AKIAEXAMPLE",
		AWSSecretAccessKey: "secret-value",
	}

	s := cfg.String()
	assert.NotContains(t, s, "AKIAEXAMPLE")
	assert.NotContains(t, s, "secret-value")
	assert.True(t, strings.Contains(s, "Port: 8080"))
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name   string
		format string
		level  string
	}{
		{"text handler", "text", "info"},
		{"json handler", "json", "debug"},
		{"unknown level falls back to info", "text", "bogus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogFormat: tt.format, LogLevel: tt.level}
			logger := cfg.NewLogger()
			require.NotNil(t, logger)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("info"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warn"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("WARNING"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel(""))
}
