// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrTTLTooShort is returned when JOB_TTL is below one minute.
	ErrTTLTooShort = errors.New("config: JOB_TTL must be at least 1m")
	// ErrS3Partial is returned when only one of S3_BUCKET/S3_REGION is set.
	ErrS3Partial = errors.New("config: S3_BUCKET and S3_REGION must be set together")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Storage settings
	UploadDir string `env:"UPLOAD_DIR, default=/tmp/penguinblur/uploads" json:"upload_dir"`
	OutputDir string `env:"OUTPUT_DIR, default=/tmp/penguinblur/processed" json:"output_dir"`
	// MaxUploadMB caps a single multipart upload.
	MaxUploadMB int64 `env:"MAX_UPLOAD_MB, default=100" json:"max_upload_mb"`

	// Lifecycle settings
	JobTTL         time.Duration `env:"JOB_TTL, default=15m" json:"job_ttl"`
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL, default=5m" json:"sweep_interval"`
	ProcessTimeout time.Duration `env:"PROCESS_TIMEOUT, default=5m" json:"process_timeout"`

	// External tool settings
	FFmpegPath   string `env:"FFMPEG_PATH" json:"ffmpeg_path,omitempty"`
	FFprobePath  string `env:"FFPROBE_PATH" json:"ffprobe_path,omitempty"`
	DetectorPath string `env:"DETECTOR_PATH" json:"detector_path,omitempty"`

	// Optional S3 result mirror settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if the S3 result mirror is configured.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// MaxUploadBytes returns the upload cap in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

// Load reads configuration from environment variables using go-envconfig.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints the env tags cannot express.
func (c *Config) Validate() error {
	if c.JobTTL < time.Minute {
		return ErrTTLTooShort
	}
	if (c.S3Bucket == "") != (c.S3Region == "") {
		return ErrS3Partial
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive
// values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, UploadDir: %s, OutputDir: %s, MaxUploadMB: %d, JobTTL: %s, SweepInterval: %s, ProcessTimeout: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.UploadDir,
		c.OutputDir,
		c.MaxUploadMB,
		c.JobTTL,
		c.SweepInterval,
		c.ProcessTimeout,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
