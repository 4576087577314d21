// Package bootstrap provides dependency initialization for the PenguinBlur API.
package bootstrap

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/penguinblur/penguinblur-api/internal/config"
	"github.com/penguinblur/penguinblur-api/internal/job"
	"github.com/penguinblur/penguinblur-api/internal/media"
	"github.com/penguinblur/penguinblur-api/internal/notify"
	"github.com/penguinblur/penguinblur-api/internal/reaper"
	"github.com/penguinblur/penguinblur-api/internal/storage"
	"github.com/penguinblur/penguinblur-api/internal/vision"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Service *job.Service
	Store   storage.Storage
	Hub     *notify.Hub
	Reaper  *reaper.Reaper
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.OutputDir, 0750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	hub := notify.NewHub(logger)
	registry := job.NewRegistry(hub)

	detector := vision.NewCommandDetector(cfg.DetectorPath)
	transcoder := media.NewFFmpegTranscoder(cfg.FFmpegPath, cfg.FFprobePath, cfg.OutputDir)

	svc := job.NewService(
		registry,
		hub,
		store,
		detector,
		transcoder,
		logger,
		job.WithTTL(cfg.JobTTL),
		job.WithProcessTimeout(cfg.ProcessTimeout),
	)

	sweep := reaper.New(
		registry,
		store,
		[]string{cfg.UploadDir, cfg.OutputDir},
		cfg.JobTTL,
		logger,
		reaper.WithInterval(cfg.SweepInterval),
	)

	return &Dependencies{
		Service: svc,
		Store:   store,
		Hub:     hub,
		Reaper:  sweep,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.UploadDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 result mirror configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("upload_dir", cfg.UploadDir),
	)
	return localStore, nil
}
