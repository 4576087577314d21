// Package reaper enforces TTL-based deletion: a periodic sweep removes
// expired job records together with their on-disk artifacts, and clears
// orphaned files left behind by crashes or lost records.
package reaper

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/penguinblur/penguinblur-api/internal/job"
	"github.com/penguinblur/penguinblur-api/internal/storage"
	"github.com/penguinblur/penguinblur-api/internal/telemetry"
)

// DefaultInterval is the default sweep period.
const DefaultInterval = 5 * time.Minute

// Reaper periodically sweeps the registry and the scanned directories.
type Reaper struct {
	registry *job.Registry
	store    storage.Storage
	logger   *slog.Logger

	// scanDirs are the shared directories checked for orphaned files.
	scanDirs []string
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
}

// Option configures a Reaper.
type Option func(*Reaper)

// WithInterval overrides the sweep period.
func WithInterval(d time.Duration) Option {
	return func(r *Reaper) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithClock overrides the reaper's time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Reaper) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a Reaper. scanDirs lists the shared temp directories swept
// for orphans; ttl is the same fixed TTL jobs are admitted with.
func New(registry *job.Registry, store storage.Storage, scanDirs []string, ttl time.Duration, logger *slog.Logger, opts ...Option) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reaper{
		registry: registry,
		store:    store,
		logger:   logger,
		scanDirs: scanDirs,
		ttl:      ttl,
		interval: DefaultInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run sweeps on a fixed period until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reaper started",
		slog.Duration("interval", r.interval),
		slog.Duration("ttl", r.ttl),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return
		case <-ticker.C:
			removed, orphans := r.Sweep(ctx)
			if removed > 0 || orphans > 0 {
				r.logger.Info("sweep finished",
					slog.Int("removed_jobs", removed),
					slog.Int("orphan_files", orphans),
				)
			}
		}
	}
}

// Sweep runs one pass and returns the number of removed jobs and deleted
// orphan files. The registry snapshot is taken before filtering, so a job
// admitted mid-sweep is never considered in the same sweep.
func (r *Reaper) Sweep(ctx context.Context) (removedJobs, orphanFiles int) {
	now := r.now()
	snapshot := r.registry.List()

	tracked := make(map[string]struct{}, len(snapshot)*2)
	for _, j := range snapshot {
		for _, p := range j.Paths() {
			tracked[p] = struct{}{}
		}
	}

	for _, j := range snapshot {
		if !j.Expired(now) {
			continue
		}
		removed, err := r.registry.Remove(j.ID)
		if err != nil {
			// Already gone: an explicit delete raced the sweep. Treated
			// as success.
			continue
		}
		removedJobs++
		telemetry.JobsReaped.Inc()

		if err := r.store.Remove(ctx, removed.Paths()...); err != nil {
			r.logger.Warn("expired file cleanup failed",
				slog.String("job_id", removed.ID),
				slog.String("error", err.Error()),
			)
		}
		if removed.MirrorKey != "" {
			if err := r.store.RemoveMirror(ctx, removed.MirrorKey); err != nil {
				r.logger.Warn("expired mirror cleanup failed",
					slog.String("job_id", removed.ID),
					slog.String("error", err.Error()),
				)
			}
		}

		r.logger.Info("expired job removed", slog.String("job_id", removed.ID))
	}

	orphanFiles = r.sweepOrphans(ctx, now, tracked)

	telemetry.JobsActive.Set(float64(r.registry.Len()))
	return removedJobs, orphanFiles
}

// sweepOrphans deletes files older than the TTL that no tracked job owns.
// This guards against jobs lost to process restarts or registry bugs.
func (r *Reaper) sweepOrphans(ctx context.Context, now time.Time, tracked map[string]struct{}) int {
	cutoff := now.Add(-r.ttl)
	deleted := 0

	for _, dir := range r.scanDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				r.logger.Warn("orphan scan failed",
					slog.String("dir", dir),
					slog.String("error", err.Error()),
				)
			}
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if _, ok := tracked[path]; ok {
				continue
			}
			info, err := entry.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}

			if err := r.store.Remove(ctx, path); err != nil {
				r.logger.Warn("orphan delete failed",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
				continue
			}
			deleted++
			telemetry.OrphansReaped.Inc()
			r.logger.Info("orphan file removed", slog.String("path", path))
		}
	}

	return deleted
}
