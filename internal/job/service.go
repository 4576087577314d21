package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/penguinblur/penguinblur-api/internal/job/id"
	"github.com/penguinblur/penguinblur-api/internal/media"
	"github.com/penguinblur/penguinblur-api/internal/notify"
	"github.com/penguinblur/penguinblur-api/internal/storage"
	"github.com/penguinblur/penguinblur-api/internal/telemetry"
	"github.com/penguinblur/penguinblur-api/internal/vision"
)

const (
	// DefaultTTL is the fixed lifetime of every job.
	DefaultTTL = 15 * time.Minute
	// DefaultProcessTimeout is the wall-clock budget for one pipeline run.
	DefaultProcessTimeout = 5 * time.Minute
)

// Service is the public facade over the registry, the hub and the
// processing pipeline. Route handlers and the CLI talk to jobs only
// through it.
type Service struct {
	registry   *Registry
	hub        *notify.Hub
	store      storage.Storage
	detector   vision.Detector
	transcoder media.Transcoder
	logger     *slog.Logger

	ttl            time.Duration
	processTimeout time.Duration
	now            func() time.Time

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithTTL overrides the job lifetime.
func WithTTL(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithProcessTimeout overrides the pipeline wall-clock budget.
func WithProcessTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.processTimeout = d
		}
	}
}

// WithServiceClock overrides the service's time source, for tests.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates the facade. The registry must publish to the same hub
// for Subscribe to observe registry mutations.
func NewService(registry *Registry, hub *notify.Hub, store storage.Storage, detector vision.Detector, transcoder media.Transcoder, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		registry:       registry,
		hub:            hub,
		store:          store,
		detector:       detector,
		transcoder:     transcoder,
		logger:         logger,
		ttl:            DefaultTTL,
		processTimeout: DefaultProcessTimeout,
		now:            time.Now,
		cancels:        make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Admit registers a new job for an already persisted upload. The record
// starts in processing state with its expiry fixed at admission.
func (s *Service) Admit(ctx context.Context, inputPath string) (Job, error) {
	select {
	case <-ctx.Done():
		return Job{}, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	now := s.now()
	j := Job{
		ID:        id.New(),
		InputPath: inputPath,
		Status:    StatusProcessing,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	if err := s.registry.Admit(j); err != nil {
		return Job{}, err
	}

	telemetry.JobsAdmitted.Inc()
	telemetry.JobsActive.Set(float64(s.registry.Len()))

	s.logger.Info("job admitted",
		slog.String("job_id", j.ID),
		slog.String("input_path", inputPath),
		slog.Time("expires_at", j.ExpiresAt),
	)
	return j, nil
}

// StartProcessing launches the asynchronous pipeline run for an admitted
// job. Returns ErrAlreadyProcessing on a duplicate start and ErrJobNotFound
// for unknown or expired jobs.
func (s *Service) StartProcessing(ctx context.Context, jobID string, intensity media.BlurIntensity, mode vision.Mode) error {
	j, err := s.registry.MarkStarted(jobID, intensity, mode)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return ErrAlreadyProcessing
		}
		return err
	}

	// The run must survive the HTTP request that triggered it; only the
	// wall-clock budget and an explicit cancel end it early.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.processTimeout)
	s.mu.Lock()
	s.cancels[jobID] = cancel
	s.mu.Unlock()

	s.logger.Info("processing started",
		slog.String("job_id", jobID),
		slog.String("blur_intensity", string(intensity)),
		slog.String("detection_mode", string(mode)),
	)

	go s.run(runCtx, j.ID, intensity, mode)
	return nil
}

// GetStatus returns the current record. Expired and removed jobs are both
// reported ErrJobNotFound; callers cannot distinguish them.
func (s *Service) GetStatus(jobID string) (Job, error) {
	return s.registry.Get(jobID)
}

// List returns a snapshot of the tracked jobs, for monitoring. Expired
// records awaiting the reaper are filtered out, matching GetStatus: no
// query path reports an expired job as alive.
func (s *Service) List() []Job {
	now := s.now()
	all := s.registry.List()
	out := make([]Job, 0, len(all))
	for _, j := range all {
		if j.Expired(now) {
			continue
		}
		out = append(out, j)
	}
	return out
}

// Cancel pins an active job to failed with reason cancelled. Once the
// transition lands, no late pipeline success can overwrite it. Returns
// ErrNotProcessing when there is no active run to cancel.
func (s *Service) Cancel(jobID string) error {
	j, err := s.registry.Get(jobID)
	if err != nil {
		return err
	}
	if !j.Started || j.Status != StatusProcessing {
		return ErrNotProcessing
	}

	// Best-effort interruption of the in-flight run. Correctness does not
	// depend on it: the failed transition below is what makes
	// cancellation final.
	if cancelRun := s.takeCancel(jobID); cancelRun != nil {
		cancelRun()
	}

	_, err = s.registry.UpdateStatus(jobID, StatusFailed, StatusUpdate{
		Reason:  ReasonCancelled,
		Message: "cancelled by user",
	})
	if errors.Is(err, ErrInvalidTransition) {
		// The run reached a terminal state first.
		return ErrNotProcessing
	}
	if err != nil {
		return err
	}

	telemetry.JobsFailed.Inc()
	s.logger.Info("job cancelled", slog.String("job_id", jobID))
	return nil
}

// Delete removes the record and best-effort deletes the job's files and
// mirrored output. A second delete returns ErrJobNotFound.
func (s *Service) Delete(ctx context.Context, jobID string) error {
	if cancelRun := s.takeCancel(jobID); cancelRun != nil {
		cancelRun()
	}

	j, err := s.registry.Remove(jobID)
	if err != nil {
		return err
	}
	telemetry.JobsActive.Set(float64(s.registry.Len()))

	s.cleanupFiles(ctx, j)
	s.logger.Info("job deleted", slog.String("job_id", jobID))
	return nil
}

// Subscribe attaches a new observer to the job event stream. Closing the
// returned subscriber is safe at any time, including during delivery.
func (s *Service) Subscribe() *notify.Subscriber {
	return s.hub.Subscribe()
}

// cleanupFiles deletes the job's artifacts. Filesystem failures are logged
// and swallowed; they never resurrect the record.
func (s *Service) cleanupFiles(ctx context.Context, j Job) {
	if err := s.store.Remove(ctx, j.Paths()...); err != nil {
		s.logger.Warn("file cleanup failed",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
	}
	if j.MirrorKey != "" {
		if err := s.store.RemoveMirror(ctx, j.MirrorKey); err != nil {
			s.logger.Warn("mirror cleanup failed",
				slog.String("job_id", j.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// takeCancel removes and returns the cancel func for a run, if any.
func (s *Service) takeCancel(jobID string) context.CancelFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel := s.cancels[jobID]
	delete(s.cancels, jobID)
	return cancel
}
