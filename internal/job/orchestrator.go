package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/penguinblur/penguinblur-api/internal/media"
	"github.com/penguinblur/penguinblur-api/internal/storage"
	"github.com/penguinblur/penguinblur-api/internal/telemetry"
	"github.com/penguinblur/penguinblur-api/internal/vision"
)

// progressDetection is the overall progress reached once detection
// succeeds; the transcoding stage fills the remaining band.
const progressDetection = 30

// scaleProgress maps stage progress (0-100) into the transcoding band:
// total = 30 + floor(stage * 0.7).
func scaleProgress(stage int) int {
	if stage < 0 {
		stage = 0
	}
	if stage > 100 {
		stage = 100
	}
	return progressDetection + stage*(100-progressDetection)/100
}

// run drives one job from processing to a terminal state: detection, the
// 30% milestone, transcoding with rescaled progress, then the terminal
// transition. Errors never cross this goroutine boundary; they become
// failed transitions plus log lines. The registry holds no lock while the
// capabilities run.
func (s *Service) run(ctx context.Context, jobID string, intensity media.BlurIntensity, mode vision.Mode) {
	defer func() {
		if cancel := s.takeCancel(jobID); cancel != nil {
			cancel()
		}
	}()

	j, err := s.registry.Get(jobID)
	if err != nil {
		s.logger.Warn("run skipped, job gone before start", slog.String("job_id", jobID))
		return
	}

	faces, err := s.detector.DetectFaces(ctx, j.InputPath, mode)
	if err != nil {
		s.finishFailed(ctx, jobID, ReasonDetection, fmt.Errorf("detect faces: %w", err))
		return
	}

	msg := fmt.Sprintf("detected %d face(s)", len(faces))
	if _, err := s.registry.SetDetected(jobID, len(faces), progressDetection, msg); err != nil {
		// Cancelled or removed while detecting; nothing to clean up yet.
		s.logger.Info("run abandoned after detection",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return
	}

	outputPath, err := s.transcoder.Blur(ctx, j.InputPath, faces, intensity, func(stage int) {
		_, _ = s.registry.SetProgress(jobID, scaleProgress(stage))
	})
	if err != nil {
		s.finishFailed(ctx, jobID, ReasonTranscode, fmt.Errorf("transcode: %w", err))
		return
	}

	upd := StatusUpdate{OutputPath: outputPath}
	upd.ResultURL, upd.MirrorKey = s.mirrorOutput(ctx, jobID, outputPath)

	if _, err := s.registry.UpdateStatus(jobID, StatusCompleted, upd); err != nil {
		// Cancellation or removal won the race. The terminal state is
		// already pinned; discard the output we just produced.
		s.logger.Info("discarding output of superseded run",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		cleanupCtx := context.WithoutCancel(ctx)
		if rmErr := s.store.Remove(cleanupCtx, outputPath); rmErr != nil {
			s.logger.Warn("failed to discard output",
				slog.String("job_id", jobID),
				slog.String("error", rmErr.Error()),
			)
		}
		if upd.MirrorKey != "" {
			_ = s.store.RemoveMirror(cleanupCtx, upd.MirrorKey)
		}
		return
	}

	telemetry.JobsCompleted.Inc()
	s.logger.Info("job completed",
		slog.String("job_id", jobID),
		slog.Int("faces", len(faces)),
		slog.String("output_path", outputPath),
	)
}

// mirrorOutput uploads the output when a mirror backend is configured.
// Mirror failures degrade to local-only delivery.
func (s *Service) mirrorOutput(ctx context.Context, jobID, outputPath string) (url, key string) {
	key = jobID + ".mp4"
	url, err := s.store.Mirror(ctx, key, outputPath)
	if err != nil {
		if !errors.Is(err, storage.ErrMirrorNotConfigured) {
			s.logger.Warn("result mirror failed",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
		return "", ""
	}
	return url, key
}

// finishFailed translates a pipeline error into a failed transition,
// classifying timeouts and cancellations from the run context. A job
// already pinned failed (user cancel) or removed keeps its state.
func (s *Service) finishFailed(ctx context.Context, jobID string, fallback FailReason, cause error) {
	reason := fallback
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		reason = ReasonTimeout
	case errors.Is(ctx.Err(), context.Canceled):
		reason = ReasonCancelled
	}

	_, err := s.registry.UpdateStatus(jobID, StatusFailed, StatusUpdate{
		Reason:  reason,
		Message: cause.Error(),
	})
	if err != nil {
		s.logger.Debug("failure transition skipped",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return
	}

	telemetry.JobsFailed.Inc()
	s.logger.Error("job failed",
		slog.String("job_id", jobID),
		slog.String("reason", string(reason)),
		slog.String("error", cause.Error()),
	)
}
