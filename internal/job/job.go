// Package job implements the ephemeral job lifecycle core: the Job entity
// and its state machine, the concurrency-safe registry, the processing
// orchestration, and the public facade used by route handlers.
package job

import (
	"time"

	"github.com/penguinblur/penguinblur-api/internal/media"
	"github.com/penguinblur/penguinblur-api/internal/vision"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusProcessing is the initial state, set at admission.
	StatusProcessing Status = "processing"
	// StatusCompleted indicates the pipeline finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the pipeline errored, timed out, or was
	// cancelled.
	StatusFailed Status = "failed"
)

// IsTerminal returns true for states with no outgoing transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// FailReason distinguishes why a job ended up failed.
type FailReason string

const (
	// ReasonCancelled marks a user-initiated cancellation.
	ReasonCancelled FailReason = "cancelled"
	// ReasonTimeout marks a run that exceeded the wall-clock budget.
	ReasonTimeout FailReason = "timeout"
	// ReasonDetection marks a face-detection failure.
	ReasonDetection FailReason = "detection_failed"
	// ReasonTranscode marks a transcoding failure.
	ReasonTranscode FailReason = "transcode_failed"
)

// validTransitions defines the allowed state machine edges. Terminal states
// have none; removal is not a state.
var validTransitions = map[Status][]Status{
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Job is one tracked upload-through-delivery unit of work. Records are
// owned by the Registry; callers always operate on value copies.
type Job struct {
	// ID is the unique identifier, assigned at admission, immutable.
	ID string
	// InputPath is the uploaded source file, owned by the job until removal.
	InputPath string
	// OutputPath is the processed result; set iff Status is completed.
	OutputPath string
	// ResultURL is the mirror URL of the output, when mirroring is enabled.
	ResultURL string
	// MirrorKey is the object key backing ResultURL.
	MirrorKey string
	// BlurIntensity and DetectionMode are the parameters of the active run.
	BlurIntensity media.BlurIntensity
	DetectionMode vision.Mode
	// FaceCount is the number of faces found by detection.
	FaceCount int
	// Status is the current state.
	Status Status
	// Reason is set when Status is failed.
	Reason FailReason
	// Error is the human-readable failure message.
	Error string
	// Progress is the completion percentage, monotonically non-decreasing
	// within a run.
	Progress int
	// Started reports whether an orchestration run was launched.
	Started bool
	// CreatedAt is the admission time; ExpiresAt is CreatedAt + TTL and is
	// immutable once set.
	CreatedAt time.Time
	ExpiresAt time.Time
	// UpdatedAt is the time of the last registry mutation.
	UpdatedAt time.Time
}

// Expired reports whether the job's TTL has elapsed at the given instant.
func (j Job) Expired(now time.Time) bool {
	return !now.Before(j.ExpiresAt)
}

// TimeRemaining returns the duration until expiry, clamped at zero.
func (j Job) TimeRemaining(now time.Time) time.Duration {
	if j.Expired(now) {
		return 0
	}
	return j.ExpiresAt.Sub(now)
}

// Paths returns the on-disk files owned by the job, for cleanup.
func (j Job) Paths() []string {
	paths := make([]string, 0, 2)
	if j.InputPath != "" {
		paths = append(paths, j.InputPath)
	}
	if j.OutputPath != "" {
		paths = append(paths, j.OutputPath)
	}
	return paths
}
