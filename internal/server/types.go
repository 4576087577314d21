// Package server provides the HTTP surface for the PenguinBlur API.
// It includes handlers, middleware, routes, and DTOs separated from domain
// types.
package server

import "time"

// UploadResponse is returned after a successful video upload.
type UploadResponse struct {
	// JobID identifies the admitted job.
	JobID string `json:"job_id"`
	// Filename is the original upload filename.
	Filename string `json:"filename"`
	// Size is the stored size in bytes.
	Size int64 `json:"size"`
	// ExpiresAt is when the job and its files are deleted.
	ExpiresAt time.Time `json:"expires_at"`
}

// ProcessRequest is the body for starting a processing run.
type ProcessRequest struct {
	// JobID identifies the job to process.
	JobID string `json:"job_id" validate:"required"`
	// BlurIntensity selects the mask strength.
	BlurIntensity string `json:"blur_intensity" validate:"required,oneof=light medium heavy"`
	// DetectionMode selects the detection trade-off. Defaults to fast.
	DetectionMode string `json:"detection_mode" validate:"omitempty,oneof=fast accurate"`
}

// ProcessResponse acknowledges an accepted processing run.
type ProcessResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// StatusResponse describes a job's current state.
type StatusResponse struct {
	ID string `json:"id"`
	// Status is processing, completed or failed.
	Status string `json:"status"`
	// Progress is the completion percentage (0-100).
	Progress int `json:"progress"`
	// Reason is set for failed jobs (cancelled, timeout, ...).
	Reason string `json:"reason,omitempty"`
	// Error is the human-readable failure message.
	Error string `json:"error,omitempty"`
	// FaceCount is the number of faces found by detection.
	FaceCount int `json:"face_count"`
	// TimeRemainingSec is the time until expiry, clamped at zero.
	TimeRemainingSec int `json:"time_remaining_sec"`
	// DownloadURL points at the processed file once completed.
	DownloadURL string `json:"download_url,omitempty"`
	// ResultURL is the mirrored copy, when mirroring is enabled.
	ResultURL string `json:"result_url,omitempty"`
}

// ListResponse is the monitoring snapshot of tracked jobs.
type ListResponse struct {
	Jobs []StatusResponse `json:"jobs"`
}

// CleanupResponse reports the outcome of a manual sweep.
type CleanupResponse struct {
	RemovedJobs int `json:"removed_jobs"`
	OrphanFiles int `json:"orphan_files"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
