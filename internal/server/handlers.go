package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/penguinblur/penguinblur-api/internal/job"
	"github.com/penguinblur/penguinblur-api/internal/media"
	"github.com/penguinblur/penguinblur-api/internal/storage"
	"github.com/penguinblur/penguinblur-api/internal/vision"
)

// Sweeper triggers one expiry sweep; satisfied by *reaper.Reaper.
type Sweeper interface {
	Sweep(ctx context.Context) (removedJobs, orphanFiles int)
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service        *job.Service
	store          storage.Storage
	sweeper        Sweeper
	validator      *validator.Validate
	logger         *slog.Logger
	maxUploadBytes int64
	now            func() time.Time
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithMaxUploadBytes caps the accepted multipart body size.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// WithHandlerClock overrides the handlers' time source, for tests.
func WithHandlerClock(now func() time.Time) HandlerOption {
	return func(h *Handlers) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *job.Service, store storage.Storage, sweeper Sweeper, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:        service,
		store:          store,
		sweeper:        sweeper,
		validator:      validator.New(),
		logger:         logger,
		maxUploadBytes: 100 << 20,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Upload handles POST /api/upload: persists the multipart video and admits
// a job for it.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		h.logger.Warn("invalid upload", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required", "INVALID_UPLOAD")
		return
	}
	defer func() { _ = file.Close() }()

	if ct := header.Header.Get("Content-Type"); !strings.HasPrefix(ct, "video/") {
		writeError(w, http.StatusBadRequest, "file must be a video", "NOT_A_VIDEO")
		return
	}

	inputPath, err := h.store.SaveUpload(r.Context(), header.Filename, file)
	if err != nil {
		h.logger.Error("failed to save upload",
			slog.String("filename", header.Filename),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to save upload", "UPLOAD_FAILED")
		return
	}

	admitted, err := h.service.Admit(r.Context(), inputPath)
	if err != nil {
		h.logger.Error("failed to admit job", slog.String("error", err.Error()))
		_ = h.store.Remove(r.Context(), inputPath)
		writeError(w, http.StatusInternalServerError, "failed to admit job", "ADMIT_FAILED")
		return
	}

	h.logger.Info("file uploaded",
		slog.String("job_id", admitted.ID),
		slog.String("filename", header.Filename),
		slog.Int64("size", header.Size),
	)

	writeJSON(w, http.StatusCreated, UploadResponse{
		JobID:     admitted.ID,
		Filename:  header.Filename,
		Size:      header.Size,
		ExpiresAt: admitted.ExpiresAt,
	})
}

// Process handles POST /api/video/process: starts the async blur pipeline.
func (h *Handlers) Process(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	mode := vision.Mode(req.DetectionMode)
	if mode == "" {
		mode = vision.ModeFast
	}

	err := h.service.StartProcessing(r.Context(), req.JobID, media.BlurIntensity(req.BlurIntensity), mode)
	switch {
	case errors.Is(err, job.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	case errors.Is(err, job.ErrAlreadyProcessing):
		writeError(w, http.StatusConflict, "job is already processing", "ALREADY_PROCESSING")
		return
	case err != nil:
		h.logger.Error("failed to start processing",
			slog.String("job_id", req.JobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to start processing", "PROCESS_FAILED")
		return
	}

	writeJSON(w, http.StatusAccepted, ProcessResponse{
		JobID:  req.JobID,
		Status: string(job.StatusProcessing),
	})
}

// Status handles GET /api/video/status/{id}.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	found, err := h.service.GetStatus(jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	}

	writeJSON(w, http.StatusOK, h.statusResponse(found))
}

// Download handles GET /api/video/download/{id}: serves the processed file.
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	found, err := h.service.GetStatus(jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	}
	if found.Status != job.StatusCompleted {
		writeError(w, http.StatusConflict, "job has no processed output", "NOT_COMPLETED")
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "penguinblur_"+jobID+".mp4"))
	http.ServeFile(w, r, found.OutputPath)
}

// List handles GET /api/video/list: a monitoring snapshot.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.service.List()
	resp := ListResponse{Jobs: make([]StatusResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, h.statusResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Cancel handles POST /api/video/{id}/cancel.
func (h *Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	err := h.service.Cancel(jobID)
	switch {
	case errors.Is(err, job.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
	case errors.Is(err, job.ErrNotProcessing):
		writeError(w, http.StatusConflict, "job is not currently processing", "NOT_PROCESSING")
	case err != nil:
		h.logger.Error("failed to cancel job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to cancel job", "CANCEL_FAILED")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": "cancelled"})
	}
}

// Delete handles DELETE /api/video/{id}: removes the record and its files.
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	if err := h.service.Delete(r.Context(), jobID); err != nil {
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": "deleted"})
}

// Cleanup handles DELETE /api/cleanup: triggers one sweep immediately.
func (h *Handlers) Cleanup(w http.ResponseWriter, r *http.Request) {
	removed, orphans := h.sweeper.Sweep(r.Context())
	writeJSON(w, http.StatusOK, CleanupResponse{
		RemovedJobs: removed,
		OrphanFiles: orphans,
	})
}

// statusResponse maps a job record to its DTO.
func (h *Handlers) statusResponse(j job.Job) StatusResponse {
	resp := StatusResponse{
		ID:               j.ID,
		Status:           string(j.Status),
		Progress:         j.Progress,
		Reason:           string(j.Reason),
		Error:            j.Error,
		FaceCount:        j.FaceCount,
		TimeRemainingSec: int(j.TimeRemaining(h.now()).Seconds()),
		ResultURL:        j.ResultURL,
	}
	if j.Status == job.StatusCompleted {
		resp.DownloadURL = "/api/video/download/" + j.ID
	}
	return resp
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
