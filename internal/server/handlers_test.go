package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penguinblur/penguinblur-api/internal/job"
	"github.com/penguinblur/penguinblur-api/internal/media"
	"github.com/penguinblur/penguinblur-api/internal/notify"
	"github.com/penguinblur/penguinblur-api/internal/storage"
	"github.com/penguinblur/penguinblur-api/internal/vision"
)

// stubDetector returns a fixed face list.
type stubDetector struct {
	faces []vision.Face
	err   error
}

func (d *stubDetector) DetectFaces(_ context.Context, _ string, _ vision.Mode) ([]vision.Face, error) {
	return d.faces, d.err
}

// stubTranscoder writes a small output file so download can serve it.
// When release is non-nil, Blur blocks until the channel is closed.
type stubTranscoder struct {
	outputDir string
	release   chan struct{}
	started   chan struct{}
}

func (tr *stubTranscoder) Blur(ctx context.Context, inputPath string, _ []vision.Face, intensity media.BlurIntensity, onProgress media.ProgressFunc) (string, error) {
	if tr.started != nil {
		close(tr.started)
	}
	if tr.release != nil {
		select {
		case <-tr.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if onProgress != nil {
		onProgress(100)
	}
	out := filepath.Join(tr.outputDir, fmt.Sprintf("blurred_%s_%s", intensity, filepath.Base(inputPath)))
	if err := os.WriteFile(out, []byte("blurred video bytes"), 0o600); err != nil {
		return "", err
	}
	return out, nil
}

// stubSweeper records manual sweep triggers.
type stubSweeper struct {
	removed int
	orphans int
	calls   int
}

func (s *stubSweeper) Sweep(_ context.Context) (int, int) {
	s.calls++
	return s.removed, s.orphans
}

type fixture struct {
	router     http.Handler
	service    *job.Service
	store      *storage.LocalStorage
	transcoder *stubTranscoder
	sweeper    *stubSweeper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	hub := notify.NewHub(logger)
	registry := job.NewRegistry(hub)
	detector := &stubDetector{faces: []vision.Face{
		{Box: vision.BoundingBox{X: 10, Y: 10, Width: 64, Height: 64}, Confidence: 0.9},
	}}
	transcoder := &stubTranscoder{outputDir: t.TempDir()}
	service := job.NewService(registry, hub, store, detector, transcoder, logger)
	sweeper := &stubSweeper{removed: 2, orphans: 1}

	h := NewHandlers(service, store, sweeper, logger)
	return &fixture{
		router:     NewRouter(h, logger, DefaultConfig()),
		service:    service,
		store:      store,
		transcoder: transcoder,
		sweeper:    sweeper,
	}
}

func (f *fixture) do(method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// uploadVideo uploads a small multipart video and returns the job id.
func (f *fixture) uploadVideo(t *testing.T) string {
	t.Helper()
	body, contentType := multipartVideo(t, "file", "clip.mp4", "video/mp4")
	rec := f.do(http.MethodPost, "/api/upload", body, contentType)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.JobID)
	return resp.JobID
}

// startProcessing kicks off the pipeline for a job.
func (f *fixture) startProcessing(t *testing.T, jobID string) {
	t.Helper()
	body := fmt.Sprintf(`{"job_id":%q,"blur_intensity":"medium"}`, jobID)
	rec := f.do(http.MethodPost, "/api/video/process", strings.NewReader(body), "application/json")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
}

// waitCompleted polls the status endpoint until the job completes.
func (f *fixture) waitCompleted(t *testing.T, jobID string) StatusResponse {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec := f.do(http.MethodGet, "/api/video/status/"+jobID, nil, "")
		if rec.Code == http.StatusOK {
			var resp StatusResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			if resp.Status == string(job.StatusCompleted) {
				return resp
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never completed", jobID)
	return StatusResponse{}
}

func multipartVideo(t *testing.T, field, filename, partType string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	hdr.Set("Content-Type", partType)
	part, err := w.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write([]byte("fake video payload"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return &buf, w.FormDataContentType()
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/health", nil, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestUpload(t *testing.T) {
	f := newFixture(t)

	body, contentType := multipartVideo(t, "file", "holiday.mp4", "video/mp4")
	rec := f.do(http.MethodPost, "/api/upload", body, contentType)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, "holiday.mp4", resp.Filename)
	assert.False(t, resp.ExpiresAt.IsZero())

	// The upload is on disk and the job is queryable.
	found, err := f.service.GetStatus(resp.JobID)
	require.NoError(t, err)
	_, err = os.Stat(found.InputPath)
	assert.NoError(t, err)
}

func TestUpload_MissingFile(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("other", "x"))
	require.NoError(t, w.Close())

	rec := f.do(http.MethodPost, "/api/upload", &buf, w.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_UPLOAD")
}

func TestUpload_RejectsNonVideo(t *testing.T) {
	f := newFixture(t)

	body, contentType := multipartVideo(t, "file", "notes.txt", "text/plain")
	rec := f.do(http.MethodPost, "/api/upload", body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_A_VIDEO")
}

func TestProcess(t *testing.T) {
	f := newFixture(t)
	jobID := f.uploadVideo(t)

	f.startProcessing(t, jobID)
	resp := f.waitCompleted(t, jobID)

	assert.Equal(t, 100, resp.Progress)
	assert.Equal(t, 1, resp.FaceCount)
	assert.Equal(t, "/api/video/download/"+jobID, resp.DownloadURL)
	assert.Greater(t, resp.TimeRemainingSec, 0)
}

func TestProcess_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"invalid JSON", `{not json`, "INVALID_JSON"},
		{"missing job_id", `{"blur_intensity":"medium"}`, "VALIDATION_ERROR"},
		{"missing intensity", `{"job_id":"j1"}`, "VALIDATION_ERROR"},
		{"unknown intensity", `{"job_id":"j1","blur_intensity":"extreme"}`, "VALIDATION_ERROR"},
		{"unknown mode", `{"job_id":"j1","blur_intensity":"medium","detection_mode":"turbo"}`, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/video/process", strings.NewReader(tt.body), "application/json")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.code)
		})
	}
}

func TestProcess_UnknownJob(t *testing.T) {
	f := newFixture(t)

	body := `{"job_id":"missing","blur_intensity":"medium"}`
	rec := f.do(http.MethodPost, "/api/video/process", strings.NewReader(body), "application/json")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "JOB_NOT_FOUND")
}

func TestProcess_Duplicate(t *testing.T) {
	f := newFixture(t)
	f.transcoder.release = make(chan struct{})
	f.transcoder.started = make(chan struct{})
	defer close(f.transcoder.release)

	jobID := f.uploadVideo(t)
	f.startProcessing(t, jobID)
	<-f.transcoder.started

	body := fmt.Sprintf(`{"job_id":%q,"blur_intensity":"heavy"}`, jobID)
	rec := f.do(http.MethodPost, "/api/video/process", strings.NewReader(body), "application/json")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "ALREADY_PROCESSING")
}

func TestStatus_NotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/video/status/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "JOB_NOT_FOUND")
}

func TestDownload(t *testing.T) {
	f := newFixture(t)
	jobID := f.uploadVideo(t)
	f.startProcessing(t, jobID)
	f.waitCompleted(t, jobID)

	rec := f.do(http.MethodGet, "/api/video/download/"+jobID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "penguinblur_"+jobID+".mp4")
	assert.Equal(t, "blurred video bytes", rec.Body.String())
}

func TestDownload_NotCompleted(t *testing.T) {
	f := newFixture(t)
	f.transcoder.release = make(chan struct{})
	f.transcoder.started = make(chan struct{})
	defer close(f.transcoder.release)

	jobID := f.uploadVideo(t)
	f.startProcessing(t, jobID)
	<-f.transcoder.started

	rec := f.do(http.MethodGet, "/api/video/download/"+jobID, nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_COMPLETED")
}

func TestDownload_NotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/video/download/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestList(t *testing.T) {
	f := newFixture(t)
	first := f.uploadVideo(t)
	second := f.uploadVideo(t)

	rec := f.do(http.MethodGet, "/api/video/list", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Jobs, 2)

	ids := map[string]bool{resp.Jobs[0].ID: true, resp.Jobs[1].ID: true}
	assert.True(t, ids[first])
	assert.True(t, ids[second])
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	f.transcoder.release = make(chan struct{})
	f.transcoder.started = make(chan struct{})
	defer close(f.transcoder.release)

	jobID := f.uploadVideo(t)
	f.startProcessing(t, jobID)
	<-f.transcoder.started

	rec := f.do(http.MethodPost, "/api/video/"+jobID+"/cancel", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	status := f.do(http.MethodGet, "/api/video/status/"+jobID, nil, "")
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(status.Body.Bytes(), &resp))
	assert.Equal(t, string(job.StatusFailed), resp.Status)
	assert.Equal(t, string(job.ReasonCancelled), resp.Reason)
}

func TestCancel_NotProcessing(t *testing.T) {
	f := newFixture(t)
	jobID := f.uploadVideo(t)

	// Admitted but never started.
	rec := f.do(http.MethodPost, "/api/video/"+jobID+"/cancel", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_PROCESSING")
}

func TestCancel_NotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/video/missing/cancel", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	jobID := f.uploadVideo(t)

	found, err := f.service.GetStatus(jobID)
	require.NoError(t, err)

	rec := f.do(http.MethodDelete, "/api/video/"+jobID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	status := f.do(http.MethodGet, "/api/video/status/"+jobID, nil, "")
	assert.Equal(t, http.StatusNotFound, status.Code)

	_, err = os.Stat(found.InputPath)
	assert.True(t, os.IsNotExist(err), "upload should be deleted")
}

func TestDelete_NotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodDelete, "/api/video/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCleanup(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodDelete, "/api/cleanup", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed_jobs":2,"orphan_files":1}`, rec.Body.String())
	assert.Equal(t, 1, f.sweeper.calls)
}
