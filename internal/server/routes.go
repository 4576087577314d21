package server

import (
	"log/slog"
	"net/http"

	"github.com/penguinblur/penguinblur-api/internal/telemetry"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", telemetry.Handler())

	mux.HandleFunc("POST /api/upload", h.Upload)
	mux.HandleFunc("POST /api/video/process", h.Process)
	mux.HandleFunc("GET /api/video/status/{id}", h.Status)
	mux.HandleFunc("GET /api/video/download/{id}", h.Download)
	mux.HandleFunc("GET /api/video/list", h.List)
	mux.HandleFunc("POST /api/video/{id}/cancel", h.Cancel)
	mux.HandleFunc("DELETE /api/video/{id}", h.Delete)
	mux.HandleFunc("DELETE /api/cleanup", h.Cleanup)

	mux.HandleFunc("GET /ws", h.Events)

	// Apply middleware chain
	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
