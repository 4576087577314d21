// Package storage provides file intake and cleanup for job artifacts.
// It defines the Storage port plus a local-disk implementation and an
// optional S3-backed result mirror layered on top of it.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrMirrorNotConfigured is returned by mirror operations when no mirror
// backend is configured.
var ErrMirrorNotConfigured = errors.New("result mirror is not configured")

// Storage handles the files a job owns during its lifetime.
type Storage interface {
	// SaveUpload persists an uploaded stream under the upload directory
	// and returns the absolute file path. The name is a hint; the stored
	// filename gets a unique infix.
	SaveUpload(ctx context.Context, name string, data io.Reader) (string, error)

	// Remove deletes the given files, continuing past individual
	// failures. Missing files are not errors; the first real failure is
	// returned after all paths were attempted.
	Remove(ctx context.Context, paths ...string) error

	// Mirror uploads a completed output to the mirror backend and returns
	// its URL. Returns ErrMirrorNotConfigured when there is no backend.
	Mirror(ctx context.Context, key, path string) (url string, err error)

	// RemoveMirror deletes a mirrored object. A no-op without a backend.
	RemoveMirror(ctx context.Context, key string) error
}
