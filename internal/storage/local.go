package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Compile-time check that LocalStorage implements Storage.
var _ Storage = (*LocalStorage)(nil)

// LocalStorage implements Storage on the local disk. It owns the upload
// directory; processed outputs live wherever the transcoder writes them,
// and Remove handles both.
type LocalStorage struct {
	uploadDir string
}

// NewLocalStorage creates a LocalStorage rooted at uploadDir, creating the
// directory if needed. An empty uploadDir defaults to a penguinblur
// subdirectory of the system temp dir.
func NewLocalStorage(uploadDir string) (*LocalStorage, error) {
	if uploadDir == "" {
		uploadDir = filepath.Join(os.TempDir(), "penguinblur", "uploads")
	}

	if err := os.MkdirAll(uploadDir, 0750); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}

	return &LocalStorage{uploadDir: uploadDir}, nil
}

// UploadDir returns the upload directory path.
func (s *LocalStorage) UploadDir() string {
	return s.uploadDir
}

// SaveUpload writes the stream to a uniquely named file in the upload
// directory, preserving the original extension so downstream tooling can
// sniff the container format.
func (s *LocalStorage) SaveUpload(ctx context.Context, name string, data io.Reader) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	base := filepath.Base(name)
	ext := filepath.Ext(base)
	pattern := strings.TrimSuffix(base, ext) + "_*" + ext

	f, err := os.CreateTemp(s.uploadDir, pattern)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}

	fileName := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(fileName)
		return "", fmt.Errorf("write upload file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(fileName)
		return "", fmt.Errorf("close upload file: %w", err)
	}

	return fileName, nil
}

// Remove deletes the given files best-effort. One file's failure does not
// block deletion of the others; the first error is returned at the end.
func (s *LocalStorage) Remove(ctx context.Context, paths ...string) error {
	var firstErr error
	for _, p := range paths {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove file %s: %w", p, err)
			}
		}
	}
	return firstErr
}

// Mirror is not supported by LocalStorage.
func (s *LocalStorage) Mirror(_ context.Context, _, _ string) (string, error) {
	return "", ErrMirrorNotConfigured
}

// RemoveMirror is a no-op without a mirror backend.
func (s *LocalStorage) RemoveMirror(_ context.Context, _ string) error {
	return nil
}
