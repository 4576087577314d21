package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStorage_SaveUpload(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path, err := store.SaveUpload(context.Background(), "holiday.mp4", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("upload landed outside the upload dir: %s", path)
	}
	if filepath.Ext(path) != ".mp4" {
		t.Errorf("extension not preserved: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read upload: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("unexpected content: %q", data)
	}
}

func TestLocalStorage_SaveUpload_UniqueNames(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	first, err := store.SaveUpload(ctx, "clip.mp4", strings.NewReader("a"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := store.SaveUpload(ctx, "clip.mp4", strings.NewReader("b"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first == second {
		t.Errorf("expected unique paths, both were %s", first)
	}
}

func TestLocalStorage_SaveUpload_StripsDirectoryComponents(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path, err := store.SaveUpload(context.Background(), "../../etc/passwd.mp4", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("traversal escaped the upload dir: %s", path)
	}
}

func TestLocalStorage_SaveUpload_CancelledContext(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.SaveUpload(ctx, "clip.mp4", strings.NewReader("x")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestLocalStorage_Remove(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	existing := filepath.Join(dir, "a.mp4")
	if err := os.WriteFile(existing, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	// Missing files are not an error; existing ones still get deleted.
	if err := store.Remove(context.Background(), filepath.Join(dir, "missing.mp4"), existing); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(existing); !os.IsNotExist(err) {
		t.Errorf("file should be deleted, stat err: %v", err)
	}
}

func TestLocalStorage_MirrorNotConfigured(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := store.Mirror(context.Background(), "k", "/tmp/x"); !errors.Is(err, ErrMirrorNotConfigured) {
		t.Errorf("expected ErrMirrorNotConfigured, got %v", err)
	}
	if err := store.RemoveMirror(context.Background(), "k"); err != nil {
		t.Errorf("RemoveMirror should be a no-op: %v", err)
	}
}

func TestNewLocalStorage_DefaultDir(t *testing.T) {
	store, err := NewLocalStorage("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.UploadDir() == "" {
		t.Error("expected a default upload dir")
	}
}
