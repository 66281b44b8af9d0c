package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	if err := store.Put(ctx, "audio/visit.wav", strings.NewReader("RIFF"), 4, "audio/wav"); err != nil {
		t.Fatalf("put: %v", err)
	}

	ok, err := store.Exists(ctx, "audio/visit.wav")
	if err != nil || !ok {
		t.Fatalf("exists = %v, %v; want true", ok, err)
	}

	rc, err := store.Open(ctx, "audio/visit.wav")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "RIFF" {
		t.Fatalf("data = %q, want RIFF", data)
	}

	if err := store.Delete(ctx, "audio/visit.wav"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "audio/visit.wav"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if ok, _ := store.Exists(ctx, "audio/visit.wav"); ok {
		t.Fatal("object still exists after delete")
	}
	if _, err := store.Open(ctx, "audio/visit.wav"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("open after delete error = %v, want %v", err, ErrNotFound)
	}
}

func TestLocalStoreKeepsKeysInsideBase(t *testing.T) {
	base := t.TempDir()
	store, err := NewLocalStore(filepath.Join(base, "root"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if err := store.Put(context.Background(), "../escape.wav", strings.NewReader("x"), 1, ""); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "escape.wav")); !os.IsNotExist(err) {
		t.Fatalf("file escaped base directory: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "root", "escape.wav")); err != nil {
		t.Fatalf("file not stored under base: %v", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestLocalStorePutFailureLeavesNothing(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	if err := store.Put(ctx, "audio/partial.wav", failingReader{}, -1, ""); err == nil {
		t.Fatal("expected put error")
	}
	if ok, _ := store.Exists(ctx, "audio/partial.wav"); ok {
		t.Fatal("partial upload is visible")
	}
}
