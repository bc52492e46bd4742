package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveTempPromoteRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tempPath, size, err := s.SaveTemp(context.Background(), strings.NewReader("invoice bytes"))
	if err != nil {
		t.Fatalf("SaveTemp() error = %v", err)
	}
	if size != int64(len("invoice bytes")) {
		t.Fatalf("expected size %d, got %d", len("invoice bytes"), size)
	}

	finalPath, err := s.Promote(context.Background(), tempPath, "abcdef123456")
	if err != nil {
		t.Fatalf("Promote() error = %v", err)
	}
	// Content addressing shards by hash prefix.
	if filepath.Base(filepath.Dir(finalPath)) != "ab" {
		t.Fatalf("expected prefix shard directory, got %s", finalPath)
	}
	if _, err := os.Stat(tempPath); !os.IsNotExist(err) {
		t.Fatalf("temp file must be moved, stat err = %v", err)
	}

	blob, err := s.Open(context.Background(), finalPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer blob.Close()
	data, err := io.ReadAll(blob)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if string(data) != "invoice bytes" {
		t.Fatalf("content mismatch: %q", data)
	}
}

func TestPromoteRejectsShortKey(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := s.Promote(context.Background(), "whatever", "ab"); err == nil {
		t.Fatalf("expected error for short key")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tempPath, _, err := s.SaveTemp(context.Background(), strings.NewReader("x"))
	if err != nil {
		t.Fatalf("SaveTemp() error = %v", err)
	}
	if err := s.Delete(context.Background(), tempPath); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(context.Background(), tempPath); err != nil {
		t.Fatalf("second Delete() must be a no-op, got %v", err)
	}
}
