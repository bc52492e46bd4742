package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Storage keeps source documents on the local filesystem, content-addressed
// under blobs/<hash-prefix>/<hash> after a staging write into tmp/.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	for _, dir := range []string{filepath.Join(basePath, "tmp"), filepath.Join(basePath, "blobs")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	return &Storage{basePath: basePath}, nil
}

func (s *Storage) SaveTemp(_ context.Context, data io.Reader) (string, int64, error) {
	path := filepath.Join(s.basePath, "tmp", uuid.NewString())
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, data)
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("write temp file: %w", err)
	}
	return path, size, nil
}

func (s *Storage) Promote(_ context.Context, tempPath, key string) (string, error) {
	if len(key) < 3 {
		return "", fmt.Errorf("blob key %q is too short", key)
	}
	dir := filepath.Join(s.basePath, "blobs", key[:2])
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}
	finalPath := filepath.Join(dir, key)
	if err := os.Rename(tempPath, finalPath); err != nil {
		return "", fmt.Errorf("promote blob: %w", err)
	}
	return finalPath, nil
}

func (s *Storage) Open(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

func (s *Storage) Delete(_ context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}
