package chronos

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileBackend stores snapshots as files under a base directory, one
// file per key.
type FileBackend struct {
	baseDir string
}

// NewFileBackend creates a file backend rooted at baseDir, creating
// the directory if needed.
func NewFileBackend(baseDir string) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolving snapshot directory: %w", err)
	}
	return &FileBackend{baseDir: filepath.Clean(abs)}, nil
}

// safePath resolves key inside the base directory, rejecting paths
// that would escape it.
func (f *FileBackend) safePath(key string) (string, error) {
	resolved := filepath.Clean(filepath.Join(f.baseDir, filepath.Clean(key)))
	if resolved != f.baseDir && !strings.HasPrefix(resolved, f.baseDir+string(os.PathSeparator)) {
		return "", errors.New("invalid snapshot key: escapes base directory")
	}
	return resolved, nil
}

func (f *FileBackend) Read(ctx context.Context, key string) ([]byte, error) {
	path, err := f.safePath(key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (f *FileBackend) Write(ctx context.Context, key string, data []byte) error {
	path, err := f.safePath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (f *FileBackend) Delete(ctx context.Context, key string) error {
	path, err := f.safePath(key)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

func (f *FileBackend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.Walk(f.baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(f.baseDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			keys = append(keys, rel)
		}
		return nil
	})
	return keys, err
}

func (f *FileBackend) Exists(ctx context.Context, key string) (bool, error) {
	path, err := f.safePath(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

func (f *FileBackend) Close() error {
	return nil
}
