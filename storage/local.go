package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage keeps objects on the local file system under basePath.
type LocalStorage struct {
	basePath string
}

func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if basePath == "" {
		basePath = "./uploads"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

func (ls *LocalStorage) Name() string {
	return "local"
}

// path maps a key to a file below basePath, rejecting keys that escape it.
func (ls *LocalStorage) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(ls.basePath, clean), nil
}

func (ls *LocalStorage) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	fullPath, err := ls.path(key)
	if err != nil {
		return newError("local", "put", key, err)
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return newError("local", "put", key, err)
	}

	// write to a temp file first so readers never see a partial object
	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return newError("local", "put", key, err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return newError("local", "put", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return newError("local", "put", key, err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		os.Remove(tmp.Name())
		return newError("local", "put", key, err)
	}
	return nil
}

func (ls *LocalStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	fullPath, err := ls.path(key)
	if err != nil {
		return nil, newError("local", "open", key, err)
	}
	f, err := os.Open(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, newError("local", "open", key, err)
	}
	return f, nil
}

// Delete removes an object. Missing objects are treated as deleted.
func (ls *LocalStorage) Delete(_ context.Context, key string) error {
	fullPath, err := ls.path(key)
	if err != nil {
		return newError("local", "delete", key, err)
	}
	err = os.Remove(fullPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return newError("local", "delete", key, err)
	}
	return nil
}

func (ls *LocalStorage) Exists(_ context.Context, key string) (bool, error) {
	fullPath, err := ls.path(key)
	if err != nil {
		return false, newError("local", "stat", key, err)
	}
	_, err = os.Stat(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, newError("local", "stat", key, err)
	}
	return true, nil
}

func (ls *LocalStorage) HealthCheck(_ context.Context) error {
	info, err := os.Stat(ls.basePath)
	if err != nil {
		return newError("local", "health", ls.basePath, err)
	}
	if !info.IsDir() {
		return newError("local", "health", ls.basePath, errors.New("not a directory"))
	}
	return nil
}
