package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a key has no stored object.
var ErrNotFound = errors.New("object not found")

// Storage keeps operation artifacts and edit-session sources.
type Storage interface {
	Name() string
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	HealthCheck(ctx context.Context) error
}

// Presigner is implemented by backends that can hand out time-limited
// direct download links.
type Presigner interface {
	PresignedURL(ctx context.Context, key, filename string) (string, error)
}

// Error carries the backend and key of a failed storage call.
type Error struct {
	Provider string
	Op       string
	Key      string
	Err      error
}

func (e *Error) Error() string {
	return e.Provider + " " + e.Op + " " + e.Key + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(provider, op, key string, err error) *Error {
	return &Error{Provider: provider, Op: op, Key: key, Err: err}
}
