// internal/storage/storage.go
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Read when the slot has never been written.
	ErrNotFound = errors.New("storage: slot not found")

	// ErrUnavailable is returned when the backing store cannot be reached.
	ErrUnavailable = errors.New("storage: unavailable")

	// ErrQuotaExceeded is returned when a write does not fit the store.
	ErrQuotaExceeded = errors.New("storage: quota exceeded")
)

// AmbientStore is the device-local keyed storage that survives between
// sessions. Values are opaque bytes; the caller owns the encoding.
type AmbientStore interface {
	// Lifecycle
	Init() error
	Close() error

	// Read returns ErrNotFound when key holds nothing.
	Read(ctx context.Context, key string) ([]byte, error)
	// Write fully replaces the value at key.
	Write(ctx context.Context, key string, data []byte) error
}

// Describer is an optional interface for stores that can name themselves in
// logs and status output.
type Describer interface {
	Describe() string
}

// Describe returns a short label for s.
func Describe(s AmbientStore) string {
	if d, ok := s.(Describer); ok {
		return d.Describe()
	}
	return "unknown"
}
