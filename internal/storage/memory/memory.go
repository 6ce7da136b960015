// internal/storage/memory/memory.go
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/pokemap/maptracker/internal/storage"
)

// Config holds in-memory store settings.
type Config struct {
	// Quota caps the total bytes held across all keys. Zero means unlimited.
	Quota int
}

// Backend keeps slots in a map. It backs tests and the in-memory-only mode.
type Backend struct {
	cfg    Config
	mu     sync.RWMutex
	slots  map[string][]byte
	writes int
}

// New creates an empty memory backend.
func New(cfg Config) *Backend {
	return &Backend{
		cfg:   cfg,
		slots: make(map[string][]byte),
	}
}

// Init is a no-op.
func (b *Backend) Init() error {
	return nil
}

// Close is a no-op.
func (b *Backend) Close() error {
	return nil
}

// Describe names the backend for logs.
func (b *Backend) Describe() string {
	return "memory"
}

// Read returns a copy of the value stored at key.
func (b *Backend) Read(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	v, ok := b.slots[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Write replaces the value at key.
func (b *Backend) Write(_ context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cfg.Quota > 0 {
		used := len(data)
		for k, v := range b.slots {
			if k != key {
				used += len(v)
			}
		}
		if used > b.cfg.Quota {
			return fmt.Errorf("%w: %d bytes over a %d byte quota", storage.ErrQuotaExceeded, used, b.cfg.Quota)
		}
	}

	v := make([]byte, len(data))
	copy(v, data)
	b.slots[key] = v
	b.writes++
	return nil
}

// Put seeds key with raw data, bypassing the quota. Useful for simulating
// values left behind by earlier sessions.
func (b *Backend) Put(key string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slots[key] = append([]byte(nil), data...)
}

// Writes returns how many successful writes the backend has accepted.
func (b *Backend) Writes() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.writes
}
