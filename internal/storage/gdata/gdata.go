// Package gdatastorage keeps the ambient slot in gdata, which maps to the
// per-user data directory on desktop and mobile and to localStorage when the
// program is compiled for the browser.
package gdatastorage

import (
	"context"
	"fmt"

	"github.com/pokemap/maptracker/internal/storage"
	"github.com/quasilyte/gdata/v2"
)

// objectName groups every maptracker property inside the gdata app folder.
const objectName = "selection"

// Config holds gdata settings.
type Config struct {
	AppName string
}

// Backend stores slots as gdata object properties.
type Backend struct {
	cfg     Config
	manager *gdata.Manager
}

// New creates a gdata backend. Init opens the underlying manager.
func New(cfg Config) *Backend {
	return &Backend{cfg: cfg}
}

// Init opens the gdata manager for the configured application name.
func (b *Backend) Init() error {
	if b.cfg.AppName == "" {
		return fmt.Errorf("%w: gdata app name not set", storage.ErrUnavailable)
	}
	m, err := gdata.Open(gdata.Config{
		AppName: b.cfg.AppName,
	})
	if err != nil {
		return fmt.Errorf("%w: open gdata: %v", storage.ErrUnavailable, err)
	}
	b.manager = m
	return nil
}

// Close releases nothing; gdata writes are synchronous.
func (b *Backend) Close() error {
	return nil
}

// Describe names the backend for logs.
func (b *Backend) Describe() string {
	return "gdata:" + b.cfg.AppName
}

// Read loads the property named key.
func (b *Backend) Read(_ context.Context, key string) ([]byte, error) {
	if b.manager == nil {
		return nil, fmt.Errorf("%w: gdata not initialized", storage.ErrUnavailable)
	}
	if !b.manager.ObjectPropExists(objectName, key) {
		return nil, storage.ErrNotFound
	}
	data, err := b.manager.LoadObjectProp(objectName, key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return data, nil
}

// Write saves data as the property named key.
func (b *Backend) Write(_ context.Context, key string, data []byte) error {
	if b.manager == nil {
		return fmt.Errorf("%w: gdata not initialized", storage.ErrUnavailable)
	}
	if err := b.manager.SaveObjectProp(objectName, key, data); err != nil {
		return fmt.Errorf("%w: save %s: %v", storage.ErrUnavailable, key, err)
	}
	return nil
}
