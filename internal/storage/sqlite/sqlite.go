// Package sqlitestorage keeps the ambient slot in a local SQLite file.
// It wraps the GORM backend via composition; the only SQLite-specific
// concerns are opening the file and closing the connection with the store.
package sqlitestorage

import (
	"fmt"

	"github.com/pokemap/maptracker/internal/database"
	gormstorage "github.com/pokemap/maptracker/internal/storage/gorm"
	"github.com/rs/zerolog"
)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	Path string // empty selects an in-memory database
}

// Backend wraps the GORM backend for SQLite-specific lifecycle.
type Backend struct {
	*gormstorage.Backend
	manager *database.Manager
	cfg     Config
}

// New connects to the SQLite database described by cfg.
func New(cfg Config, log zerolog.Logger) (*Backend, error) {
	manager := database.NewManager(cfg.Path, log)
	if err := manager.Connect(); err != nil {
		return nil, fmt.Errorf("failed to create SQLite DB: %w", err)
	}

	return &Backend{
		Backend: gormstorage.New(manager.DB),
		manager: manager,
		cfg:     cfg,
	}, nil
}

// Describe names the backend for logs.
func (b *Backend) Describe() string {
	if b.cfg.Path == "" {
		return "sqlite:memory"
	}
	return "sqlite:" + b.cfg.Path
}

// Close closes the embedded GORM backend and the database connection.
func (b *Backend) Close() error {
	if err := b.Backend.Close(); err != nil {
		return err
	}
	return b.manager.Close()
}
