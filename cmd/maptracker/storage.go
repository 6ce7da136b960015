package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/pokemap/maptracker/internal/config"
	"github.com/pokemap/maptracker/internal/storage"
	gdatastorage "github.com/pokemap/maptracker/internal/storage/gdata"
	"github.com/pokemap/maptracker/internal/storage/memory"
	sqlitestorage "github.com/pokemap/maptracker/internal/storage/sqlite"
	"github.com/rs/zerolog"
)

// createAmbientStore builds and initializes the ambient store named by
// storageCfg.Type. dbLog receives the SQLite manager's zerolog output.
func (a *app) createAmbientStore(storageCfg config.StorageConfig, dbLog io.Writer) (storage.AmbientStore, error) {
	var backend storage.AmbientStore

	switch strings.ToLower(storageCfg.Type) {
	case "sqlite":
		b, err := sqlitestorage.New(sqlitestorage.Config{Path: storageCfg.SQLite.Path}, a.zerologLogger(dbLog))
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		backend = b

	case "memory":
		backend = memory.New(memory.Config{Quota: storageCfg.Memory.Quota})

	case "gdata", "":
		backend = gdatastorage.New(gdatastorage.Config{AppName: storageCfg.GData.AppName})

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}

	if err := backend.Init(); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to initialize %s storage: %w", storage.Describe(backend), err)
	}
	a.logger.Info("Ambient storage initialized", "backend", storage.Describe(backend))
	return backend, nil
}

func (a *app) zerologLogger(w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(a.logCfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("component", "database").Logger()
}
