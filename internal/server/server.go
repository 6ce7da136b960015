// Package server exposes the selection to the renderer over HTTP and a
// WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/pokemap/maptracker/internal/catalog"
	"github.com/pokemap/maptracker/internal/dispatcher"
	"github.com/pokemap/maptracker/internal/i18n"
	"github.com/pokemap/maptracker/internal/persist"
	"github.com/pokemap/maptracker/internal/selection"
	"github.com/pokemap/maptracker/pkg/streaming"
)

const (
	defaultMaxUpload = 1 << 20
	shutdownTimeout  = 5 * time.Second
)

// Config holds listener settings.
type Config struct {
	Listen         string
	AllowedOrigins []string
	StaticDir      string
	MaxUploadBytes int64
}

// Dependencies holds collaborators for the server.
type Dependencies struct {
	Store      *selection.Store
	Catalog    *catalog.Catalog
	Persist    *persist.Adapter
	Dispatcher *dispatcher.Dispatcher
	Translator *i18n.Translator
	Logger     *slog.Logger
}

// Server serves the renderer API.
type Server struct {
	deps    Dependencies
	cfg     Config
	logger  *slog.Logger
	hub     *Hub
	notices *Notices
	mux     *http.ServeMux
}

// New wires the server to its dependencies and subscribes it to selection
// changes.
func New(deps Dependencies, cfg Config) (*Server, error) {
	if deps.Store == nil || deps.Persist == nil || deps.Dispatcher == nil {
		return nil, errors.New("server: store, persist and dispatcher are required")
	}
	if deps.Catalog == nil {
		deps.Catalog = catalog.New()
	}
	if deps.Translator == nil {
		tr, err := i18n.New(i18n.DefaultLanguage)
		if err != nil {
			return nil, err
		}
		deps.Translator = tr
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUpload
	}

	s := &Server{
		deps:    deps,
		cfg:     cfg,
		logger:  deps.Logger.With("component", "server"),
		notices: NewNotices(defaultNoticeLimit),
	}
	s.hub = NewHub(s.logger, cfg.AllowedOrigins, s.handleMessage, s.snapshotMessage)
	s.mux = s.routes()

	deps.Store.Subscribe(func(c selection.Change) {
		data, err := streaming.Encode(streaming.TypeSnapshot, streaming.SnapshotPayload{Snapshot: c.Snapshot})
		if err != nil {
			s.logger.Error("Failed to encode snapshot", "error", err)
			return
		}
		s.hub.Broadcast(data)
	})
	deps.Persist.OnDegraded(func(error) {
		s.Notify(LevelWarn, i18n.StorageDegraded)
	})

	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Notices returns the pending notice queue.
func (s *Server) Notices() *Notices {
	return s.notices
}

// Notify queues a localized notice and pushes it to connected renderers.
func (s *Server) Notify(level, key string, args ...any) {
	n := streaming.NoticePayload{Level: level, Key: key, Text: s.deps.Translator.Format(key, args...)}
	s.notices.Push(n)
	if data, err := streaming.Encode(streaming.TypeNotice, n); err == nil {
		s.hub.Broadcast(data)
	}
}

// Run listens on cfg.Listen until ctx is cancelled, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.hub.Close()
		return err
	case <-ctx.Done():
	}

	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("Server stopped")
	return nil
}

func (s *Server) snapshotMessage() ([]byte, error) {
	return streaming.Encode(streaming.TypeSnapshot, streaming.SnapshotPayload{Snapshot: s.deps.Store.Snapshot()})
}
