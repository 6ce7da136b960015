package logging

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

var (
	osStdout io.Writer = os.Stdout
	osPipe             = os.Pipe
)

// SlogManager owns the process logger and anything it must close on exit.
type SlogManager struct {
	mu      sync.Mutex
	logger  *slog.Logger
	level   slog.LevelVar
	closers []io.Closer
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// HandlerOptions returns the options every handler shares: the manager's
// level and RFC3339 UTC timestamps.
func (m *SlogManager) HandlerOptions() *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: &m.level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}
}

// Setup initializes the logging system. Records go to file, or to stdout
// when file is nil, and to every extra handler.
func (m *SlogManager) Setup(file io.Writer, level string, extra ...slog.Handler) {
	m.level.Set(parseLevel(level))
	opts := m.HandlerOptions()

	var handlers []slog.Handler
	if file != nil {
		handlers = append(handlers, slog.NewTextHandler(file, opts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(osStdout, opts))
	}
	handlers = append(handlers, extra...)

	logger := slog.New(NewMultiHandler(handlers...))

	m.mu.Lock()
	m.logger = logger
	m.mu.Unlock()

	logger.Info("Logging initialized", "level", m.level.Level().String())
}

// SetLevel changes the level of every handler built from HandlerOptions.
func (m *SlogManager) SetLevel(level string) {
	m.level.Set(parseLevel(level))
}

// WithSession wraps the current logger so every record also carries the
// attributes returned by attrs.
func (m *SlogManager) WithSession(attrs SessionAttrs) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.logger == nil {
		return
	}
	m.logger = slog.New(NewSessionHandler(m.logger.Handler(), attrs))
}

// AddCloser registers c to be closed by Close, e.g. a GELF writer.
func (m *SlogManager) AddCloser(c io.Closer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closers = append(m.closers, c)
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.logger == nil {
		// Return a default logger if Setup hasn't been called
		return slog.Default()
	}
	return m.logger
}

// Close closes every registered closer.
func (m *SlogManager) Close() error {
	m.mu.Lock()
	closers := m.closers
	m.closers = nil
	m.mu.Unlock()

	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
