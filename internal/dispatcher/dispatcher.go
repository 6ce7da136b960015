// Package dispatcher routes map interaction commands to their handlers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/pokemap/maptracker/pkg/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrUnknownCommand is returned by Dispatch for unregistered commands.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("dispatcher closed")
)

// Event is one interaction from the renderer or the command line.
type Event struct {
	Command   string
	Marker    core.MarkerID
	Args      []string
	Source    string
	Timestamp time.Time
}

// HandlerFunc handles one event. The result is returned to the caller of
// Dispatch.
type HandlerFunc func(context.Context, Event) (any, error)

// Logger interface for pluggable logging. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option changes how Register wraps a handler.
type Option func(*config)

type config struct {
	logged bool
}

// Logged logs each event and its outcome at debug level.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Dispatcher routes events to the handler registered for their command.
type Dispatcher struct {
	logger Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	closed   bool

	processed metric.Int64Counter
	failed    metric.Int64Counter
}

// New returns an empty dispatcher. Metrics go to the global OTel meter
// provider, which is a no-op until one is installed.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}

	m := meter()
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&d.processed, "maptracker.commands.processed", "Map commands handled"},
		{&d.failed, "maptracker.commands.failed", "Map commands whose handler returned an error"},
	}
	for _, c := range counters {
		counter, err := m.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", c.name, err)
		}
		*c.dst = counter
	}

	return d, nil
}

// Register installs h for command, replacing any earlier handler.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	wrapped := d.withMetrics(command, h)
	if cfg.logged {
		wrapped = d.withLogging(command, wrapped)
	}

	d.mu.Lock()
	d.handlers[command] = wrapped
	d.mu.Unlock()
}

// Dispatch routes an event to its registered handler. A zero Timestamp is
// set to now.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) (any, error) {
	d.mu.RLock()
	h, ok := d.handlers[e.Command]
	closed := d.closed
	d.mu.RUnlock()

	if closed {
		return nil, ErrClosed
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return h(ctx, e)
}

// Commands returns the registered command names, sorted.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.handlers))
	for cmd := range d.handlers {
		out = append(out, cmd)
	}
	slices.Sort(out)
	return out
}

// Close stops accepting events. Handlers already running finish normally.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
}

func (d *Dispatcher) withMetrics(command string, h HandlerFunc) HandlerFunc {
	cmdAttr := metric.WithAttributes(attribute.String("command", command))
	return func(ctx context.Context, e Event) (any, error) {
		result, err := h(ctx, e)
		if err != nil {
			d.failed.Add(ctx, 1, cmdAttr)
		} else {
			d.processed.Add(ctx, 1, cmdAttr)
		}
		return result, err
	}
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(ctx context.Context, e Event) (any, error) {
		began := time.Now()
		d.logger.Debug("Map command received", "command", command, "marker", e.Marker, "source", e.Source)

		result, err := h(ctx, e)
		if err != nil {
			d.logger.Error("Map command failed", "command", command, "marker", e.Marker, "took", time.Since(began), "error", err)
			return result, err
		}
		d.logger.Debug("Map command done", "command", command, "marker", e.Marker, "took", time.Since(began))
		return result, nil
	}
}
