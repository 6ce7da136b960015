package logging

import (
	"context"
	"log/slog"
)

// SessionAttrs returns attributes describing the running session, such as
// the storage backend and the selection size. It is called once per record
// and must not block.
type SessionAttrs func() []slog.Attr

// SessionHandler appends SessionAttrs to every record. Keys the record
// already carries are not repeated.
type SessionHandler struct {
	next  slog.Handler
	attrs SessionAttrs
}

// NewSessionHandler wraps next.
func NewSessionHandler(next slog.Handler, attrs SessionAttrs) *SessionHandler {
	return &SessionHandler{next: next, attrs: attrs}
}

func (h *SessionHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *SessionHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.attrs == nil {
		return h.next.Handle(ctx, r)
	}

	seen := make(map[string]bool, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		seen[a.Key] = true
		return true
	})
	for _, a := range h.attrs() {
		if a.Key == "" || seen[a.Key] {
			continue
		}
		r.AddAttrs(a)
	}
	return h.next.Handle(ctx, r)
}

func (h *SessionHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(h.next.WithAttrs(attrs))
}

func (h *SessionHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.derive(h.next.WithGroup(name))
}

func (h *SessionHandler) derive(next slog.Handler) *SessionHandler {
	return &SessionHandler{next: next, attrs: h.attrs}
}
