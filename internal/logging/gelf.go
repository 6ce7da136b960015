package logging

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/Graylog2/go-gelf/gelf"
)

// NewGelfHandler returns a handler that ships each record to a Graylog
// GELF UDP input at addr. The returned closer releases the connection.
func NewGelfHandler(addr string, opts *slog.HandlerOptions) (slog.Handler, io.Closer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to graylog at %s: %w", addr, err)
	}
	w.Facility = "maptracker"
	return slog.NewJSONHandler(w, opts), w, nil
}
