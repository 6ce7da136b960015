package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionHandler(t *testing.T) {
	session := func() []slog.Attr {
		return []slog.Attr{slog.String("storage", "memory"), slog.Int("selected", 2), {}}
	}

	tests := []struct {
		desc   string
		attrs  SessionAttrs
		log    func(*slog.Logger)
		want   []string
		absent []string
	}{
		{
			desc:  "appends session attrs",
			attrs: session,
			log:   func(l *slog.Logger) { l.Info("hello") },
			want:  []string{"msg=hello", "storage=memory", "selected=2"},
		},
		{
			desc:   "nil provider",
			log:    func(l *slog.Logger) { l.Info("plain") },
			want:   []string{"msg=plain"},
			absent: []string{"storage="},
		},
		{
			desc:   "record keys win",
			attrs:  session,
			log:    func(l *slog.Logger) { l.Info("import", "selected", 7) },
			want:   []string{"selected=7", "storage=memory"},
			absent: []string{"selected=2"},
		},
		{
			desc:  "survives WithAttrs",
			attrs: session,
			log:   func(l *slog.Logger) { l.With("component", "server").Info("up") },
			want:  []string{"component=server", "storage=memory"},
		},
		{
			desc:  "survives WithGroup",
			attrs: session,
			log:   func(l *slog.Logger) { l.WithGroup("req").Info("grouped", "id", "a") },
			want:  []string{"req.id=a", "req.storage=memory"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(slog.New(NewSessionHandler(slog.NewTextHandler(&buf, nil), tt.attrs)))

			out := buf.String()
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
			for _, a := range tt.absent {
				assert.NotContains(t, out, a)
			}
			assert.Equal(t, 1, strings.Count(out, "\n"))
		})
	}
}

func TestSessionHandler_EmptyGroupIsSame(t *testing.T) {
	h := NewSessionHandler(slog.NewTextHandler(&bytes.Buffer{}, nil), nil)
	assert.Same(t, h, h.WithGroup(""))
}
