package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/pokemap/maptracker/internal/dispatcher"
	"github.com/pokemap/maptracker/internal/geo"
	"github.com/pokemap/maptracker/internal/handlers"
	"github.com/pokemap/maptracker/internal/i18n"
	"github.com/pokemap/maptracker/internal/overlay"
	"github.com/pokemap/maptracker/internal/persist"
	"github.com/pokemap/maptracker/pkg/core"
	"github.com/pokemap/maptracker/pkg/streaming"
)

const (
	sourceHTTP = "http"
	sourceWS   = "ws"
)

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthcheck", s.handleHealth)
	mux.HandleFunc("GET /api/markers", s.handleMarkers)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("PUT /api/hover/{id}", s.handleHoverEnter)
	mux.HandleFunc("DELETE /api/hover", s.handleHoverLeave)
	mux.HandleFunc("POST /api/markers/{id}/toggle", s.handleToggle)
	mux.HandleFunc("POST /api/click", s.handleClick)
	mux.HandleFunc("GET /api/save", s.handleExport)
	mux.HandleFunc("POST /api/save", s.handleImport)
	mux.HandleFunc("GET /api/notices", s.handleNotices)
	mux.HandleFunc("GET /api/labels", s.handleLabels)
	mux.Handle("GET /ws", s.hub)

	if s.cfg.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"markers":  s.deps.Catalog.Len(),
		"clients":  s.hub.Len(),
		"degraded": s.deps.Persist.Degraded(),
		"commands": s.deps.Dispatcher.Commands(),
	})
}

func (s *Server) handleMarkers(w http.ResponseWriter, r *http.Request) {
	markers := s.deps.Catalog.All()
	if c := r.URL.Query().Get("category"); c != "" {
		cat := core.Category(c)
		if !cat.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown category %q", c))
			return
		}
		markers = s.deps.Catalog.ByCategory(cat)
	}
	st := overlay.FromSnapshot(s.deps.Store.Snapshot())
	writeJSON(w, http.StatusOK, overlay.Build(markers, st))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.dispatch(r.Context(), dispatcher.Event{Command: handlers.CmdState, Source: sourceHTTP})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleHoverEnter(w http.ResponseWriter, r *http.Request) {
	id := core.MarkerID(r.PathValue("id"))
	if _, err := s.dispatch(r.Context(), dispatcher.Event{Command: handlers.CmdHoverEnter, Marker: id, Source: sourceHTTP}); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHoverLeave(w http.ResponseWriter, r *http.Request) {
	if _, err := s.dispatch(r.Context(), dispatcher.Event{Command: handlers.CmdHoverLeave, Source: sourceHTTP}); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	id := core.MarkerID(r.PathValue("id"))
	res, err := s.dispatch(r.Context(), dispatcher.Event{Command: handlers.CmdToggle, Marker: id, Source: sourceHTTP})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	var p streaming.ClickPayload
	if err := json.NewDecoder(io.LimitReader(r.Body, 1024)).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "body must be {\"x\":..,\"y\":..}")
		return
	}
	res, err := s.dispatch(r.Context(), clickEvent(p, sourceHTTP))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	data, err := s.deps.Persist.ExportDocument()
	if err != nil {
		s.logger.Error("Export failed", "error", err)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", core.SaveMIMEType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": core.SaveFileName}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleImport accepts the save file either as the multipart field "file"
// or as the raw request body.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	var body io.Reader = r.Body
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
		f, hdr, err := r.FormFile("file")
		if err != nil {
			if s.rejectOversized(w, err) {
				return
			}
			writeError(w, http.StatusBadRequest, "missing multipart field \"file\"")
			return
		}
		defer f.Close()
		s.logger.Debug("Save file uploaded", "name", hdr.Filename, "size", hdr.Size)
		body = f
	}

	res, err := s.deps.Persist.ImportFromFile(r.Context(), body)
	switch {
	case err == nil:
		s.Notify(LevelInfo, i18n.ImportApplied, res.Selected)
		if len(res.Unknown) > 0 {
			s.Notify(LevelWarn, i18n.ImportUnknown, len(res.Unknown))
		}
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, persist.ErrImportParse):
		s.Notify(LevelError, i18n.ImportParseError)
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, persist.ErrImportSuperseded):
		s.Notify(LevelInfo, i18n.ImportSuperseded)
		writeError(w, http.StatusConflict, err.Error())
	default:
		if s.rejectOversized(w, err) {
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// rejectOversized answers 413 when err comes from an upload over
// MaxUploadBytes. The selection is untouched, so the user gets the same
// notice as for an unreadable file.
func (s *Server) rejectOversized(w http.ResponseWriter, err error) bool {
	var tooBig *http.MaxBytesError
	if !errors.As(err, &tooBig) {
		return false
	}
	s.Notify(LevelError, i18n.ImportParseError)
	writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	return true
}

func (s *Server) handleNotices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.notices.Drain())
}

func (s *Server) handleLabels(w http.ResponseWriter, _ *http.Request) {
	tr := s.deps.Translator
	writeJSON(w, http.StatusOK, map[string]string{
		"language":     tr.Language(),
		"downloadSave": tr.Get(i18n.DownloadSave),
		"loadSave":     tr.Get(i18n.LoadSave),
		"map":          tr.Get(i18n.Map),
	})
}

// handleMessage maps renderer WebSocket messages onto dispatcher commands.
func (s *Server) handleMessage(ctx context.Context, env streaming.Envelope) (any, error) {
	switch env.Type {
	case streaming.TypeHoverEnter, streaming.TypeToggle:
		var p streaming.MarkerPayload
		if err := env.Decode(&p); err != nil {
			return nil, err
		}
		cmd := handlers.CmdHoverEnter
		if env.Type == streaming.TypeToggle {
			cmd = handlers.CmdToggle
		}
		return s.dispatch(ctx, dispatcher.Event{Command: cmd, Marker: p.ID, Source: sourceWS})
	case streaming.TypeHoverLeave:
		return s.dispatch(ctx, dispatcher.Event{Command: handlers.CmdHoverLeave, Source: sourceWS})
	case streaming.TypeClick:
		var p streaming.ClickPayload
		if err := env.Decode(&p); err != nil {
			return nil, err
		}
		return s.dispatch(ctx, clickEvent(p, sourceWS))
	default:
		return nil, fmt.Errorf("%w: %s", dispatcher.ErrUnknownCommand, env.Type)
	}
}

func (s *Server) dispatch(ctx context.Context, e dispatcher.Event) (any, error) {
	e.Timestamp = time.Now()
	return s.deps.Dispatcher.Dispatch(ctx, e)
}

func clickEvent(p streaming.ClickPayload, source string) dispatcher.Event {
	return dispatcher.Event{
		Command: handlers.CmdClickAt,
		Args: []string{
			strconv.FormatFloat(p.X, 'f', -1, 64),
			strconv.FormatFloat(p.Y, 'f', -1, 64),
		},
		Source: source,
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, handlers.ErrMissingMarker), errors.Is(err, geo.ErrInvalidCoordinates):
		return http.StatusBadRequest
	case errors.Is(err, dispatcher.ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, dispatcher.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
