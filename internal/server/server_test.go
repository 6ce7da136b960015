package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pokemap/maptracker/internal/catalog"
	"github.com/pokemap/maptracker/internal/dispatcher"
	"github.com/pokemap/maptracker/internal/handlers"
	"github.com/pokemap/maptracker/internal/i18n"
	"github.com/pokemap/maptracker/internal/overlay"
	"github.com/pokemap/maptracker/internal/persist"
	"github.com/pokemap/maptracker/internal/selection"
	"github.com/pokemap/maptracker/internal/storage/memory"
	"github.com/pokemap/maptracker/pkg/core"
	"github.com/pokemap/maptracker/pkg/streaming"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	srv     *Server
	ts      *httptest.Server
	store   *selection.Store
	adapter *persist.Adapter
	ambient *memory.Backend
}

type envOption func(*envSettings)

type envSettings struct {
	quota     int
	lang      string
	maxUpload int64
}

func withQuota(n int) envOption        { return func(s *envSettings) { s.quota = n } }
func withLanguage(l string) envOption  { return func(s *envSettings) { s.lang = l } }
func withMaxUpload(n int64) envOption { return func(s *envSettings) { s.maxUpload = n } }

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	settings := envSettings{lang: "en"}
	for _, o := range opts {
		o(&settings)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cat := catalog.New()
	require.NoError(t, cat.Add(core.Marker{ID: "pikachu-1", Category: core.CategoryStandard, X: 100, Y: 100, Width: 24, Height: 32, Label: "Viridian Forest"}))
	require.NoError(t, cat.Add(core.Marker{ID: "tm-24", Category: core.CategoryTechnique, X: 300, Y: 50, Width: 12, Height: 12, Label: "Thunderbolt"}))

	store := selection.New()
	ambient := memory.New(memory.Config{Quota: settings.quota})
	adapter, err := persist.New(persist.Dependencies{Store: store, Ambient: ambient, Logger: logger, Known: cat.Has}, persist.Config{})
	require.NoError(t, err)

	d, err := dispatcher.New(logger)
	require.NoError(t, err)
	handlers.NewService(handlers.Dependencies{Store: store, Catalog: cat, Logger: logger}).Register(d)

	tr, err := i18n.New(settings.lang)
	require.NoError(t, err)

	srv, err := New(Dependencies{
		Store:      store,
		Catalog:    cat,
		Persist:    adapter,
		Dispatcher: d,
		Translator: tr,
		Logger:     logger,
	}, Config{MaxUploadBytes: settings.maxUpload})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Hub().Close()
		ts.Close()
		d.Close()
		_ = adapter.Close()
	})

	return &testEnv{srv: srv, ts: ts, store: store, adapter: adapter, ambient: ambient}
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.ts.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Dependencies{}, Config{})
	assert.Error(t, err)
}

func TestHealthcheck(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodGet, "/healthcheck", nil, "")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(2), body["markers"])
	assert.Equal(t, false, body["degraded"])
	assert.Contains(t, body["commands"], handlers.CmdToggle)
}

func TestToggleEndpoint(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/api/markers/pikachu-1/toggle", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[handlers.ToggleResult](t, resp)
	assert.Equal(t, handlers.ToggleResult{ID: "pikachu-1", Selected: true, Known: true}, res)

	require.NoError(t, e.adapter.Sync(context.Background()))
	data, err := e.ambient.Read(context.Background(), core.AmbientKey)
	require.NoError(t, err)
	assert.JSONEq(t, `{"selectedMarkers":["pikachu-1"]}`, string(data))

	e.do(t, http.MethodPost, "/api/markers/pikachu-1/toggle", nil, "")
	require.NoError(t, e.adapter.Sync(context.Background()))
	data, err = e.ambient.Read(context.Background(), core.AmbientKey)
	require.NoError(t, err)
	assert.JSONEq(t, `{"selectedMarkers":[]}`, string(data))
}

func TestHoverEndpoints(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPut, "/api/hover/tm-24", nil, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.True(t, e.store.IsHovered("tm-24"))

	state := decode[core.Snapshot](t, e.do(t, http.MethodGet, "/api/state", nil, ""))
	assert.Equal(t, core.MarkerID("tm-24"), state.Hovered)

	resp = e.do(t, http.MethodDelete, "/api/hover", nil, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.False(t, e.store.IsHovered("tm-24"))
}

func TestMarkersEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.store.ToggleSelect("tm-24")
	e.store.SetHover("pikachu-1")

	views := decode[[]overlay.MarkerView](t, e.do(t, http.MethodGet, "/api/markers", nil, ""))

	require.Len(t, views, 2)
	byID := map[core.MarkerID]overlay.MarkerView{}
	for _, v := range views {
		byID[v.ID] = v
	}
	assert.True(t, byID["pikachu-1"].ShowTooltip())
	assert.Equal(t, "Viridian Forest", byID["pikachu-1"].Tooltip.Label)
	assert.False(t, byID["pikachu-1"].ShowCheckmark())
	assert.True(t, byID["tm-24"].ShowCheckmark())
	assert.Equal(t, "img/TMItem.png", byID["tm-24"].Icon)
}

func TestMarkersEndpoint_Category(t *testing.T) {
	e := newTestEnv(t)

	views := decode[[]overlay.MarkerView](t, e.do(t, http.MethodGet, "/api/markers?category=technique", nil, ""))
	require.Len(t, views, 1)
	assert.Equal(t, core.MarkerID("tm-24"), views[0].ID)

	resp := e.do(t, http.MethodGet, "/api/markers?category=legendary", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestClickEndpoint(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/api/click", strings.NewReader(`{"x":110,"y":120}`), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[handlers.ClickResult](t, resp)
	assert.True(t, res.Hit)
	assert.True(t, e.store.IsSelected("pikachu-1"))

	resp = e.do(t, http.MethodPost, "/api/click", strings.NewReader(`nope`), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExportEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.store.ToggleSelect("tm-24")
	e.store.ToggleSelect("pikachu-1")

	resp := e.do(t, http.MethodGet, "/api/save", nil, "")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "attachment; filename=mapSave.json", resp.Header.Get("Content-Disposition"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"selectedMarkers":["pikachu-1","tm-24"]}`, string(body))
}

func TestImportEndpoint_RawBody(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/api/save", strings.NewReader(`{"selectedMarkers":["a","a","tm-24"]}`), "application/json")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[persist.ImportResult](t, resp)
	assert.Equal(t, 2, res.Selected)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, []core.MarkerID{"a"}, res.Unknown)
	assert.Equal(t, []core.MarkerID{"a", "tm-24"}, e.store.Snapshot().Selected)

	notices := e.srv.Notices().Drain()
	require.Len(t, notices, 2)
	assert.Equal(t, i18n.ImportApplied, notices[0].Key)
	assert.Equal(t, "Loaded 2 markers from the save file.", notices[0].Text)
	assert.Equal(t, i18n.ImportUnknown, notices[1].Key)
}

func TestImportEndpoint_Multipart(t *testing.T) {
	e := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", core.SaveFileName)
	require.NoError(t, err)
	_, err = fw.Write([]byte(`{"selectedMarkers":["pikachu-1"]}`))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp := e.do(t, http.MethodPost, "/api/save", &buf, mw.FormDataContentType())

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, e.store.IsSelected("pikachu-1"))
}

func TestImportEndpoint_MultipartMissingFile(t *testing.T) {
	e := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("other", "x"))
	require.NoError(t, mw.Close())

	resp := e.do(t, http.MethodPost, "/api/save", &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestImportEndpoint_ParseErrorKeepsSelection(t *testing.T) {
	e := newTestEnv(t, withLanguage("fr"))
	e.store.ToggleSelect("x")
	e.store.ToggleSelect("y")

	resp := e.do(t, http.MethodPost, "/api/save", strings.NewReader("not json"), "application/json")

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, []core.MarkerID{"x", "y"}, e.store.Snapshot().Selected)

	notices := decode[[]streaming.NoticePayload](t, e.do(t, http.MethodGet, "/api/notices", nil, ""))
	require.Len(t, notices, 1)
	assert.Equal(t, LevelError, notices[0].Level)
	assert.Equal(t, i18n.ImportParseError, notices[0].Key)
	assert.Contains(t, notices[0].Text, "illisible")

	again := decode[[]streaming.NoticePayload](t, e.do(t, http.MethodGet, "/api/notices", nil, ""))
	assert.Empty(t, again, "notices are drained")
}

func TestImportEndpoint_TooLarge(t *testing.T) {
	e := newTestEnv(t, withMaxUpload(16))

	resp := e.do(t, http.MethodPost, "/api/save", strings.NewReader(`{"selectedMarkers":["pikachu-1","tm-24"]}`), "application/json")

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, 0, e.store.Len())
}

func TestImportEndpoint_MultipartTooLarge(t *testing.T) {
	e := newTestEnv(t, withMaxUpload(64))
	e.store.ToggleSelect("tm-24")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", core.SaveFileName)
	require.NoError(t, err)
	_, err = fw.Write([]byte(`{"selectedMarkers":["pikachu-1","` + strings.Repeat("x", 256) + `"]}`))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp := e.do(t, http.MethodPost, "/api/save", &buf, mw.FormDataContentType())

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, []core.MarkerID{"tm-24"}, e.store.Snapshot().Selected)

	notices := e.srv.Notices().Drain()
	require.Len(t, notices, 1)
	assert.Equal(t, i18n.ImportParseError, notices[0].Key)
}

func TestLabelsEndpoint(t *testing.T) {
	e := newTestEnv(t, withLanguage("fr"))

	labels := decode[map[string]string](t, e.do(t, http.MethodGet, "/api/labels", nil, ""))

	assert.Equal(t, "fr", labels["language"])
	assert.Equal(t, "Télécharger la sauvegarde", labels["downloadSave"])
	assert.Equal(t, "Carte", labels["map"])
}

func TestDegradedStorageRaisesNotice(t *testing.T) {
	e := newTestEnv(t, withQuota(8))

	e.do(t, http.MethodPost, "/api/markers/pikachu-1/toggle", nil, "")
	require.NoError(t, e.adapter.Sync(context.Background()))

	notices := e.srv.Notices().Drain()
	require.Len(t, notices, 1)
	assert.Equal(t, i18n.StorageDegraded, notices[0].Key)
	assert.Equal(t, LevelWarn, notices[0].Level)
	assert.True(t, e.store.IsSelected("pikachu-1"))

	body := decode[map[string]any](t, e.do(t, http.MethodGet, "/healthcheck", nil, ""))
	assert.Equal(t, true, body["degraded"])
}

func TestServe_StopsOnCancel(t *testing.T) {
	e := newTestEnv(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthcheck")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestRun_BadAddress(t *testing.T) {
	e := newTestEnv(t)
	e.srv.cfg.Listen = "256.0.0.1:bad"

	err := e.srv.Run(context.Background())
	assert.Error(t, err)
}
