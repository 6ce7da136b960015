// Package persist mirrors the selection into ambient storage and moves it in
// and out of save files.
package persist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pokemap/maptracker/internal/selection"
	"github.com/pokemap/maptracker/internal/storage"
	"github.com/pokemap/maptracker/pkg/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrImportSuperseded is returned by an import that finished after a newer
// import was requested. Its result is discarded.
var ErrImportSuperseded = errors.New("import superseded by a newer import")

const (
	defaultQueueSize    = 64
	defaultWriteTimeout = 5 * time.Second
)

// Config holds adapter settings.
type Config struct {
	Key          string        // ambient slot, core.AmbientKey when empty
	QueueSize    int           // pending ambient writes before PersistOnChange blocks
	WriteTimeout time.Duration // per ambient write
}

// Dependencies holds collaborators for the adapter.
type Dependencies struct {
	Store   *selection.Store
	Ambient storage.AmbientStore
	Logger  *slog.Logger

	// Known reports catalog membership. Optional; used only to report
	// unknown ids after an import.
	Known func(core.MarkerID) bool
}

// ImportResult describes an applied import.
type ImportResult struct {
	Selected   int             `json:"selected"`
	Duplicates int             `json:"duplicates"`
	Unknown    []core.MarkerID `json:"unknown,omitempty"`
}

type writeRequest struct {
	data []byte
	ack  chan struct{}
}

// Adapter keeps the store's selection in sync with ambient storage and
// handles save file export and import.
type Adapter struct {
	deps Dependencies
	cfg  Config
	log  *slog.Logger

	writeCh   chan writeRequest
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	degraded   atomic.Bool
	degradeMu  sync.Mutex
	degradeErr error
	onDegraded func(error)
	importMu   sync.Mutex
	importSeq  atomic.Uint64

	writes   metric.Int64Counter
	failures metric.Int64Counter
	imports  metric.Int64Counter
}

// New creates an adapter, subscribes it to selection changes and starts the
// ambient write loop. Call Close to stop it.
func New(deps Dependencies, cfg Config) (*Adapter, error) {
	if deps.Store == nil {
		return nil, errors.New("persist: nil selection store")
	}
	if deps.Ambient == nil {
		return nil, errors.New("persist: nil ambient store")
	}
	if cfg.Key == "" {
		cfg.Key = core.AmbientKey
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	a := &Adapter{
		deps:    deps,
		cfg:     cfg,
		log:     log.With("component", "persist", "store", storage.Describe(deps.Ambient)),
		writeCh: make(chan writeRequest, cfg.QueueSize),
		done:    make(chan struct{}),
	}

	m := meter()
	var err error
	if a.writes, err = m.Int64Counter("persist.ambient.writes",
		metric.WithDescription("Ambient storage writes that landed")); err != nil {
		return nil, fmt.Errorf("creating writes counter: %w", err)
	}
	if a.failures, err = m.Int64Counter("persist.ambient.failures",
		metric.WithDescription("Ambient storage writes that failed")); err != nil {
		return nil, fmt.Errorf("creating failures counter: %w", err)
	}
	if a.imports, err = m.Int64Counter("persist.imports",
		metric.WithDescription("Save file imports by outcome")); err != nil {
		return nil, fmt.Errorf("creating imports counter: %w", err)
	}

	deps.Store.Subscribe(func(c selection.Change) {
		if c.Kind == selection.ChangeSelection {
			a.PersistOnChange(c.Snapshot.Selected)
		}
	})

	a.wg.Add(1)
	go a.writeLoop()

	return a, nil
}

// HydrateFromAmbientStore loads the stored selection into the store. Any
// failure leaves the store empty; nothing is returned to the caller besides
// the number of markers restored. When the store cannot be read at all the
// adapter degrades before the store is touched, so the unread value is
// never overwritten.
func (a *Adapter) HydrateFromAmbientStore(ctx context.Context) int {
	ids := a.readAmbient(ctx)
	n := a.deps.Store.Replace(dedup(ids))
	a.log.Info("Selection hydrated", "markers", n, "degraded", a.degraded.Load())
	return n
}

func (a *Adapter) readAmbient(ctx context.Context) []core.MarkerID {
	data, err := a.deps.Ambient.Read(ctx, a.cfg.Key)
	if errors.Is(err, storage.ErrNotFound) {
		a.log.Debug("No stored selection", "key", a.cfg.Key)
		return nil
	}
	if err != nil {
		a.log.Warn("Failed to read stored selection, starting empty in memory only", "key", a.cfg.Key, "error", err)
		a.degrade(err)
		return nil
	}

	// earlier versions stored the bare id array under the same key
	ids, err := DecodeDocument(data, true)
	if err != nil {
		a.log.Warn("Stored selection is corrupt, starting empty", "key", a.cfg.Key, "error", err)
		return nil
	}
	return ids
}

// PersistOnChange queues ids to be written to ambient storage. Writes land in
// the order they were queued. Failures are logged and switch the adapter to
// in-memory-only for the rest of the session.
func (a *Adapter) PersistOnChange(ids []core.MarkerID) {
	if a.degraded.Load() {
		a.log.Debug("Ambient storage disabled, change kept in memory", "markers", len(ids))
		return
	}
	data, err := EncodeDocument(ids)
	if err != nil {
		a.log.Error("Failed to encode selection", "error", err)
		return
	}

	select {
	case a.writeCh <- writeRequest{data: data}:
	case <-a.done:
		a.log.Debug("Adapter closed, dropping ambient write")
	}
}

// Sync blocks until every write queued before the call has been attempted.
func (a *Adapter) Sync(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case a.writeCh <- writeRequest{ack: ack}:
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-ack:
		return nil
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnDegraded registers fn to be called once when ambient storage is
// abandoned. If that already happened fn is called right away.
func (a *Adapter) OnDegraded(fn func(error)) {
	a.degradeMu.Lock()
	a.onDegraded = fn
	err := a.degradeErr
	a.degradeMu.Unlock()

	if err != nil && fn != nil {
		fn(err)
	}
}

// degrade switches to in-memory-only. Only the first cause is kept.
func (a *Adapter) degrade(err error) {
	a.degradeMu.Lock()
	if a.degradeErr != nil {
		a.degradeMu.Unlock()
		return
	}
	a.degradeErr = err
	a.degraded.Store(true)
	fn := a.onDegraded
	a.degradeMu.Unlock()

	if fn != nil {
		fn(err)
	}
}

// Degraded reports whether ambient writes have been abandoned.
func (a *Adapter) Degraded() bool {
	return a.degraded.Load()
}

// Close flushes pending writes and stops the write loop.
func (a *Adapter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.WriteTimeout)
		defer cancel()
		err = a.Sync(ctx)
		close(a.done)
		a.wg.Wait()
	})
	return err
}

// writeLoop drains writeCh. It is the only goroutine that writes ambient
// storage, which keeps writes in queue order.
func (a *Adapter) writeLoop() {
	defer a.wg.Done()
	for {
		select {
		case <-a.done:
			return
		case req := <-a.writeCh:
			if req.data != nil {
				a.write(req.data)
			}
			if req.ack != nil {
				close(req.ack)
			}
		}
	}
}

func (a *Adapter) write(data []byte) {
	if a.degraded.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.WriteTimeout)
	defer cancel()

	if err := a.deps.Ambient.Write(ctx, a.cfg.Key, data); err != nil {
		a.failures.Add(ctx, 1)
		a.log.Warn("Ambient storage write failed, keeping selection in memory only", "key", a.cfg.Key, "error", err)
		a.degrade(err)
		return
	}
	a.writes.Add(ctx, 1)
	a.log.Debug("Selection written to ambient storage", "key", a.cfg.Key, "bytes", len(data))
}

// ExportDocument serializes the current selection as a SaveDocument.
func (a *Adapter) ExportDocument() ([]byte, error) {
	return EncodeDocument(a.deps.Store.Snapshot().Selected)
}

// ExportToFile writes the current selection as a SaveDocument to w.
func (a *Adapter) ExportToFile(w io.Writer) error {
	data, err := a.ExportDocument()
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write save file: %w", err)
	}
	return nil
}

// ExportFile writes the current selection to path. A directory path receives
// core.SaveFileName. The file is replaced atomically.
func (a *Adapter) ExportFile(path string) (string, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, core.SaveFileName)
	}
	data, err := a.ExportDocument()
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".mapsave-*")
	if err != nil {
		return "", fmt.Errorf("create save file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write save file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close save file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("replace save file: %w", err)
	}

	a.log.Info("Selection exported", "path", path, "bytes", len(data))
	return path, nil
}

// ImportFromFile reads a SaveDocument from r and replaces the selection with
// it. Parse failures return an error wrapping ErrImportParse and leave the
// selection untouched. If another import is requested while r is being read,
// this one returns ErrImportSuperseded and is not applied.
func (a *Adapter) ImportFromFile(ctx context.Context, r io.Reader) (ImportResult, error) {
	token := a.importSeq.Add(1)

	data, err := io.ReadAll(r)
	if err != nil {
		a.countImport(ctx, "read_error")
		return ImportResult{}, fmt.Errorf("read save file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		a.countImport(ctx, "canceled")
		return ImportResult{}, err
	}

	ids, err := DecodeDocument(data, false)
	if err != nil {
		a.countImport(ctx, "parse_error")
		a.log.Warn("Rejected save file", "error", err)
		return ImportResult{}, err
	}
	unique := dedup(ids)

	a.importMu.Lock()
	defer a.importMu.Unlock()

	if token != a.importSeq.Load() {
		a.countImport(ctx, "superseded")
		a.log.Debug("Discarding stale import", "token", token)
		return ImportResult{}, ErrImportSuperseded
	}

	result := ImportResult{
		Selected:   a.deps.Store.Replace(unique),
		Duplicates: len(ids) - len(unique),
		Unknown:    a.unknown(unique),
	}
	a.countImport(ctx, "applied")
	a.log.Info("Selection imported", "markers", result.Selected, "duplicates", result.Duplicates, "unknown", len(result.Unknown))
	return result, nil
}

// ImportFile opens path and imports it. Save files are .json by convention;
// other extensions are accepted with a warning.
func (a *Adapter) ImportFile(ctx context.Context, path string) (ImportResult, error) {
	if !strings.EqualFold(filepath.Ext(path), ".json") {
		a.log.Warn("Save file does not have a .json extension", "path", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return ImportResult{}, fmt.Errorf("open save file: %w", err)
	}
	defer f.Close()
	return a.ImportFromFile(ctx, f)
}

func (a *Adapter) unknown(ids []core.MarkerID) []core.MarkerID {
	if a.deps.Known == nil {
		return nil
	}
	var out []core.MarkerID
	for _, id := range ids {
		if !a.deps.Known(id) {
			out = append(out, id)
		}
	}
	return out
}

func (a *Adapter) countImport(ctx context.Context, outcome string) {
	a.imports.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
