// Package monitor periodically reports the tracker's status to the log and
// to a status file.
package monitor

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/pokemap/maptracker/internal/catalog"
	"github.com/pokemap/maptracker/internal/persist"
	"github.com/pokemap/maptracker/internal/selection"
	"github.com/pokemap/maptracker/pkg/core"
)

const defaultInterval = 10 * time.Second

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Store   *selection.Store
	Catalog *catalog.Catalog
	Persist *persist.Adapter
	Clients func() int // connected renderers, optional
	Logger  *slog.Logger

	StatusPath string        // empty disables the status file
	Interval   time.Duration // defaults to 10s
}

// Status is one status report.
type Status struct {
	Time      time.Time `json:"time"`
	Uptime    string    `json:"uptime"`
	Markers   int       `json:"markers"`
	Selected  int       `json:"selected"`
	Collected int       `json:"collected"` // selected ids present in the catalog

	Categories map[core.Category]CategoryStatus `json:"categories,omitempty"`

	Clients   int       `json:"clients"`
	Degraded  bool      `json:"degraded"`
}

// CategoryStatus is collection progress within one category.
type CategoryStatus struct {
	Markers   int `json:"markers"`
	Collected int `json:"collected"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	started   time.Time
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = defaultInterval
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		deps:     deps,
		started:  time.Now(),
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus returns the current status.
func (s *Service) GetStatus() Status {
	snap := s.deps.Store.Snapshot()
	st := Status{
		Time:     time.Now().UTC(),
		Uptime:   time.Since(s.started).Round(time.Second).String(),
		Selected: len(snap.Selected),
	}
	if s.deps.Catalog != nil {
		st.Markers = s.deps.Catalog.Len()
		st.Categories = make(map[core.Category]CategoryStatus)
		for cat, n := range s.deps.Catalog.Counts() {
			st.Categories[cat] = CategoryStatus{Markers: n}
		}
		for _, id := range snap.Selected {
			m, ok := s.deps.Catalog.Get(id)
			if !ok {
				continue
			}
			st.Collected++
			cs := st.Categories[m.Category]
			cs.Collected++
			st.Categories[m.Category] = cs
		}
	}
	if s.deps.Clients != nil {
		st.Clients = s.deps.Clients()
	}
	if s.deps.Persist != nil {
		st.Degraded = s.deps.Persist.Degraded()
	}
	return st
}

// Start starts the status monitor goroutine
func (s *Service) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()
}

func (s *Service) loop() {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	logger := s.deps.Logger
	logger.Debug("Starting status monitor", "interval", s.deps.Interval, "file", s.deps.StatusPath)

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			s.report()
			return
		case <-ticker.C:
			s.report()
		}
	}
}

func (s *Service) report() {
	st := s.GetStatus()
	s.deps.Logger.Debug("Status",
		"selected", st.Selected,
		"collected", st.Collected,
		"markers", st.Markers,
		"clients", st.Clients,
		"degraded", st.Degraded,
	)
	if s.deps.StatusPath == "" {
		return
	}
	if err := writeStatus(s.deps.StatusPath, st); err != nil {
		s.deps.Logger.Error("Error writing status file", "path", s.deps.StatusPath, "error", err)
	}
}

func writeStatus(path string, st Status) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Stop stops the status monitor, writing one last report.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.isRunning {
		select {
		case <-s.stopChan:
		default:
			close(s.stopChan)
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
}
