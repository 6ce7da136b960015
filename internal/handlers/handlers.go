// Package handlers turns renderer and command line interactions into
// Selection Store operations.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pokemap/maptracker/internal/catalog"
	"github.com/pokemap/maptracker/internal/dispatcher"
	"github.com/pokemap/maptracker/internal/geo"
	"github.com/pokemap/maptracker/internal/selection"
	"github.com/pokemap/maptracker/pkg/core"
)

// Interaction commands.
const (
	CmdHoverEnter = "hover:enter"
	CmdHoverLeave = "hover:leave"
	CmdToggle     = "marker:toggle"
	CmdClickAt    = "map:click"
	CmdState      = "state:get"
)

// ErrMissingMarker is returned for marker commands without a marker id.
var ErrMissingMarker = errors.New("marker id required")

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Store   *selection.Store
	Catalog *catalog.Catalog
	Logger  *slog.Logger
}

// ToggleResult reports the outcome of a toggle.
type ToggleResult struct {
	ID       core.MarkerID `json:"id"`
	Selected bool          `json:"selected"`
	// Known is false for ids with no catalog entry. Such toggles are kept
	// but never render.
	Known bool `json:"known"`
}

// ClickResult reports what a map click hit.
type ClickResult struct {
	Hit    bool          `json:"hit"`
	Toggle *ToggleResult `json:"toggle,omitempty"`
}

// Service provides handler methods for map interactions
type Service struct {
	deps Dependencies
	log  *slog.Logger
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if deps.Catalog == nil {
		deps.Catalog = catalog.New()
	}
	return &Service{deps: deps, log: log.With("component", "handlers")}
}

// Register wires every interaction command into d.
func (s *Service) Register(d *dispatcher.Dispatcher) {
	d.Register(CmdHoverEnter, s.HoverEnter)
	d.Register(CmdHoverLeave, s.HoverLeave)
	d.Register(CmdToggle, s.Toggle, dispatcher.Logged())
	d.Register(CmdClickAt, s.ClickAt, dispatcher.Logged())
	d.Register(CmdState, s.State)
}

// HoverEnter marks e.Marker as the hovered marker.
func (s *Service) HoverEnter(_ context.Context, e dispatcher.Event) (any, error) {
	if e.Marker == "" {
		return nil, ErrMissingMarker
	}
	s.deps.Store.SetHover(e.Marker)
	return nil, nil
}

// HoverLeave clears the hovered marker.
func (s *Service) HoverLeave(_ context.Context, _ dispatcher.Event) (any, error) {
	s.deps.Store.ClearHover()
	return nil, nil
}

// Toggle flips the collected state of e.Marker.
func (s *Service) Toggle(_ context.Context, e dispatcher.Event) (any, error) {
	if e.Marker == "" {
		return nil, ErrMissingMarker
	}
	return s.toggle(e.Marker), nil
}

func (s *Service) toggle(id core.MarkerID) ToggleResult {
	res := ToggleResult{
		ID:       id,
		Selected: s.deps.Store.ToggleSelect(id),
		Known:    s.deps.Catalog.Has(id),
	}
	if !res.Known {
		s.log.Debug("Toggled marker missing from catalog", "id", id)
	}
	return res
}

// ClickAt toggles the topmost marker under the map point in e.Args, given
// either as "x,y" or as two arguments.
func (s *Service) ClickAt(_ context.Context, e dispatcher.Event) (any, error) {
	p, err := geo.PointFromString(strings.Join(e.Args, ","))
	if err != nil {
		return nil, fmt.Errorf("click at %v: %w", e.Args, err)
	}
	c, _ := p.Coordinates()

	m, ok := s.deps.Catalog.MarkerAt(c.X, c.Y)
	if !ok {
		return ClickResult{}, nil
	}
	res := s.toggle(m.ID)
	return ClickResult{Hit: true, Toggle: &res}, nil
}

// State returns the current snapshot.
func (s *Service) State(_ context.Context, _ dispatcher.Event) (any, error) {
	return s.deps.Store.Snapshot(), nil
}
