// Package catalog holds the static marker descriptors the map is drawn from.
package catalog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pokemap/maptracker/internal/geo"
	"github.com/pokemap/maptracker/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

var (
	// ErrDuplicateID is returned when a marker id is already in the catalog.
	ErrDuplicateID = errors.New("duplicate marker id")
	// ErrInvalidMarker is returned for descriptors missing an id or category.
	ErrInvalidMarker = errors.New("invalid marker")
)

type entry struct {
	marker core.Marker
	bounds geom.Geometry
}

// Catalog indexes markers by id across all categories. Iteration follows
// insertion order, which is also the draw order.
type Catalog struct {
	mu      sync.RWMutex
	entries map[core.MarkerID]*entry
	order   []core.MarkerID
}

// New creates an empty Catalog
func New() *Catalog {
	return &Catalog{
		entries: make(map[core.MarkerID]*entry),
	}
}

// Add inserts a marker. Ids must be unique across every category.
func (c *Catalog) Add(m core.Marker) error {
	if m.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidMarker)
	}
	if !m.Category.Valid() {
		return fmt.Errorf("%w: %s has unknown category %q", ErrInvalidMarker, m.ID, m.Category)
	}
	if m.Icon == "" {
		m.Icon = m.Category.DefaultIcon()
	}

	bounds, err := geo.Bounds(m)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMarker, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.entries[m.ID]; ok {
		return fmt.Errorf("%w: %s (already in %s)", ErrDuplicateID, m.ID, prev.marker.Category)
	}
	c.entries[m.ID] = &entry{marker: m, bounds: bounds}
	c.order = append(c.order, m.ID)
	return nil
}

// Get retrieves a marker by id
func (c *Catalog) Get(id core.MarkerID) (core.Marker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	if !ok {
		return core.Marker{}, false
	}
	return e.marker, true
}

// Has reports whether id names a catalog marker.
func (c *Catalog) Has(id core.MarkerID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[id]
	return ok
}

// Len returns the number of markers.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// All returns every marker in draw order.
func (c *Catalog) All() []core.Marker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]core.Marker, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.entries[id].marker)
	}
	return out
}

// ByCategory returns the markers of one category in draw order.
func (c *Catalog) ByCategory(cat core.Category) []core.Marker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []core.Marker
	for _, id := range c.order {
		if e := c.entries[id]; e.marker.Category == cat {
			out = append(out, e.marker)
		}
	}
	return out
}

// Counts returns the number of markers per category.
func (c *Catalog) Counts() map[core.Category]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[core.Category]int, len(core.Categories))
	for _, e := range c.entries {
		out[e.marker.Category]++
	}
	return out
}

// MarkerAt returns the topmost marker whose pin covers (x, y). Later markers
// are drawn over earlier ones.
func (c *Catalog) MarkerAt(x, y float64) (core.Marker, bool) {
	p, err := geo.Point(x, y)
	if err != nil {
		return core.Marker{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := len(c.order) - 1; i >= 0; i-- {
		e := c.entries[c.order[i]]
		if geo.Covers(e.bounds, p) {
			return e.marker, true
		}
	}
	return core.Marker{}, false
}
