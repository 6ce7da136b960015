// Package selection holds the collected-marker set and the hovered marker.
//
// Every mutation is applied under a single lock and published to listeners
// while that lock is held, so listeners observe changes in exactly the order
// they were applied. Listeners must not call back into the Store.
package selection

import (
	"slices"
	"sync"

	"github.com/pokemap/maptracker/pkg/core"
	"github.com/zyedidia/generic/mapset"
)

// ChangeKind tells listeners which part of the state moved.
type ChangeKind int

const (
	ChangeSelection ChangeKind = iota + 1
	ChangeHover
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeSelection:
		return "selection"
	case ChangeHover:
		return "hover"
	default:
		return "unknown"
	}
}

// Change is delivered to listeners after every mutation.
type Change struct {
	Kind     ChangeKind
	Snapshot core.Snapshot
}

// Listener receives changes in application order.
type Listener func(Change)

// Store is the single source of truth for selection and hover state.
type Store struct {
	mu        sync.RWMutex
	selected  mapset.Set[core.MarkerID]
	hovered   core.MarkerID
	version   uint64
	listeners []Listener
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		selected: mapset.New[core.MarkerID](),
	}
}

// Subscribe registers fn for every subsequent change.
func (s *Store) Subscribe(fn Listener) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// SetHover replaces the hovered marker. An empty id clears it. The id is not
// checked against any catalog.
func (s *Store) SetHover(id core.MarkerID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hovered == id {
		return
	}
	s.hovered = id
	s.publish(ChangeHover)
}

// ClearHover is SetHover with no marker.
func (s *Store) ClearHover() {
	s.SetHover("")
}

// ToggleSelect flips membership of id and returns whether it is now selected.
// Unknown ids are accepted; they simply never render.
func (s *Store) ToggleSelect(id core.MarkerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	selected := !s.selected.Has(id)
	if selected {
		s.selected.Put(id)
	} else {
		s.selected.Remove(id)
	}
	s.publish(ChangeSelection)
	return selected
}

// Replace swaps the whole selection for ids, collapsing duplicates, and
// returns the resulting set size.
func (s *Store) Replace(ids []core.MarkerID) int {
	next := mapset.New[core.MarkerID]()
	for _, id := range ids {
		next.Put(id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.selected = next
	s.publish(ChangeSelection)
	return next.Size()
}

// IsSelected reports whether id is collected.
func (s *Store) IsSelected(id core.MarkerID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected.Has(id)
}

// IsHovered reports whether id is the hovered marker.
func (s *Store) IsHovered(id core.MarkerID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return id != "" && s.hovered == id
}

// Len returns the number of collected markers.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected.Size()
}

// Snapshot returns a copy of the current state. Selected ids are sorted.
func (s *Store) Snapshot() core.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() core.Snapshot {
	ids := make([]core.MarkerID, 0, s.selected.Size())
	s.selected.Each(func(id core.MarkerID) {
		ids = append(ids, id)
	})
	slices.Sort(ids)
	return core.Snapshot{
		Selected: ids,
		Hovered:  s.hovered,
		Version:  s.version,
	}
}

// publish must be called with s.mu held for writing.
func (s *Store) publish(kind ChangeKind) {
	s.version++
	if len(s.listeners) == 0 {
		return
	}
	change := Change{Kind: kind, Snapshot: s.snapshotLocked()}
	for _, fn := range s.listeners {
		fn(change)
	}
}
