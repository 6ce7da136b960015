// Package overlay turns catalog markers and selection state into what the
// renderer draws for each pin.
package overlay

import (
	"github.com/pokemap/maptracker/pkg/core"
)

// CheckmarkIcon is drawn over collected markers.
const CheckmarkIcon = "img/checkmark.png"

// State answers the renderer's per-marker questions.
type State interface {
	IsSelected(id core.MarkerID) bool
	IsHovered(id core.MarkerID) bool
}

// Tooltip is shown next to a hovered pin.
type Tooltip struct {
	Label string        `json:"label"`
	ID    core.MarkerID `json:"id"`
}

// MarkerView is the render state of one pin.
type MarkerView struct {
	core.Marker
	Selected  bool     `json:"selected"`
	Hovered   bool     `json:"hovered"`
	Checkmark string   `json:"checkmark,omitempty"`
	Tooltip   *Tooltip `json:"tooltip,omitempty"`
}

// ShowCheckmark reports whether the checkmark overlay is drawn.
func (v MarkerView) ShowCheckmark() bool {
	return v.Checkmark != ""
}

// ShowTooltip reports whether the tooltip is drawn.
func (v MarkerView) ShowTooltip() bool {
	return v.Tooltip != nil
}

// View computes the render state of m. Collected markers get a checkmark;
// the tooltip appears only while the marker is hovered and not collected.
func View(m core.Marker, st State) MarkerView {
	v := MarkerView{
		Marker:   m,
		Selected: st.IsSelected(m.ID),
		Hovered:  st.IsHovered(m.ID),
	}
	if v.Selected {
		v.Checkmark = CheckmarkIcon
	}
	if v.Hovered && !v.Selected {
		v.Tooltip = &Tooltip{Label: m.Label, ID: m.ID}
	}
	return v
}

// Build returns the view of every marker, in the order given.
func Build(markers []core.Marker, st State) []MarkerView {
	out := make([]MarkerView, 0, len(markers))
	for _, m := range markers {
		out = append(out, View(m, st))
	}
	return out
}

// SnapshotState adapts a Snapshot to State so views can be built from a
// consistent copy instead of the live store.
type SnapshotState struct {
	selected map[core.MarkerID]struct{}
	hovered  core.MarkerID
}

// FromSnapshot indexes s for O(1) lookups.
func FromSnapshot(s core.Snapshot) SnapshotState {
	sel := make(map[core.MarkerID]struct{}, len(s.Selected))
	for _, id := range s.Selected {
		sel[id] = struct{}{}
	}
	return SnapshotState{selected: sel, hovered: s.Hovered}
}

func (s SnapshotState) IsSelected(id core.MarkerID) bool {
	_, ok := s.selected[id]
	return ok
}

func (s SnapshotState) IsHovered(id core.MarkerID) bool {
	return id != "" && s.hovered == id
}
