// pkg/core/save.go
package core

const (
	// SaveFileName is the file name offered for exported selections.
	SaveFileName = "mapSave.json"

	// SaveMIMEType is the content type of an exported selection.
	SaveMIMEType = "application/json"

	// AmbientKey is the storage slot holding the current SaveDocument.
	AmbientKey = "selectedMarkers"
)

// SaveDocument is the external representation of a selection. The same shape
// is written to ambient storage and to exported files.
type SaveDocument struct {
	SelectedMarkers []MarkerID `json:"selectedMarkers"`
}

// Snapshot is a read-only view of the selection state handed to renderers.
type Snapshot struct {
	Selected []MarkerID `json:"selected"`
	Hovered  MarkerID   `json:"hovered,omitempty"`
	Version  uint64     `json:"version"`
}
