// Package streaming defines the messages exchanged with the renderer over
// the WebSocket.
package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/pokemap/maptracker/pkg/core"
)

// Server to renderer message types.
const (
	TypeSnapshot = "snapshot"
	TypeNotice   = "notice"
	TypeAck      = "ack"
)

// Renderer to server message types.
const (
	TypeHoverEnter = "hover_enter"
	TypeHoverLeave = "hover_leave"
	TypeToggle     = "toggle"
	TypeClick      = "click"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AckMessage answers every renderer message carrying a Seq.
type AckMessage struct {
	Type   string `json:"type"` // always "ack"
	For    string `json:"for"`  // the message type being acknowledged
	Seq    uint64 `json:"seq,omitempty"`
	Error  string `json:"error,omitempty"`
	Result any    `json:"result,omitempty"`
}

// SnapshotPayload is pushed after every selection or hover change.
type SnapshotPayload struct {
	core.Snapshot
}

// NoticePayload is a localized message for the user.
type NoticePayload struct {
	Level string `json:"level"` // info, warn or error
	Key   string `json:"key"`
	Text  string `json:"text"`
}

// MarkerPayload names the marker a hover_enter or toggle refers to.
type MarkerPayload struct {
	ID core.MarkerID `json:"id"`
}

// ClickPayload is a click at map coordinates.
type ClickPayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Encode wraps payload in an Envelope and marshals it.
func Encode(typ string, payload any) ([]byte, error) {
	env := Envelope{Type: typ}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", typ, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%s: %w", e.Type, err)
	}
	return nil
}
