package persist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"unicode/utf8"

	"github.com/pokemap/maptracker/pkg/core"
)

// ErrImportParse marks a save document that could not be understood.
var ErrImportParse = errors.New("invalid save document")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// EncodeDocument serializes ids as a SaveDocument. Ids are sorted so equal
// sets always produce identical bytes; an empty set encodes as [].
func EncodeDocument(ids []core.MarkerID) ([]byte, error) {
	sorted := make([]core.MarkerID, len(ids))
	copy(sorted, ids)
	slices.Sort(sorted)

	data, err := json.Marshal(core.SaveDocument{SelectedMarkers: sorted})
	if err != nil {
		return nil, fmt.Errorf("encode save document: %w", err)
	}
	return data, nil
}

// DecodeDocument parses a SaveDocument and returns selectedMarkers in
// document order, duplicates included. A missing or null selectedMarkers
// field yields an empty slice. When allowBareArray is set, a top-level JSON
// array is read as the list of ids itself.
func DecodeDocument(data []byte, allowBareArray bool) ([]core.MarkerID, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: not UTF-8 text", ErrImportParse)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: not JSON", ErrImportParse)
	}

	trimmed := bytes.TrimSpace(data)
	switch trimmed[0] {
	case '{':
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrImportParse, err)
		}
		field, ok := doc["selectedMarkers"]
		if !ok || isNull(field) {
			return []core.MarkerID{}, nil
		}
		return decodeIDs(field)
	case '[':
		if allowBareArray {
			return decodeIDs(trimmed)
		}
		return nil, fmt.Errorf("%w: expected an object, got an array", ErrImportParse)
	default:
		return nil, fmt.Errorf("%w: expected an object", ErrImportParse)
	}
}

func decodeIDs(raw json.RawMessage) ([]core.MarkerID, error) {
	if len(raw) == 0 || raw[0] != '[' {
		return nil, fmt.Errorf("%w: selectedMarkers is not an array", ErrImportParse)
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("%w: selectedMarkers: %v", ErrImportParse, err)
	}

	ids := make([]core.MarkerID, 0, len(elems))
	for i, elem := range elems {
		id, err := decodeID(elem)
		if err != nil {
			return nil, fmt.Errorf("%w: selectedMarkers[%d]: %v", ErrImportParse, i, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// decodeID accepts strings and integers; integers become their decimal form.
func decodeID(raw json.RawMessage) (core.MarkerID, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	switch t := v.(type) {
	case string:
		return core.MarkerID(t), nil
	case json.Number:
		n, err := strconv.ParseInt(t.String(), 10, 64)
		if err != nil {
			return "", fmt.Errorf("id %s is not an integer", t)
		}
		return core.MarkerID(strconv.FormatInt(n, 10)), nil
	default:
		return "", fmt.Errorf("id must be a string or integer, got %s", raw)
	}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// dedup returns ids with later duplicates removed, preserving first-seen order.
func dedup(ids []core.MarkerID) []core.MarkerID {
	seen := make(map[core.MarkerID]struct{}, len(ids))
	out := make([]core.MarkerID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
