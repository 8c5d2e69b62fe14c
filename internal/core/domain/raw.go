package domain

import "encoding/json"

// RawRecord is one semi-structured record produced by a collector.
// It is the collector's output before normalisation.
type RawRecord struct {
	// SourceID links to the Source that produced this record.
	SourceID string

	// Position is the record's index in collection order.
	Position int

	// Fields is the decoded record payload. Values follow encoding/json
	// conventions: string, float64, bool, nil, []any and map[string]any.
	Fields map[string]any
}

// Payload returns the record fields as canonical JSON.
// Map keys are sorted by encoding/json, so equal records encode identically.
func (r *RawRecord) Payload() (json.RawMessage, error) {
	if r.Fields == nil {
		return json.RawMessage("{}"), nil
	}
	data, err := json.Marshal(r.Fields)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}
