package collectors

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
)

// DecodeRecords parses a JSON document into raw records.
//
// The document is either an array of objects, or an object. For an object,
// itemsKey names the array holding the records; with no itemsKey the object
// is a single record. Array items that are not objects become records with
// no fields so the adapter reports them individually. Positions start at
// offset.
func DecodeRecords(sourceID string, data []byte, itemsKey string, offset int) ([]domain.RawRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode json: %v", domain.ErrInvalidInput, err)
	}

	var items []any
	switch v := doc.(type) {
	case []any:
		items = v
	case map[string]any:
		if itemsKey == "" {
			items = []any{v}
			break
		}
		raw, ok := v[itemsKey]
		if !ok {
			return nil, fmt.Errorf("%w: key %q not found", domain.ErrInvalidInput, itemsKey)
		}
		if raw == nil {
			return nil, nil
		}
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: key %q is not an array", domain.ErrInvalidInput, itemsKey)
		}
		items = list
	default:
		return nil, fmt.Errorf("%w: document must be an array or object", domain.ErrInvalidInput)
	}

	records := make([]domain.RawRecord, 0, len(items))
	for i, item := range items {
		fields, _ := item.(map[string]any)
		records = append(records, domain.RawRecord{
			SourceID: sourceID,
			Position: offset + i,
			Fields:   normaliseNumbers(fields),
		})
	}
	return records, nil
}

// maxExactInt is the largest integer float64 represents exactly.
const maxExactInt = 1 << 53

// normaliseNumbers converts json.Number values to float64 so fields follow
// encoding/json conventions. Integers beyond float64 precision stay strings.
func normaliseNumbers(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	for k, v := range m {
		m[k] = normaliseValue(v)
	}
	return m
}

func normaliseValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		s := t.String()
		f, err := t.Float64()
		if err != nil {
			return s
		}
		if !strings.ContainsAny(s, ".eE") {
			i, err := t.Int64()
			if err != nil || i > maxExactInt || i < -maxExactInt {
				return s
			}
		}
		return f
	case map[string]any:
		return normaliseNumbers(t)
	case []any:
		for i := range t {
			t[i] = normaliseValue(t[i])
		}
		return t
	default:
		return v
	}
}
