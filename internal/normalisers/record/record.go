// Package record provides typed field access over raw collected records,
// shared by the source adapters.
package record

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
)

// timeLayouts are the accepted source time formats, tried in order.
// Layouts without a zone are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// String returns a scalar field as trimmed text. Numbers are formatted
// without exponent so numeric IDs survive. ok is false when the field is
// absent, null or blank.
func String(fields map[string]any, key string) (s string, ok bool, err error) {
	v, present := fields[key]
	if !present || v == nil {
		return "", false, nil
	}
	switch t := v.(type) {
	case string:
		s = strings.TrimSpace(t)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return "", false, fmt.Errorf("field %s: %w: not a finite number", key, domain.ErrInvalidInput)
		}
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(t)
	default:
		return "", false, fmt.Errorf("field %s: %w: expected text, got %T", key, domain.ErrInvalidInput, v)
	}
	return s, s != "", nil
}

// Required returns a non-blank scalar field or an error wrapping
// domain.ErrMissingField.
func Required(fields map[string]any, key string) (string, error) {
	s, ok, err := String(fields, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrMissingField, key)
	}
	return s, nil
}

// Optional returns a scalar field or "" when absent. Type errors are
// returned.
func Optional(fields map[string]any, key string) (string, error) {
	s, _, err := String(fields, key)
	return s, err
}

// FirstOf returns the first non-blank scalar among keys.
func FirstOf(fields map[string]any, keys ...string) (value, key string, err error) {
	for _, k := range keys {
		s, ok, err := String(fields, k)
		if err != nil {
			return "", "", err
		}
		if ok {
			return s, k, nil
		}
	}
	return "", "", fmt.Errorf("%w: one of %s", domain.ErrMissingField, strings.Join(keys, ", "))
}

// ParseTime parses a source timestamp in any accepted layout.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognised time %q", domain.ErrInvalidInput, s)
}

// Time returns a required timestamp field.
func Time(fields map[string]any, key string) (time.Time, error) {
	s, err := Required(fields, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := ParseTime(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("field %s: %w", key, err)
	}
	return t, nil
}

// StringList returns a list field. A single string is treated as a
// one-element list. Blank entries are dropped; order is kept.
func StringList(fields map[string]any, key string) ([]string, error) {
	v, present := fields[key]
	if !present || v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}, nil
		}
		return nil, nil
	case []any:
		out := make([]string, 0, len(t))
		for i, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("field %s[%d]: %w: expected text, got %T", key, i, domain.ErrInvalidInput, item)
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("field %s: %w: expected list, got %T", key, domain.ErrInvalidInput, v)
	}
}

// Float returns a numeric field. Numeric strings are accepted.
func Float(fields map[string]any, key string) (f float64, ok bool, err error) {
	v, present := fields[key]
	if !present || v == nil {
		return 0, false, nil
	}
	switch t := v.(type) {
	case float64:
		return t, true, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false, fmt.Errorf("field %s: %w: %q is not a number", key, domain.ErrInvalidInput, t)
		}
		return f, true, nil
	default:
		return 0, false, fmt.Errorf("field %s: %w: expected number, got %T", key, domain.ErrInvalidInput, v)
	}
}

// Location returns the point from lat/lon fields, or nil when either is
// absent.
func Location(fields map[string]any) (*domain.GeoPoint, error) {
	lat, okLat, err := Float(fields, "lat")
	if err != nil {
		return nil, err
	}
	lon, okLon, err := Float(fields, "lon")
	if err != nil {
		return nil, err
	}
	if !okLat || !okLon {
		return nil, nil
	}
	p := domain.GeoPoint{Lat: lat, Lon: lon}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("field lat/lon: %w", err)
	}
	return &p, nil
}

// Documents returns attachments from a list of {url,title,kind} objects
// or bare URL strings. Entries without a URL are dropped.
func Documents(fields map[string]any, key string) ([]domain.Document, error) {
	v, present := fields[key]
	if !present || v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("field %s: %w: expected list, got %T", key, domain.ErrInvalidInput, v)
	}
	var out []domain.Document
	for i, item := range items {
		switch t := item.(type) {
		case string:
			if u := strings.TrimSpace(t); u != "" {
				out = append(out, domain.Document{URL: u})
			}
		case map[string]any:
			u, err := Optional(t, "url")
			if err != nil {
				return nil, fmt.Errorf("field %s[%d]: %w", key, i, err)
			}
			if u == "" {
				continue
			}
			title, err := Optional(t, "title")
			if err != nil {
				return nil, fmt.Errorf("field %s[%d]: %w", key, i, err)
			}
			kind, err := Optional(t, "kind")
			if err != nil {
				return nil, fmt.Errorf("field %s[%d]: %w", key, i, err)
			}
			out = append(out, domain.Document{URL: u, Title: title, Kind: strings.ToLower(kind)})
		default:
			return nil, fmt.Errorf("field %s[%d]: %w: unexpected %T", key, i, domain.ErrInvalidInput, item)
		}
	}
	return out, nil
}

// NaturalKey builds "<source id>:<kind>:<external id>".
func NaturalKey(sourceID, kind, externalID string) string {
	return sourceID + ":" + kind + ":" + strings.TrimSpace(externalID)
}

// orgMarkers identify organisation names among free-text party names.
var orgMarkers = []string{
	"llc", "inc", "corp", "corporation", "co", "company", "ltd", "lp", "llp",
	"trust", "association", "authority", "board", "city", "county", "commission",
	"council", "department", "district", "church", "bank", "partners", "group",
	"holdings", "properties", "development", "builders", "construction",
}

// ClassifyName guesses whether a party name is a person or organisation.
func ClassifyName(name string) domain.EntityKind {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '&'
	})
	for _, w := range words {
		for _, m := range orgMarkers {
			if w == m {
				return domain.EntityOrganization
			}
		}
	}
	return domain.EntityPerson
}

// AppendEntity adds an entity unless its name is blank.
func AppendEntity(entities []domain.Entity, name string, kind domain.EntityKind, role string) []domain.Entity {
	name = strings.TrimSpace(name)
	if name == "" {
		return entities
	}
	return append(entities, domain.Entity{Name: name, Kind: kind, Role: role})
}

// AppendDocument adds a document unless its URL is blank.
func AppendDocument(docs []domain.Document, url, title, kind string) []domain.Document {
	url = strings.TrimSpace(url)
	if url == "" {
		return docs
	}
	return append(docs, domain.Document{URL: url, Title: title, Kind: kind})
}

// Finish attaches the raw payload and seals the event.
func Finish(e *domain.CivicEvent, rec *domain.RawRecord) error {
	payload, err := rec.Payload()
	if err != nil {
		return fmt.Errorf("%w: payload: %v", domain.ErrInvalidInput, err)
	}
	e.RawData = payload
	e.Seal()
	return nil
}
