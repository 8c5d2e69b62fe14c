package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
)

// EventType classifies a civic event. The set is closed.
type EventType string

const (
	// EventMeeting is a scheduled meeting of a public body.
	EventMeeting EventType = "meeting"

	// EventPermitApplication is a permit that has been applied for.
	EventPermitApplication EventType = "permit_application"

	// EventPermitIssued is a permit that has been granted.
	EventPermitIssued EventType = "permit_issued"

	// EventPublicNotice is a published legal or public notice.
	EventPublicNotice EventType = "public_notice"
)

// EventTypes returns all valid event types in a stable order.
func EventTypes() []EventType {
	return []EventType{EventMeeting, EventPermitApplication, EventPermitIssued, EventPublicNotice}
}

// IsValid returns true if the event type is recognised.
func (t EventType) IsValid() bool {
	switch t {
	case EventMeeting, EventPermitApplication, EventPermitIssued, EventPublicNotice:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (t EventType) String() string {
	return string(t)
}

// ParseEventType converts a string to an EventType.
func ParseEventType(s string) (EventType, error) {
	t := EventType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: event type %q", ErrInvalidInput, s)
	}
	return t, nil
}

// EntityKind classifies an entity mentioned by an event.
type EntityKind string

const (
	// EntityPerson is a natural person.
	EntityPerson EntityKind = "person"

	// EntityOrganization is a company, agency or public body.
	EntityOrganization EntityKind = "organization"

	// EntityAddress is a street address or parcel.
	EntityAddress EntityKind = "address"
)

// IsValid returns true if the entity kind is recognised.
func (k EntityKind) IsValid() bool {
	switch k {
	case EntityPerson, EntityOrganization, EntityAddress:
		return true
	default:
		return false
	}
}

// Entity is a person, organisation or address referenced by an event.
type Entity struct {
	Name string     `json:"name"`
	Kind EntityKind `json:"kind"`
	// Role describes the entity's part in the event (e.g. "applicant", "venue").
	Role string `json:"role,omitempty"`
}

// Document is a file or page attached to an event.
type Document struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	// Kind is a free-form document class such as "agenda" or "minutes".
	Kind string `json:"kind,omitempty"`
}

// CivicEvent is the canonical representation of one piece of
// government activity after normalisation.
type CivicEvent struct {
	// ID is assigned by the event store on first observation of NaturalKey
	// and never changes afterwards.
	ID string

	// NaturalKey identifies the underlying record across collections.
	// It is derived from source-stable fields only.
	NaturalKey string

	// Type is the event classification.
	Type EventType

	// SourceID links to the Source that produced this event.
	SourceID string

	// Timestamp is the source-reported time of the activity.
	Timestamp time.Time

	// Title is the human-readable headline.
	Title string

	// Description is optional free text.
	Description string

	// Location is the optional geographic point of the activity.
	Location *GeoPoint

	// Region is the jurisdiction or area the event belongs to.
	Region string

	// Entities are the people, organisations and addresses involved, in source order.
	Entities []Entity

	// Documents are attachments in source order.
	Documents []Document

	// Tags drive rule matching and filtering. Always sorted and unique.
	Tags []string

	// ContentHash is the digest of the content fields. See ComputeContentHash.
	ContentHash string

	// RawData is the original record payload retained for audit.
	RawData json.RawMessage

	// FirstSeenAt is when the natural key was first stored.
	FirstSeenAt time.Time

	// UpdatedAt is when the stored content last changed.
	UpdatedAt time.Time

	// Revision starts at 1 and increments on every content change.
	Revision int

	// EvaluatedHash is the content hash whose rule evaluation and alerts
	// were fully recorded. While it differs from ContentHash the event is
	// re-evaluated on the next save, even when its content is unchanged.
	EvaluatedHash string
}

// HasTag reports whether the event carries the given tag.
func (e *CivicEvent) HasTag(tag string) bool {
	tag = NormaliseTag(tag)
	i := sort.SearchStrings(e.Tags, tag)
	return i < len(e.Tags) && e.Tags[i] == tag
}

// SetTags replaces the tag set, normalising, de-duplicating and sorting it.
func (e *CivicEvent) SetTags(tags []string) {
	e.Tags = NormaliseTags(tags)
}

// NormaliseTag lower-cases a tag and trims surrounding space.
func NormaliseTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// NormaliseTags returns the sorted, de-duplicated, non-empty tag set.
func NormaliseTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = NormaliseTag(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

// IsUpcoming reports whether the event happens after now.
func (e *CivicEvent) IsUpcoming(now time.Time) bool {
	return e.Timestamp.After(now)
}

// SaveOutcome is the classification of a store save.
type SaveOutcome string

const (
	// SaveNew means the natural key had not been seen before.
	SaveNew SaveOutcome = "NEW"

	// SaveUpdated means the natural key existed with different content.
	SaveUpdated SaveOutcome = "UPDATED"

	// SaveUnchanged means the natural key existed with identical content.
	SaveUnchanged SaveOutcome = "UNCHANGED"
)

// Changed reports whether the save wrote new content.
func (o SaveOutcome) Changed() bool {
	return o == SaveNew || o == SaveUpdated
}

// EventQuery filters events in the store. Zero values mean "no filter".
type EventQuery struct {
	// SourceID restricts results to one source.
	SourceID string

	// Types restricts results to any of the given types.
	Types []EventType

	// Tags requires every listed tag to be present.
	Tags []string

	// Entity matches any entity whose name contains this text (case-insensitive).
	Entity string

	// Region matches the event region (case-insensitive).
	Region string

	// From and To bound the event timestamp (inclusive From, exclusive To).
	From time.Time
	To   time.Time

	// FirstSeenSince keeps events first stored at or after this time.
	FirstSeenSince time.Time

	// UpdatedSince keeps events whose content changed at or after this time.
	UpdatedSince time.Time

	// Limit caps the number of results. Zero means unlimited.
	Limit int
}

// SortEvents orders events by timestamp descending, then by ID.
func SortEvents(events []CivicEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.After(events[j].Timestamp)
		}
		return events[i].ID < events[j].ID
	})
}

// Matches reports whether the event satisfies every filter in the query.
// Limit is not applied.
func (q *EventQuery) Matches(e *CivicEvent) bool {
	if q.SourceID != "" && e.SourceID != q.SourceID {
		return false
	}
	if len(q.Types) > 0 && !slices.Contains(q.Types, e.Type) {
		return false
	}
	for _, tag := range q.Tags {
		if !e.HasTag(tag) {
			return false
		}
	}
	if q.Entity != "" && !hasEntityLike(e, q.Entity) {
		return false
	}
	if q.Region != "" && !strings.EqualFold(strings.TrimSpace(e.Region), strings.TrimSpace(q.Region)) {
		return false
	}
	if !q.From.IsZero() && e.Timestamp.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && !e.Timestamp.Before(q.To) {
		return false
	}
	if !q.FirstSeenSince.IsZero() && e.FirstSeenAt.Before(q.FirstSeenSince) {
		return false
	}
	if !q.UpdatedSince.IsZero() && e.UpdatedAt.Before(q.UpdatedSince) {
		return false
	}
	return true
}

func hasEntityLike(e *CivicEvent, name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, ent := range e.Entities {
		if strings.Contains(strings.ToLower(ent.Name), name) {
			return true
		}
	}
	return false
}
