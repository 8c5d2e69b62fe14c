package domain

import (
	"fmt"
	"math"
	"strings"
)

// ConditionKind names a node type of the rule condition grammar.
// The set is closed; no other node types are accepted.
type ConditionKind string

const (
	// CondFieldEquals compares a scalar event field with a value.
	CondFieldEquals ConditionKind = "field_equals"

	// CondContainsTag requires a tag to be present.
	CondContainsTag ConditionKind = "contains_tag"

	// CondContainsKeyword looks for a keyword in a text field.
	CondContainsKeyword ConditionKind = "contains_keyword"

	// CondWithinRadius requires the event location within a radius of a point.
	CondWithinRadius ConditionKind = "within_radius"

	// CondEntityNameMatches matches any entity name.
	CondEntityNameMatches ConditionKind = "entity_name_matches"

	// CondAnd requires every child to match.
	CondAnd ConditionKind = "and"

	// CondOr requires at least one child to match.
	CondOr ConditionKind = "or"
)

// ConditionKinds returns every node type in the grammar.
func ConditionKinds() []ConditionKind {
	return []ConditionKind{
		CondFieldEquals, CondContainsTag, CondContainsKeyword,
		CondWithinRadius, CondEntityNameMatches, CondAnd, CondOr,
	}
}

// IsValid returns true if the kind is part of the grammar.
func (k ConditionKind) IsValid() bool {
	switch k {
	case CondFieldEquals, CondContainsTag, CondContainsKeyword,
		CondWithinRadius, CondEntityNameMatches, CondAnd, CondOr:
		return true
	default:
		return false
	}
}

// Fields addressable by field_equals.
const (
	FieldEventType   = "event_type"
	FieldSourceID    = "source_id"
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldRegion      = "region"
	FieldNaturalKey  = "natural_key"
)

// FieldText addresses title, description, entity names and document
// titles together in contains_keyword.
const FieldText = "text"

var equalityFields = map[string]bool{
	FieldEventType:   true,
	FieldSourceID:    true,
	FieldTitle:       true,
	FieldDescription: true,
	FieldRegion:      true,
	FieldNaturalKey:  true,
}

var keywordFields = map[string]bool{
	FieldTitle:       true,
	FieldDescription: true,
	FieldText:        true,
}

// Condition is one node of a rule's predicate tree.
type Condition struct {
	// Kind selects which of the fields below are meaningful.
	Kind ConditionKind

	// Field is used by field_equals and contains_keyword.
	Field string

	// Value is the comparison value for field_equals, the tag for
	// contains_tag, the keyword for contains_keyword and the name for
	// entity_name_matches.
	Value string

	// Point and Meters are used by within_radius.
	Point  GeoPoint
	Meters float64

	// Children are used by and/or.
	Children []Condition
}

// FieldEquals builds a field_equals node.
func FieldEquals(field, value string) Condition {
	return Condition{Kind: CondFieldEquals, Field: field, Value: value}
}

// ContainsTag builds a contains_tag node.
func ContainsTag(tag string) Condition {
	return Condition{Kind: CondContainsTag, Value: tag}
}

// ContainsKeyword builds a contains_keyword node.
func ContainsKeyword(field, keyword string) Condition {
	return Condition{Kind: CondContainsKeyword, Field: field, Value: keyword}
}

// WithinRadius builds a within_radius node.
func WithinRadius(point GeoPoint, meters float64) Condition {
	return Condition{Kind: CondWithinRadius, Point: point, Meters: meters}
}

// EntityNameMatches builds an entity_name_matches node.
func EntityNameMatches(name string) Condition {
	return Condition{Kind: CondEntityNameMatches, Value: name}
}

// And builds an and node.
func And(children ...Condition) Condition {
	return Condition{Kind: CondAnd, Children: children}
}

// Or builds an or node.
func Or(children ...Condition) Condition {
	return Condition{Kind: CondOr, Children: children}
}

// Validate checks the node and all descendants. path locates the node in
// error messages, e.g. "condition.and[1]".
func (c *Condition) Validate(path string) error {
	switch c.Kind {
	case CondFieldEquals:
		if !equalityFields[c.Field] {
			return fmt.Errorf("%s: field_equals: unknown field %q", path, c.Field)
		}
		if strings.TrimSpace(c.Value) == "" {
			return fmt.Errorf("%s: field_equals: value is required", path)
		}
	case CondContainsTag:
		if NormaliseTag(c.Value) == "" {
			return fmt.Errorf("%s: contains_tag: tag is required", path)
		}
	case CondContainsKeyword:
		if !keywordFields[c.Field] {
			return fmt.Errorf("%s: contains_keyword: unknown field %q", path, c.Field)
		}
		if strings.TrimSpace(c.Value) == "" {
			return fmt.Errorf("%s: contains_keyword: keyword is required", path)
		}
	case CondWithinRadius:
		if err := c.Point.Validate(); err != nil {
			return fmt.Errorf("%s: within_radius: %w", path, err)
		}
		if c.Meters <= 0 || math.IsInf(c.Meters, 0) || math.IsNaN(c.Meters) {
			return fmt.Errorf("%s: within_radius: meters must be positive", path)
		}
	case CondEntityNameMatches:
		if strings.TrimSpace(c.Value) == "" {
			return fmt.Errorf("%s: entity_name_matches: name is required", path)
		}
	case CondAnd, CondOr:
		if len(c.Children) == 0 {
			return fmt.Errorf("%s: %s: at least one child is required", path, c.Kind)
		}
		for i := range c.Children {
			if err := c.Children[i].Validate(fmt.Sprintf("%s.%s[%d]", path, c.Kind, i)); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%s: unknown condition type %q", path, c.Kind)
	}
	return nil
}

// Rule is a declarative condition plus the severity of the alert it raises.
type Rule struct {
	// ID uniquely identifies the rule within a rule set.
	ID string

	// Category groups rules for display (e.g. "land_use").
	Category string

	// Description explains the rule to humans.
	Description string

	// Condition is the predicate tree.
	Condition Condition

	// Severity is copied verbatim into every alert the rule raises.
	Severity Severity

	// Message overrides the default alert message.
	Message string

	// Enabled rules are evaluated; disabled rules are loaded but skipped.
	Enabled bool
}

// Validate checks the rule and its condition tree.
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("rule id is required")
	}
	if !r.Severity.IsValid() {
		return fmt.Errorf("rule %s: invalid severity %q", r.ID, r.Severity)
	}
	if err := r.Condition.Validate("condition"); err != nil {
		return fmt.Errorf("rule %s: %w", r.ID, err)
	}
	return nil
}
