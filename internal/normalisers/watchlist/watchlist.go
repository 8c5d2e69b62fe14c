// Package watchlist assigns tags to events by matching configured terms.
//
// Matching is case-insensitive and whole-word: "zoning" does not match
// "rezoning". Punctuation separates words, so "Tara April's" matches
// "Tara April".
package watchlist

import (
	"strings"
	"unicode"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
)

type term struct {
	padded string
	tag    string
	kind   domain.WatchTermKind
}

// Tagger matches a fixed watchlist. It is safe for concurrent use.
type Tagger struct {
	terms []term
}

// New compiles a watchlist. Blank terms are ignored.
func New(wl domain.Watchlist) *Tagger {
	t := &Tagger{}
	for _, wt := range wl.Terms {
		norm := normalise(wt.Term)
		if norm == "" {
			continue
		}
		t.terms = append(t.terms, term{padded: " " + norm + " ", tag: wt.TagName(), kind: wt.Kind})
	}
	return t
}

// Len returns the number of active terms.
func (t *Tagger) Len() int {
	if t == nil {
		return 0
	}
	return len(t.terms)
}

// Tag returns the sorted tags for an event. Every term is matched against
// the title, description and entity names; place terms also match the
// region.
func (t *Tagger) Tag(e *domain.CivicEvent) []string {
	if t.Len() == 0 {
		return nil
	}

	parts := []string{e.Title, e.Description}
	for _, ent := range e.Entities {
		parts = append(parts, ent.Name)
	}
	text := " " + normalise(strings.Join(parts, " | ")) + " "
	region := " " + normalise(e.Region) + " "

	var tags []string
	for _, tm := range t.terms {
		if strings.Contains(text, tm.padded) ||
			(tm.kind == domain.WatchPlace && strings.Contains(region, tm.padded)) {
			tags = append(tags, tm.tag)
		}
	}
	return domain.NormaliseTags(tags)
}

// normalise lower-cases s and collapses every run of non-alphanumeric
// characters into one space.
func normalise(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	space := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
			space = false
		default:
			if !space {
				sb.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(sb.String())
}
