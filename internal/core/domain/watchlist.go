package domain

import "strings"

// WatchTermKind says where a watch term is looked for.
type WatchTermKind string

const (
	// WatchKeyword is matched against the event's text.
	WatchKeyword WatchTermKind = "keyword"

	// WatchEntity is matched against entity names and text.
	WatchEntity WatchTermKind = "entity"

	// WatchPlace is matched against addresses, region and text.
	WatchPlace WatchTermKind = "place"
)

// WatchTerm is one entry of the tagging watchlist.
type WatchTerm struct {
	// Term is the phrase to look for (case-insensitive, whole words).
	Term string

	// Tag is the tag assigned on match. Empty derives it from Term.
	Tag string

	// Kind says where Term is looked for.
	Kind WatchTermKind
}

// TagName returns the tag assigned when the term matches.
func (w WatchTerm) TagName() string {
	if t := NormaliseTag(w.Tag); t != "" {
		return t
	}
	return strings.Join(strings.Fields(strings.ToLower(w.Term)), "-")
}

// Watchlist is the declarative tagging configuration shared by adapters.
type Watchlist struct {
	Terms []WatchTerm
}

// NewWatchlist builds a watchlist from plain keyword, entity and place lists.
func NewWatchlist(keywords, entities, places []string) Watchlist {
	var wl Watchlist
	for _, k := range keywords {
		wl.Terms = append(wl.Terms, WatchTerm{Term: k, Kind: WatchKeyword})
	}
	for _, e := range entities {
		wl.Terms = append(wl.Terms, WatchTerm{Term: e, Kind: WatchEntity})
	}
	for _, p := range places {
		wl.Terms = append(wl.Terms, WatchTerm{Term: p, Kind: WatchPlace})
	}
	return wl
}
