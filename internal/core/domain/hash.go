package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// hashContent is the canonical form hashed by ComputeContentHash.
// Field order is fixed by the struct definition.
type hashContent struct {
	Type        EventType  `json:"type"`
	Timestamp   string     `json:"timestamp"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Location    *GeoPoint  `json:"location"`
	Region      string     `json:"region"`
	Tags        []string   `json:"tags"`
	Entities    []Entity   `json:"entities"`
	Documents   []Document `json:"documents"`
}

// ComputeContentHash returns the hex SHA-256 digest of the event's content
// fields. ID, NaturalKey, SourceID, RawData and ingestion metadata are not
// part of the digest, so re-observing unchanged content yields the same value.
func ComputeContentHash(e *CivicEvent) string {
	c := hashContent{
		Type:        e.Type,
		Title:       e.Title,
		Description: e.Description,
		Location:    e.Location,
		Region:      e.Region,
		Tags:        NormaliseTags(e.Tags),
		Entities:    e.Entities,
		Documents:   e.Documents,
	}
	if !e.Timestamp.IsZero() {
		c.Timestamp = e.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	if c.Entities == nil {
		c.Entities = []Entity{}
	}
	if c.Documents == nil {
		c.Documents = []Document{}
	}

	// Marshalling a struct of strings, slices and float pointers cannot fail.
	data, _ := json.Marshal(c) //nolint:errchkjson // see above
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Seal normalises the tag set and stamps the content hash.
// Adapters call it as the last step of building an event.
func (e *CivicEvent) Seal() {
	e.Tags = NormaliseTags(e.Tags)
	e.ContentHash = ComputeContentHash(e)
}
