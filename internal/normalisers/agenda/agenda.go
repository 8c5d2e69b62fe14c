// Package agenda adapts meeting agenda feeds.
//
// Record fields:
//
//	externalId   required, stable meeting identifier
//	title        required
//	date         required, meeting start
//	body         optional, the public body holding the meeting
//	description  optional
//	agendaItems  optional, list of item titles
//	location     optional, venue address
//	lat, lon     optional
//	region       optional, defaults to the source region
//	documents    optional, [{url, title, kind}]
//	agendaUrl, minutesUrl, videoUrl  optional
package agenda

import (
	"context"
	"strings"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driven"
	"github.com/custodia-labs/civicwatch/internal/normalisers/record"
	"github.com/custodia-labs/civicwatch/internal/normalisers/watchlist"
)

// keyKind is the natural key segment for meetings.
const keyKind = "meeting"

// Ensure Adapter implements the interface.
var _ driven.Adapter = (*Adapter)(nil)

// Adapter normalises agenda records into meeting events.
type Adapter struct {
	tagger *watchlist.Tagger
}

// New creates an agenda adapter tagging with the given watchlist.
func New(tagger *watchlist.Tagger) *Adapter {
	return &Adapter{tagger: tagger}
}

// SourceType returns domain.SourceAgenda.
func (a *Adapter) SourceType() domain.SourceType {
	return domain.SourceAgenda
}

// Normalise converts agenda records, skipping malformed ones.
func (a *Adapter) Normalise(_ context.Context, source *domain.Source, records []domain.RawRecord) *driven.NormaliseResult {
	res := &driven.NormaliseResult{}
	for i := range records {
		e, err := a.normaliseOne(source, &records[i])
		if err != nil {
			res.Errors = append(res.Errors, &domain.AdapterError{SourceID: source.ID, Position: i, Err: err})
			continue
		}
		res.Events = append(res.Events, *e)
	}
	return res
}

func (a *Adapter) normaliseOne(source *domain.Source, rec *domain.RawRecord) (*domain.CivicEvent, error) {
	f := rec.Fields

	id, err := record.Required(f, "externalId")
	if err != nil {
		return nil, err
	}
	title, err := record.Required(f, "title")
	if err != nil {
		return nil, err
	}
	ts, err := record.Time(f, "date")
	if err != nil {
		return nil, err
	}
	body, err := record.Optional(f, "body")
	if err != nil {
		return nil, err
	}
	desc, err := record.Optional(f, "description")
	if err != nil {
		return nil, err
	}
	items, err := record.StringList(f, "agendaItems")
	if err != nil {
		return nil, err
	}
	venue, err := record.Optional(f, "location")
	if err != nil {
		return nil, err
	}
	loc, err := record.Location(f)
	if err != nil {
		return nil, err
	}
	region, err := record.Optional(f, "region")
	if err != nil {
		return nil, err
	}
	docs, err := record.Documents(f, "documents")
	if err != nil {
		return nil, err
	}
	for _, link := range []struct{ key, kind string }{
		{"agendaUrl", "agenda"}, {"minutesUrl", "minutes"}, {"videoUrl", "video"},
	} {
		u, err := record.Optional(f, link.key)
		if err != nil {
			return nil, err
		}
		docs = record.AppendDocument(docs, u, "", link.kind)
	}

	if region == "" {
		region = source.Region
	}

	var entities []domain.Entity
	entities = record.AppendEntity(entities, body, domain.EntityOrganization, "body")
	entities = record.AppendEntity(entities, venue, domain.EntityAddress, "venue")

	e := &domain.CivicEvent{
		NaturalKey:  record.NaturalKey(source.ID, keyKind, id),
		Type:        domain.EventMeeting,
		SourceID:    source.ID,
		Timestamp:   ts,
		Title:       title,
		Description: describe(desc, items),
		Location:    loc,
		Region:      region,
		Entities:    entities,
		Documents:   docs,
	}
	e.Tags = a.tagger.Tag(e)
	if err := record.Finish(e, rec); err != nil {
		return nil, err
	}
	return e, nil
}

// describe joins the free-text description with the agenda item list so
// item changes register as content changes.
func describe(desc string, items []string) string {
	if len(items) == 0 {
		return desc
	}
	var sb strings.Builder
	if desc != "" {
		sb.WriteString(desc)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Agenda:")
	for _, item := range items {
		sb.WriteString("\n- ")
		sb.WriteString(item)
	}
	return sb.String()
}
