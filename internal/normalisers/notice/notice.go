// Package notice adapts public and legal notice feeds.
//
// Record fields:
//
//	noticeId     identifier; url is used when absent
//	url          identifier fallback and notice link
//	title        required
//	publishedAt  required
//	body, category, address, lat, lon, region, documents  optional
//	parties      optional, list of named parties
package notice

import (
	"context"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driven"
	"github.com/custodia-labs/civicwatch/internal/normalisers/record"
	"github.com/custodia-labs/civicwatch/internal/normalisers/watchlist"
)

const keyKind = "notice"

// Ensure Adapter implements the interface.
var _ driven.Adapter = (*Adapter)(nil)

// Adapter normalises notice records into public_notice events.
type Adapter struct {
	tagger *watchlist.Tagger
}

// New creates a notice adapter tagging with the given watchlist.
func New(tagger *watchlist.Tagger) *Adapter {
	return &Adapter{tagger: tagger}
}

// SourceType returns domain.SourceNotices.
func (a *Adapter) SourceType() domain.SourceType {
	return domain.SourceNotices
}

// Normalise converts notice records, skipping malformed ones.
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

	id, _, err := record.FirstOf(f, "noticeId", "url")
	if err != nil {
		return nil, err
	}
	link, err := record.Optional(f, "url")
	if err != nil {
		return nil, err
	}
	title, err := record.Required(f, "title")
	if err != nil {
		return nil, err
	}
	ts, err := record.Time(f, "publishedAt")
	if err != nil {
		return nil, err
	}
	body, err := record.Optional(f, "body")
	if err != nil {
		return nil, err
	}
	category, err := record.Optional(f, "category")
	if err != nil {
		return nil, err
	}
	address, err := record.Optional(f, "address")
	if err != nil {
		return nil, err
	}
	region, err := record.Optional(f, "region")
	if err != nil {
		return nil, err
	}
	parties, err := record.StringList(f, "parties")
	if err != nil {
		return nil, err
	}
	loc, err := record.Location(f)
	if err != nil {
		return nil, err
	}
	docs, err := record.Documents(f, "documents")
	if err != nil {
		return nil, err
	}
	docs = record.AppendDocument(docs, link, title, "notice")
	if region == "" {
		region = source.Region
	}

	var entities []domain.Entity
	for _, p := range parties {
		entities = record.AppendEntity(entities, p, record.ClassifyName(p), "party")
	}
	entities = record.AppendEntity(entities, address, domain.EntityAddress, "site")

	desc := body
	if category != "" {
		desc = "Category: " + category
		if body != "" {
			desc += "\n\n" + body
		}
	}

	e := &domain.CivicEvent{
		NaturalKey:  record.NaturalKey(source.ID, keyKind, id),
		Type:        domain.EventPublicNotice,
		SourceID:    source.ID,
		Timestamp:   ts,
		Title:       title,
		Description: desc,
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
