// Package permit adapts building and land-use permit feeds.
//
// Record fields:
//
//	permitNumber  required
//	status        required; issued, approved, finaled and active mean granted
//	issuedDate    required when appliedDate is absent
//	appliedDate   required when issuedDate is absent
//	description, workType, address, applicant, contractor, owner  optional
//	lat, lon, region, documents  optional
package permit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driven"
	"github.com/custodia-labs/civicwatch/internal/normalisers/record"
	"github.com/custodia-labs/civicwatch/internal/normalisers/watchlist"
)

// keyKind is the natural key segment for permits. It does not depend on
// status, so an application and its later issuance share one event.
const keyKind = "permit"

// grantedStatuses mark a permit as issued.
var grantedStatuses = map[string]bool{
	"issued":   true,
	"approved": true,
	"finaled":  true,
	"active":   true,
}

// Ensure Adapter implements the interface.
var _ driven.Adapter = (*Adapter)(nil)

// Adapter normalises permit records.
type Adapter struct {
	tagger *watchlist.Tagger
}

// New creates a permit adapter tagging with the given watchlist.
func New(tagger *watchlist.Tagger) *Adapter {
	return &Adapter{tagger: tagger}
}

// SourceType returns domain.SourcePermits.
func (a *Adapter) SourceType() domain.SourceType {
	return domain.SourcePermits
}

// Normalise converts permit records, skipping malformed ones.
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

//nolint:gocyclo // flat field extraction
func (a *Adapter) normaliseOne(source *domain.Source, rec *domain.RawRecord) (*domain.CivicEvent, error) {
	f := rec.Fields

	number, err := record.Required(f, "permitNumber")
	if err != nil {
		return nil, err
	}
	status, err := record.Required(f, "status")
	if err != nil {
		return nil, err
	}
	issued, err := optionalTime(f, "issuedDate")
	if err != nil {
		return nil, err
	}
	applied, err := optionalTime(f, "appliedDate")
	if err != nil {
		return nil, err
	}
	if issued.IsZero() && applied.IsZero() {
		return nil, fmt.Errorf("%w: one of issuedDate, appliedDate", domain.ErrMissingField)
	}

	var text [7]string
	for i, key := range []string{"description", "workType", "address", "applicant", "contractor", "owner", "region"} {
		if text[i], err = record.Optional(f, key); err != nil {
			return nil, err
		}
	}
	desc, workType, address, applicant, contractor, owner, region :=
		text[0], text[1], text[2], text[3], text[4], text[5], text[6]

	loc, err := record.Location(f)
	if err != nil {
		return nil, err
	}
	docs, err := record.Documents(f, "documents")
	if err != nil {
		return nil, err
	}
	if region == "" {
		region = source.Region
	}

	eventType := domain.EventPermitApplication
	ts := applied
	if grantedStatuses[strings.ToLower(status)] {
		eventType = domain.EventPermitIssued
		ts = issued
	}
	if ts.IsZero() {
		ts = firstNonZero(issued, applied)
	}

	var entities []domain.Entity
	entities = record.AppendEntity(entities, applicant, record.ClassifyName(applicant), "applicant")
	entities = record.AppendEntity(entities, contractor, record.ClassifyName(contractor), "contractor")
	entities = record.AppendEntity(entities, owner, record.ClassifyName(owner), "owner")
	entities = record.AppendEntity(entities, address, domain.EntityAddress, "site")

	e := &domain.CivicEvent{
		NaturalKey:  record.NaturalKey(source.ID, keyKind, number),
		Type:        eventType,
		SourceID:    source.ID,
		Timestamp:   ts,
		Title:       title(number, workType, address),
		Description: describe(status, desc),
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

func optionalTime(f map[string]any, key string) (time.Time, error) {
	s, err := record.Optional(f, key)
	if err != nil || s == "" {
		return time.Time{}, err
	}
	t, err := record.ParseTime(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("field %s: %w", key, err)
	}
	return t, nil
}

func firstNonZero(ts ...time.Time) time.Time {
	for _, t := range ts {
		if !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}

func title(number, workType, address string) string {
	t := "Permit " + number
	if workType != "" {
		t += ": " + workType
	}
	if address != "" {
		t += " at " + address
	}
	return t
}

func describe(status, desc string) string {
	s := "Status: " + strings.ToLower(status)
	if desc != "" {
		s += "\n\n" + desc
	}
	return s
}
