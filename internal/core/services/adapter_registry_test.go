package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
)

// TestAdapterRegistry_GetAndTypes tests lookup by source type
func TestAdapterRegistry_GetAndTypes(t *testing.T) {
	agendaAdapter := &mockAdapter{sourceType: domain.SourceAgenda}
	permitAdapter := &mockAdapter{sourceType: domain.SourcePermits}
	reg := NewAdapterRegistry(permitAdapter, agendaAdapter, nil)

	got, err := reg.Get(domain.SourceAgenda)
	require.NoError(t, err)
	assert.Same(t, agendaAdapter, got)

	_, err = reg.Get(domain.SourceNotices)
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)

	assert.Equal(t, []domain.SourceType{domain.SourceAgenda, domain.SourcePermits}, reg.Types())
}

// TestAdapterRegistry_RejectsUnknownTypes tests that the registry stays closed
func TestAdapterRegistry_RejectsUnknownTypes(t *testing.T) {
	reg := NewAdapterRegistry(&mockAdapter{sourceType: "rss"})
	assert.Empty(t, reg.Types())

	_, err := reg.Get("rss")
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

// TestAdapterRegistry_CheckSources tests load-time adapter resolution
func TestAdapterRegistry_CheckSources(t *testing.T) {
	reg := NewAdapterRegistry(&mockAdapter{sourceType: domain.SourceAgenda})

	assert.NoError(t, reg.CheckSources([]domain.Source{agendaSource("a")}))

	err := reg.CheckSources([]domain.Source{agendaSource("a"), {ID: "legal", Type: domain.SourceNotices}})
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
	assert.Contains(t, err.Error(), "source legal")
}
