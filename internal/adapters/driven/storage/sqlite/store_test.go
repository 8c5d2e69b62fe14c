package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/civicwatch/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/civicwatch/internal/core/domain"
)

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// setupTestStore creates a SQLite store in a temporary directory.
func setupTestStore(t *testing.T, opts ...Option) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(dir, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, dir
}

func newEvent(key, title string, tags ...string) *domain.CivicEvent {
	e := &domain.CivicEvent{
		NaturalKey:  key,
		Type:        domain.EventMeeting,
		SourceID:    "keywest",
		Timestamp:   time.Date(2026, 2, 10, 18, 0, 0, 0, time.UTC),
		Title:       title,
		Description: "Agenda:\n- Tara April rezoning",
		Location:    &domain.GeoPoint{Lat: 24.5551, Lon: -81.78},
		Region:      "Key West",
		Entities:    []domain.Entity{{Name: "Tara April", Kind: domain.EntityPerson, Role: "applicant"}},
		Documents:   []domain.Document{{URL: "https://kw.gov/a.pdf", Title: "Agenda", Kind: "agenda"}},
		Tags:        tags,
		RawData:     json.RawMessage(`{"externalId":"CC-1"}`),
	}
	e.Seal()
	return e
}

// TestNewStore_CreatesDatabase tests store creation and migration
func TestNewStore_CreatesDatabase(t *testing.T) {
	store, dir := setupTestStore(t)
	assert.Contains(t, store.Path(), dir)

	version, err := store.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	// Opening again does not re-run migrations.
	require.NoError(t, store.Close())
	again, err := NewStore(dir)
	require.NoError(t, err)
	defer again.Close()

	var count int
	require.NoError(t, again.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 2, count)
}

// TestEventStore_SaveClassification tests NEW, UNCHANGED and UPDATED
func TestEventStore_SaveClassification(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)}
	store, _ := setupTestStore(t, WithClock(clock.Now), WithIDs(func() string { return "evt-1" }))
	events := store.EventStore()
	ctx := context.Background()

	first := newEvent("keywest:meeting:CC-1", "Commission", "rezoning")
	outcome, err := events.Save(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, domain.SaveNew, outcome)
	assert.Equal(t, "evt-1", first.ID)
	assert.Equal(t, 1, first.Revision)
	firstSeen := clock.Now()

	clock.Set(firstSeen.Add(time.Hour))
	same := newEvent("keywest:meeting:CC-1", "Commission", "rezoning")
	outcome, err = events.Save(ctx, same)
	require.NoError(t, err)
	assert.Equal(t, domain.SaveUnchanged, outcome)
	assert.Equal(t, "evt-1", same.ID)
	assert.True(t, firstSeen.Equal(same.UpdatedAt))

	clock.Set(firstSeen.Add(2 * time.Hour))
	changed := newEvent("keywest:meeting:CC-1", "Commission (amended)", "rezoning", "variance")
	outcome, err = events.Save(ctx, changed)
	require.NoError(t, err)
	assert.Equal(t, domain.SaveUpdated, outcome)
	assert.Equal(t, "evt-1", changed.ID)
	assert.Equal(t, 2, changed.Revision)

	stored, err := events.Get(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "Commission (amended)", stored.Title)
	assert.Equal(t, changed.ContentHash, stored.ContentHash)
	assert.Equal(t, domain.ComputeContentHash(stored), stored.ContentHash, "hash survives the round trip")
	assert.True(t, firstSeen.Equal(stored.FirstSeenAt))
	assert.True(t, firstSeen.Add(2*time.Hour).Equal(stored.UpdatedAt))
	assert.Equal(t, []string{"rezoning", "variance"}, stored.Tags)
	assert.Equal(t, changed.Entities, stored.Entities)
	assert.Equal(t, changed.Documents, stored.Documents)
	require.NotNil(t, stored.Location)
	assert.InDelta(t, 24.5551, stored.Location.Lat, 1e-9)
	assert.JSONEq(t, `{"externalId":"CC-1"}`, string(stored.RawData))
}

// TestEventStore_RequiresNaturalKey tests key validation
func TestEventStore_RequiresNaturalKey(t *testing.T) {
	store, _ := setupTestStore(t)
	_, err := store.EventStore().Save(context.Background(), newEvent("", "No key"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// TestEventStore_NotFound tests lookups of missing events
func TestEventStore_NotFound(t *testing.T) {
	store, _ := setupTestStore(t)
	events := store.EventStore()

	_, err := events.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = events.GetByNaturalKey(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// TestEventStore_ConcurrentSameKey tests that racing saves create one event
func TestEventStore_ConcurrentSameKey(t *testing.T) {
	store, _ := setupTestStore(t)
	events := store.EventStore()

	const workers = 16
	outcomes := make([]domain.SaveOutcome, workers)
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := newEvent("keywest:meeting:race", "Race")
			outcome, err := events.Save(context.Background(), e)
			assert.NoError(t, err)
			outcomes[i] = outcome
			ids[i] = e.ID
		}(i)
	}
	wg.Wait()

	news := 0
	for i := range outcomes {
		if outcomes[i] == domain.SaveNew {
			news++
		}
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, news)

	all, err := events.Query(context.Background(), domain.EventQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// TestEventStore_Query tests filters and ordering
func TestEventStore_Query(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)}
	store, _ := setupTestStore(t, WithClock(clock.Now))
	events := store.EventStore()
	ctx := context.Background()

	base := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	for i, tc := range []struct {
		key    string
		typ    domain.EventType
		source string
		region string
		tags   []string
	}{
		{"a", domain.EventMeeting, "keywest", "Key West", []string{"rezoning"}},
		{"b", domain.EventPermitIssued, "building", "Stock Island", []string{"rezoning", "demolition"}},
		{"c", domain.EventPublicNotice, "legal", "Key West", nil},
	} {
		e := newEvent(tc.key, "Event "+tc.key, tc.tags...)
		e.Type = tc.typ
		e.SourceID = tc.source
		e.Region = tc.region
		e.Timestamp = base.Add(time.Duration(i) * time.Hour)
		if tc.key == "c" {
			e.Entities = []domain.Entity{{Name: "Keys Energy Services", Kind: domain.EntityOrganization}}
		}
		e.Seal()
		clock.Set(clock.Now().Add(time.Hour))
		_, err := events.Save(ctx, e)
		require.NoError(t, err)
	}

	keys := func(q domain.EventQuery) []string {
		t.Helper()
		got, err := events.Query(ctx, q)
		require.NoError(t, err)
		out := []string{}
		for i := range got {
			out = append(out, got[i].NaturalKey)
		}
		return out
	}

	assert.Equal(t, []string{"c", "b", "a"}, keys(domain.EventQuery{}))
	assert.Equal(t, []string{"b"}, keys(domain.EventQuery{SourceID: "building"}))
	assert.Equal(t, []string{"c", "a"}, keys(domain.EventQuery{Types: []domain.EventType{domain.EventMeeting, domain.EventPublicNotice}}))
	assert.Equal(t, []string{"b", "a"}, keys(domain.EventQuery{Tags: []string{"Rezoning"}}))
	assert.Equal(t, []string{"b"}, keys(domain.EventQuery{Tags: []string{"rezoning", "demolition"}}))
	assert.Equal(t, []string{"b"}, keys(domain.EventQuery{From: base.Add(time.Hour), To: base.Add(2 * time.Hour)}))
	assert.Equal(t, []string{"c", "a"}, keys(domain.EventQuery{Region: "key west"}))
	assert.Equal(t, []string{"c"}, keys(domain.EventQuery{Entity: "keys energy"}))
	assert.Equal(t, []string{"c"}, keys(domain.EventQuery{Region: "Key West", Limit: 1}))
	assert.Equal(t, []string{"c", "b"}, keys(domain.EventQuery{Limit: 2}))
	assert.Equal(t, []string{"c", "b"}, keys(domain.EventQuery{FirstSeenSince: time.Date(2026, 2, 1, 11, 0, 0, 0, time.UTC)}))
	assert.Equal(t, []string{"c"}, keys(domain.EventQuery{UpdatedSince: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)}))
}

// TestEventStore_UpdateReplacesTags tests that removed tags stop matching
func TestEventStore_UpdateReplacesTags(t *testing.T) {
	store, _ := setupTestStore(t)
	events := store.EventStore()
	ctx := context.Background()

	_, err := events.Save(ctx, newEvent("k", "T", "rezoning"))
	require.NoError(t, err)
	_, err = events.Save(ctx, newEvent("k", "T", "variance"))
	require.NoError(t, err)

	got, err := events.Query(ctx, domain.EventQuery{Tags: []string{"rezoning"}})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = events.Query(ctx, domain.EventQuery{Tags: []string{"variance"}})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

// TestEventStore_FailedSaveLeavesEventUntouched tests that metadata is only
// assigned once the write commits
func TestEventStore_FailedSaveLeavesEventUntouched(t *testing.T) {
	store, _ := setupTestStore(t, WithIDs(func() string { return "evt-1" }))
	events := store.EventStore()
	ctx := context.Background()

	_, err := events.Save(ctx, newEvent("keywest:meeting:CC-1", "Commission"))
	require.NoError(t, err)

	// A second key gets the same ID, so the insert hits the primary key.
	e := newEvent("keywest:meeting:CC-2", "Planning Board")
	_, err = events.Save(ctx, e)
	require.Error(t, err)
	var storeErr *domain.StoreError
	require.ErrorAs(t, err, &storeErr)

	assert.Empty(t, e.ID)
	assert.True(t, e.FirstSeenAt.IsZero())
	assert.True(t, e.UpdatedAt.IsZero())
	assert.Zero(t, e.Revision)

	_, err = events.GetByNaturalKey(ctx, "keywest:meeting:CC-2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// TestEventStore_MarkEvaluated tests the evaluated hash across saves
func TestEventStore_MarkEvaluated(t *testing.T) {
	store, _ := setupTestStore(t)
	events := store.EventStore()
	ctx := context.Background()

	e := newEvent("keywest:meeting:CC-1", "Commission", "rezoning")
	_, err := events.Save(ctx, e)
	require.NoError(t, err)
	assert.Empty(t, e.EvaluatedHash, "a new event has not been evaluated")

	again := newEvent("keywest:meeting:CC-1", "Commission", "rezoning")
	outcome, err := events.Save(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, domain.SaveUnchanged, outcome)
	assert.Empty(t, again.EvaluatedHash, "still pending until marked")

	require.NoError(t, events.MarkEvaluated(ctx, e.ID, e.ContentHash))
	got, err := events.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ContentHash, got.EvaluatedHash)

	changed := newEvent("keywest:meeting:CC-1", "Commission (amended)", "rezoning")
	outcome, err = events.Save(ctx, changed)
	require.NoError(t, err)
	assert.Equal(t, domain.SaveUpdated, outcome)
	assert.Equal(t, e.ContentHash, changed.EvaluatedHash, "the previous revision's mark is kept")
	assert.NotEqual(t, changed.ContentHash, changed.EvaluatedHash)

	// A stale hash does not mark the newer revision.
	require.NoError(t, events.MarkEvaluated(ctx, e.ID, e.ContentHash))
	got, err = events.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ContentHash, got.EvaluatedHash)

	err = events.MarkEvaluated(ctx, "missing", e.ContentHash)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// TestListMigrations tests ordering and pairing of migration scripts
func TestListMigrations(t *testing.T) {
	got, err := listMigrations(migrations.FS)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].version)
	assert.Equal(t, "002_evaluated_hash.up.sql", got[1].name)

	tests := []struct {
		name    string
		fsys    fstest.MapFS
		wantErr string
	}{
		{
			name: "missing down script",
			fsys: fstest.MapFS{
				"001_initial.up.sql":   {Data: []byte("SELECT 1;")},
				"001_initial.down.sql": {Data: []byte("SELECT 1;")},
				"002_tags.up.sql":      {Data: []byte("SELECT 1;")},
			},
			wantErr: "missing 002_tags.down.sql",
		},
		{
			name: "duplicate version",
			fsys: fstest.MapFS{
				"001_initial.up.sql":   {Data: []byte("SELECT 1;")},
				"001_initial.down.sql": {Data: []byte("SELECT 1;")},
				"001_other.up.sql":     {Data: []byte("SELECT 1;")},
				"001_other.down.sql":   {Data: []byte("SELECT 1;")},
			},
			wantErr: "version 1 already used",
		},
		{
			name: "unnumbered script",
			fsys: fstest.MapFS{
				"initial.up.sql":   {Data: []byte("SELECT 1;")},
				"initial.down.sql": {Data: []byte("SELECT 1;")},
			},
			wantErr: "positive version",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := listMigrations(tc.fsys)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

// TestMigrate_RejectsUnpairedScript tests that nothing is applied from a
// broken migration set
func TestMigrate_RejectsUnpairedScript(t *testing.T) {
	store, _ := setupTestStore(t)
	err := store.migrate(fstest.MapFS{
		"003_extra.up.sql": {Data: []byte("CREATE TABLE extra (id TEXT);")},
	})
	require.Error(t, err)

	version, err := store.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

// TestStore_PersistsAcrossReopen tests durability of events, alerts, runs and schedules
func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewStore(dir)
	require.NoError(t, err)
	e := newEvent("keywest:meeting:CC-1", "Commission", "rezoning")
	_, err = store.EventStore().Save(ctx, e)
	require.NoError(t, err)
	_, err = store.AlertStore().SaveAlerts(ctx, []domain.Alert{{
		ID: "al-1", RuleID: "r", EventID: e.ID, EventHash: e.ContentHash,
		Severity: domain.SeverityWarning, CreatedAt: time.Now(),
	}})
	require.NoError(t, err)
	require.NoError(t, store.RunStore().SaveRun(ctx, &domain.PipelineRun{ID: "run-1", StartedAt: time.Now(), Status: domain.RunSuccess}))
	require.NoError(t, store.ScheduleStore().SaveSchedule(ctx, &domain.SourceSchedule{SourceID: "keywest", LastRun: time.Now()}))
	require.NoError(t, store.Close())

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	outcome, err := reopened.EventStore().Save(ctx, newEvent("keywest:meeting:CC-1", "Commission", "rezoning"))
	require.NoError(t, err)
	assert.Equal(t, domain.SaveUnchanged, outcome, "the hash index survives restarts")

	alerts, err := reopened.AlertStore().ListAlerts(ctx, domain.AlertQuery{})
	require.NoError(t, err)
	assert.Len(t, alerts, 1)

	_, err = reopened.RunStore().GetRun(ctx, "run-1")
	assert.NoError(t, err)
	_, err = reopened.ScheduleStore().GetSchedule(ctx, "keywest")
	assert.NoError(t, err)
}

// TestAlertStore_DedupeAndList tests idempotent inserts and filtering
func TestAlertStore_DedupeAndList(t *testing.T) {
	store, _ := setupTestStore(t)
	alerts := store.AlertStore()
	ctx := context.Background()
	base := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	batch := []domain.Alert{
		{ID: "1", RuleID: "r1", EventID: "e1", EventHash: "h1", SourceID: "keywest", Severity: domain.SeverityInfo, CreatedAt: base},
		{ID: "2", RuleID: "r2", EventID: "e1", EventHash: "h1", SourceID: "keywest", Severity: domain.SeverityUrgent, CreatedAt: base.Add(time.Minute)},
	}
	n, err := alerts.SaveAlerts(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Same rule and revision again, plus a new revision.
	n, err = alerts.SaveAlerts(ctx, []domain.Alert{
		{ID: "3", RuleID: "r1", EventID: "e1", EventHash: "h1", Severity: domain.SeverityInfo, CreatedAt: base.Add(2 * time.Minute)},
		{ID: "4", RuleID: "r1", EventID: "e1", EventHash: "h2", SourceID: "keywest", Severity: domain.SeverityInfo, CreatedAt: base.Add(3 * time.Minute)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = alerts.SaveAlerts(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	ids := func(q domain.AlertQuery) []string {
		t.Helper()
		got, err := alerts.ListAlerts(ctx, q)
		require.NoError(t, err)
		out := []string{}
		for _, a := range got {
			out = append(out, a.ID)
		}
		return out
	}

	assert.Equal(t, []string{"4", "2", "1"}, ids(domain.AlertQuery{}))
	assert.Equal(t, []string{"2"}, ids(domain.AlertQuery{MinSeverity: domain.SeverityWarning}))
	assert.Equal(t, []string{"4", "1"}, ids(domain.AlertQuery{RuleID: "r1"}))
	assert.Equal(t, []string{"4", "2"}, ids(domain.AlertQuery{Since: base.Add(time.Minute)}))
	assert.Equal(t, []string{"4"}, ids(domain.AlertQuery{Limit: 1}))
	assert.Empty(t, ids(domain.AlertQuery{SourceID: "legal"}))

	got, err := alerts.ListAlerts(ctx, domain.AlertQuery{EventID: "e1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, base.Add(3*time.Minute).Equal(got[0].CreatedAt))
	assert.Equal(t, domain.SeverityInfo, got[0].Severity)
}

// TestRunStore_SaveListPrune tests run history persistence
func TestRunStore_SaveListPrune(t *testing.T) {
	store, _ := setupTestStore(t)
	runs := store.RunStore()
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		run := &domain.PipelineRun{
			ID:        fmt.Sprintf("run-%d", i),
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			Status:    domain.RunRunning,
		}
		require.NoError(t, runs.SaveRun(ctx, run))

		run.Status = domain.RunPartial
		run.EndedAt = run.StartedAt.Add(time.Minute)
		run.Jobs = []domain.JobResult{
			{SourceID: "a", Status: domain.JobSuccess, EventsCreated: i, Errors: []string{"record 2: missing title"}},
			{SourceID: "b", Status: domain.JobFailed, Error: "timeout", Attempts: 3},
		}
		require.NoError(t, runs.SaveRun(ctx, run))
	}

	got, err := runs.GetRun(ctx, "run-2")
	require.NoError(t, err)
	assert.Equal(t, domain.RunPartial, got.Status)
	require.Len(t, got.Jobs, 2)
	assert.Equal(t, 2, got.Jobs[0].EventsCreated)
	assert.Equal(t, []string{"record 2: missing title"}, got.Jobs[0].Errors)
	assert.Equal(t, 3, got.Jobs[1].Attempts)
	assert.True(t, base.Add(2*time.Hour+time.Minute).Equal(got.EndedAt))

	list, err := runs.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "run-3", list[0].ID)

	require.NoError(t, runs.PruneRuns(ctx, 2))
	list, err = runs.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, []string{"run-3", "run-2"}, []string{list[0].ID, list[1].ID})

	_, err = runs.GetRun(ctx, "run-0")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, runs.SaveRun(ctx, &domain.PipelineRun{}), domain.ErrInvalidInput)
}

// TestScheduleStore_SaveGetList tests schedule persistence
func TestScheduleStore_SaveGetList(t *testing.T) {
	store, _ := setupTestStore(t)
	schedules := store.ScheduleStore()
	ctx := context.Background()
	last := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	_, err := schedules.GetSchedule(ctx, "keywest")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, schedules.SaveSchedule(ctx, &domain.SourceSchedule{SourceID: "keywest", LastRun: last, LastError: "timeout"}))
	require.NoError(t, schedules.SaveSchedule(ctx, &domain.SourceSchedule{SourceID: "building", LastRun: last, LastSuccess: last}))
	require.NoError(t, schedules.SaveSchedule(ctx, &domain.SourceSchedule{SourceID: "keywest", LastRun: last.Add(time.Hour), LastSuccess: last.Add(time.Hour)}))

	got, err := schedules.GetSchedule(ctx, "keywest")
	require.NoError(t, err)
	assert.True(t, last.Add(time.Hour).Equal(got.LastRun))
	assert.Empty(t, got.LastError)

	list, err := schedules.ListSchedules(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "building", list[0].SourceID)

	assert.ErrorIs(t, schedules.SaveSchedule(ctx, &domain.SourceSchedule{}), domain.ErrInvalidInput)
}
