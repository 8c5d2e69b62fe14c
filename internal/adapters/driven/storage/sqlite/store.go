package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/civicwatch/internal/adapters/driven/storage/keylock"
	"github.com/custodia-labs/civicwatch/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driven"
	"github.com/custodia-labs/civicwatch/internal/logger"
)

// dbFile is the database file name inside the data directory.
const dbFile = "civicwatch.db"

// Store is a unified SQLite-based storage that provides access to
// all store interfaces through wrapper types.
type Store struct {
	db    *sql.DB
	path  string
	locks *keylock.Locker

	now   func() time.Time
	newID func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for ingestion timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDs sets the event ID generator.
func WithIDs(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.civicwatch/data/civicwatch.db.
func NewStore(dataDir string, opts ...Option) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".civicwatch", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, dbFile)

	// WAL for concurrent readers; immediate transactions so a save takes
	// the write lock before reading the existing row.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:    db,
		path:  dbPath,
		locks: keylock.New(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// EventStore returns an EventStore interface backed by this store.
func (s *Store) EventStore() driven.EventStore {
	return &eventStore{store: s}
}

// AlertStore returns an AlertStore interface backed by this store.
func (s *Store) AlertStore() driven.AlertStore {
	return &alertStore{store: s}
}

// RunStore returns a RunStore interface backed by this store.
func (s *Store) RunStore() driven.RunStore {
	return &runStore{store: s}
}

// ScheduleStore returns a ScheduleStore interface backed by this store.
func (s *Store) ScheduleStore() driven.ScheduleStore {
	return &scheduleStore{store: s}
}

// migration is one numbered schema change.
type migration struct {
	version int
	name    string
}

// listMigrations returns the numbered up scripts in fsys in version order.
// Every up script must ship with its down script, and versions must be
// unique.
func listMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	names := make(map[string]bool, len(entries))
	for _, entry := range entries {
		names[entry.Name()] = true
	}

	seen := make(map[int]string)
	var out []migration
	for _, entry := range entries {
		name := entry.Name()
		base, ok := strings.CutSuffix(name, ".up.sql")
		if !ok {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= 0 {
			return nil, fmt.Errorf("migration %s: name must start with a positive version", name)
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration %s: version %d already used by %s", name, version, prev)
		}
		if !names[base+".down.sql"] {
			return nil, fmt.Errorf("migration %s: missing %s.down.sql", name, base)
		}
		seen[version] = name
		out = append(out, migration{version: version, name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// migrate applies the migrations in fsys newer than the recorded schema
// version.
func (s *Store) migrate(fsys fs.FS) error {
	pending, err := listMigrations(fsys)
	if err != nil {
		return err
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	for _, m := range pending {
		if m.version <= current {
			continue
		}
		script, err := fs.ReadFile(fsys, m.name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", m.name, err)
		}
		if err := s.applyMigration(m.version, string(script)); err != nil {
			return fmt.Errorf("executing migration %s: %w", m.name, err)
		}
		logger.Debug("Applied migration %s to %s", m.name, s.path)
	}
	return nil
}

// SchemaVersion returns the highest applied migration version.
func (s *Store) SchemaVersion() (int, error) {
	var v int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("getting schema version: %w", err)
	}
	return v, nil
}

func (s *Store) applyMigration(version int, script string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(script); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return err
	}
	return tx.Commit()
}

// ==================== Event Store ====================

// eventStore implements driven.EventStore.
type eventStore struct {
	store *Store
}

var _ driven.EventStore = (*eventStore)(nil)

const eventColumns = `id, natural_key, type, source_id, timestamp, title, description,
	lat, lon, region, entities, documents, tags, content_hash, raw_data,
	first_seen_at, updated_at, revision, evaluated_hash`

// Save persists an event keyed by its natural key and classifies the
// write. The event's ID and ingestion metadata are filled in.
func (s *eventStore) Save(ctx context.Context, event *domain.CivicEvent) (domain.SaveOutcome, error) {
	if strings.TrimSpace(event.NaturalKey) == "" {
		return "", &domain.StoreError{Op: "save", Err: fmt.Errorf("%w: natural key is required", domain.ErrInvalidInput)}
	}
	if event.ContentHash == "" {
		event.Seal()
	}

	unlock := s.store.locks.Lock(event.NaturalKey)
	defer unlock()

	outcome, err := s.save(ctx, event)
	if err != nil {
		return "", &domain.StoreError{NaturalKey: event.NaturalKey, Op: "save", Err: err}
	}
	return outcome, nil
}

func (s *eventStore) save(ctx context.Context, event *domain.CivicEvent) (domain.SaveOutcome, error) {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var (
		id, hash, evaluated string
		firstSeen, update   int64
		revision            int
	)
	err = tx.QueryRowContext(ctx,
		"SELECT id, content_hash, evaluated_hash, first_seen_at, updated_at, revision FROM events WHERE natural_key = ?",
		event.NaturalKey).Scan(&id, &hash, &evaluated, &firstSeen, &update, &revision)

	// The caller's event is only touched once the write has committed.
	now := s.store.now().UTC()
	stored := *event
	var outcome domain.SaveOutcome
	switch {
	case errors.Is(err, sql.ErrNoRows):
		outcome = domain.SaveNew
		stored.ID = s.store.newID()
		stored.FirstSeenAt = now
		stored.UpdatedAt = now
		stored.Revision = 1
		stored.EvaluatedHash = ""
	case err != nil:
		return "", fmt.Errorf("reading existing event: %w", err)
	case hash == event.ContentHash:
		event.ID = id
		event.FirstSeenAt = fromNanos(firstSeen)
		event.UpdatedAt = fromNanos(update)
		event.Revision = revision
		event.EvaluatedHash = evaluated
		return domain.SaveUnchanged, nil
	default:
		outcome = domain.SaveUpdated
		stored.ID = id
		stored.FirstSeenAt = fromNanos(firstSeen)
		stored.UpdatedAt = now
		stored.Revision = revision + 1
		stored.EvaluatedHash = evaluated
	}

	if err := writeEvent(ctx, tx, &stored, outcome == domain.SaveNew); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing event: %w", err)
	}
	*event = stored
	return outcome, nil
}

func writeEvent(ctx context.Context, tx *sql.Tx, e *domain.CivicEvent, insert bool) error {
	entities, err := json.Marshal(nonNil(e.Entities))
	if err != nil {
		return fmt.Errorf("marshalling entities: %w", err)
	}
	documents, err := json.Marshal(nonNil(e.Documents))
	if err != nil {
		return fmt.Errorf("marshalling documents: %w", err)
	}
	tags, err := json.Marshal(nonNil(e.Tags))
	if err != nil {
		return fmt.Errorf("marshalling tags: %w", err)
	}

	var lat, lon sql.NullFloat64
	if e.Location != nil {
		lat = sql.NullFloat64{Float64: e.Location.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: e.Location.Lon, Valid: true}
	}
	var raw sql.NullString
	if len(e.RawData) > 0 {
		raw = sql.NullString{String: string(e.RawData), Valid: true}
	}

	args := []any{
		e.NaturalKey, string(e.Type), e.SourceID, toNanos(e.Timestamp), e.Title, e.Description,
		lat, lon, e.Region, string(entities), string(documents), string(tags), e.ContentHash, raw,
		toNanos(e.FirstSeenAt), toNanos(e.UpdatedAt), e.Revision, e.ID,
	}
	if insert {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO events (natural_key, type, source_id, timestamp, title, description,
				lat, lon, region, entities, documents, tags, content_hash, raw_data,
				first_seen_at, updated_at, revision, id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, args...)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE events SET natural_key = ?, type = ?, source_id = ?, timestamp = ?, title = ?,
				description = ?, lat = ?, lon = ?, region = ?, entities = ?, documents = ?, tags = ?,
				content_hash = ?, raw_data = ?, first_seen_at = ?, updated_at = ?, revision = ?
			WHERE id = ?
		`, args...)
	}
	if err != nil {
		return fmt.Errorf("writing event: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM event_tags WHERE event_id = ?", e.ID); err != nil {
		return fmt.Errorf("clearing tags: %w", err)
	}
	for _, tag := range e.Tags {
		if _, err := tx.ExecContext(ctx, "INSERT INTO event_tags (event_id, tag) VALUES (?, ?)", e.ID, tag); err != nil {
			return fmt.Errorf("writing tag: %w", err)
		}
	}
	return nil
}

// MarkEvaluated records the hash whose alerts are stored. The update is
// conditional on the row still carrying that hash.
func (s *eventStore) MarkEvaluated(ctx context.Context, id, contentHash string) error {
	res, err := s.store.db.ExecContext(ctx,
		"UPDATE events SET evaluated_hash = ? WHERE id = ? AND content_hash = ?", contentHash, id, contentHash)
	if err != nil {
		return &domain.StoreError{Op: "mark evaluated", Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		var exists int
		if err := s.store.db.QueryRowContext(ctx, "SELECT 1 FROM events WHERE id = ?", id).Scan(&exists); errors.Is(err, sql.ErrNoRows) {
			return &domain.StoreError{Op: "mark evaluated", Err: domain.ErrNotFound}
		}
	}
	return nil
}

// Get retrieves an event by ID.
func (s *eventStore) Get(ctx context.Context, id string) (*domain.CivicEvent, error) {
	row := s.store.db.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE id = ?", id)
	return scanEvent(row)
}

// GetByNaturalKey retrieves an event by natural key.
func (s *eventStore) GetByNaturalKey(ctx context.Context, naturalKey string) (*domain.CivicEvent, error) {
	row := s.store.db.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE natural_key = ?", naturalKey)
	return scanEvent(row)
}

// Query returns events matching the filter, newest first.
// Source, type, tag and time filters run in SQL; entity and region
// matching are applied to the loaded rows.
func (s *eventStore) Query(ctx context.Context, query domain.EventQuery) ([]domain.CivicEvent, error) {
	var (
		where []string
		args  []any
	)
	if query.SourceID != "" {
		where = append(where, "source_id = ?")
		args = append(args, query.SourceID)
	}
	if len(query.Types) > 0 {
		where = append(where, "type IN ("+placeholders(len(query.Types))+")")
		for _, t := range query.Types {
			args = append(args, string(t))
		}
	}
	for _, tag := range query.Tags {
		where = append(where, "EXISTS (SELECT 1 FROM event_tags t WHERE t.event_id = events.id AND t.tag = ?)")
		args = append(args, domain.NormaliseTag(tag))
	}
	if !query.From.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, toNanos(query.From))
	}
	if !query.To.IsZero() {
		where = append(where, "timestamp < ?")
		args = append(args, toNanos(query.To))
	}
	if !query.FirstSeenSince.IsZero() {
		where = append(where, "first_seen_at >= ?")
		args = append(args, toNanos(query.FirstSeenSince))
	}
	if !query.UpdatedSince.IsZero() {
		where = append(where, "updated_at >= ?")
		args = append(args, toNanos(query.UpdatedSince))
	}

	q := "SELECT " + eventColumns + " FROM events"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY timestamp DESC, id ASC"

	filterInGo := query.Entity != "" || query.Region != ""
	if query.Limit > 0 && !filterInGo {
		q += " LIMIT ?"
		args = append(args, query.Limit)
	}

	rows, err := s.store.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []domain.CivicEvent //nolint:prealloc // size unknown from query
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		if filterInGo && !query.Matches(e) {
			continue
		}
		events = append(events, *e)
		if query.Limit > 0 && len(events) == query.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return events, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEvent scans a single event row.
func scanEvent(row rowScanner) (*domain.CivicEvent, error) {
	var (
		e                         domain.CivicEvent
		eventType                 string
		ts, firstSeen, updated    int64
		lat, lon                  sql.NullFloat64
		entities, documents, tags string
		raw                       sql.NullString
	)
	if err := row.Scan(&e.ID, &e.NaturalKey, &eventType, &e.SourceID, &ts, &e.Title, &e.Description,
		&lat, &lon, &e.Region, &entities, &documents, &tags, &e.ContentHash, &raw,
		&firstSeen, &updated, &e.Revision, &e.EvaluatedHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning event: %w", err)
	}

	e.Type = domain.EventType(eventType)
	e.Timestamp = fromNanos(ts)
	e.FirstSeenAt = fromNanos(firstSeen)
	e.UpdatedAt = fromNanos(updated)
	if lat.Valid && lon.Valid {
		e.Location = &domain.GeoPoint{Lat: lat.Float64, Lon: lon.Float64}
	}
	if raw.Valid && raw.String != "" {
		e.RawData = json.RawMessage(raw.String)
	}
	if err := unmarshalList(entities, &e.Entities); err != nil {
		return nil, fmt.Errorf("unmarshalling entities: %w", err)
	}
	if err := unmarshalList(documents, &e.Documents); err != nil {
		return nil, fmt.Errorf("unmarshalling documents: %w", err)
	}
	if err := unmarshalList(tags, &e.Tags); err != nil {
		return nil, fmt.Errorf("unmarshalling tags: %w", err)
	}
	return &e, nil
}

// ==================== Alert Store ====================

// alertStore implements driven.AlertStore.
type alertStore struct {
	store *Store
}

var _ driven.AlertStore = (*alertStore)(nil)

// SaveAlerts inserts alerts, skipping any already recorded for the same
// rule and event revision. Returns the number inserted.
func (s *alertStore) SaveAlerts(ctx context.Context, alerts []domain.Alert) (int, error) {
	if len(alerts) == 0 {
		return 0, nil
	}
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	inserted := 0
	for i := range alerts {
		a := &alerts[i]
		res, err := tx.ExecContext(ctx, `
			INSERT INTO alerts (id, rule_id, category, event_id, event_hash, source_id,
				severity, severity_rank, message, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(rule_id, event_id, event_hash) DO NOTHING
		`, a.ID, a.RuleID, a.Category, a.EventID, a.EventHash, a.SourceID,
			string(a.Severity), a.Severity.Rank(), a.Message, toNanos(a.CreatedAt))
		if err != nil {
			return 0, fmt.Errorf("saving alert %s: %w", a.RuleID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("saving alert %s: %w", a.RuleID, err)
		}
		inserted += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing alerts: %w", err)
	}
	return inserted, nil
}

// ListAlerts returns alerts matching the filter, newest first.
func (s *alertStore) ListAlerts(ctx context.Context, query domain.AlertQuery) ([]domain.Alert, error) {
	var (
		where []string
		args  []any
	)
	if query.RuleID != "" {
		where = append(where, "rule_id = ?")
		args = append(args, query.RuleID)
	}
	if query.EventID != "" {
		where = append(where, "event_id = ?")
		args = append(args, query.EventID)
	}
	if query.SourceID != "" {
		where = append(where, "source_id = ?")
		args = append(args, query.SourceID)
	}
	if query.MinSeverity != "" {
		where = append(where, "severity_rank >= ?")
		args = append(args, query.MinSeverity.Rank())
	}
	if !query.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, toNanos(query.Since))
	}

	q := `SELECT id, rule_id, category, event_id, event_hash, source_id, severity, message, created_at FROM alerts`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, rowid ASC"
	if query.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, query.Limit)
	}

	rows, err := s.store.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.Alert //nolint:prealloc // size unknown from query
	for rows.Next() {
		var a domain.Alert
		var severity string
		var created int64
		if err := rows.Scan(&a.ID, &a.RuleID, &a.Category, &a.EventID, &a.EventHash,
			&a.SourceID, &severity, &a.Message, &created); err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		a.Severity = domain.Severity(severity)
		a.CreatedAt = fromNanos(created)
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alerts: %w", err)
	}
	return alerts, nil
}

// ==================== Helper Functions ====================

// toNanos converts a time to Unix nanoseconds. The zero time maps to 0.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// fromNanos is the inverse of toNanos. Times are returned in UTC.
func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// unmarshalList decodes a JSON array, leaving dst nil when it is empty.
func unmarshalList[T any](data string, dst *[]T) error {
	if data == "" || data == "[]" || data == jsonNull {
		*dst = nil
		return nil
	}
	return json.Unmarshal([]byte(data), dst)
}

// jsonNull is the JSON representation of null.
const jsonNull = "null"

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
