// Package postgres replicates stored civic events into a PostgreSQL table.
//
// The replica is a read-side copy for reporting and sharing. It is never
// read back by the pipeline; the embedded SQLite store stays authoritative.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driven"
	"github.com/custodia-labs/civicwatch/internal/logger"
)

// Ensure Replicator implements the interface.
var _ driven.Replicator = (*Replicator)(nil)

const initSQL = `
CREATE TABLE IF NOT EXISTS civic_events (
	id            TEXT PRIMARY KEY,
	natural_key   TEXT NOT NULL UNIQUE,
	type          TEXT NOT NULL,
	source_id     TEXT NOT NULL,
	ts            TIMESTAMPTZ NOT NULL,
	title         TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	lat           DOUBLE PRECISION,
	lon           DOUBLE PRECISION,
	region        TEXT NOT NULL DEFAULT '',
	tags          TEXT[] NOT NULL DEFAULT '{}',
	entities      JSONB NOT NULL DEFAULT '[]',
	documents     JSONB NOT NULL DEFAULT '[]',
	content_hash  TEXT NOT NULL,
	revision      INTEGER NOT NULL,
	first_seen_at TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_civic_events_source_ts ON civic_events (source_id, ts DESC);
CREATE INDEX IF NOT EXISTS idx_civic_events_tags ON civic_events USING GIN (tags);
`

// Older revisions never overwrite newer ones, so out-of-order retries are harmless.
const upsertSQL = `
INSERT INTO civic_events (
	id, natural_key, type, source_id, ts, title, description, lat, lon, region,
	tags, entities, documents, content_hash, revision, first_seen_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
ON CONFLICT (natural_key) DO UPDATE SET
	type = EXCLUDED.type,
	ts = EXCLUDED.ts,
	title = EXCLUDED.title,
	description = EXCLUDED.description,
	lat = EXCLUDED.lat,
	lon = EXCLUDED.lon,
	region = EXCLUDED.region,
	tags = EXCLUDED.tags,
	entities = EXCLUDED.entities,
	documents = EXCLUDED.documents,
	content_hash = EXCLUDED.content_hash,
	revision = EXCLUDED.revision,
	updated_at = EXCLUDED.updated_at
WHERE civic_events.revision < EXCLUDED.revision
`

// execer is the subset of pgxpool.Pool the replicator uses.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Config holds connection pool settings.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	ConnectAttempts int
	RetryDelay      time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxConns <= 0 {
		c.MaxConns = 4
	}
	if c.MaxConnLifetime <= 0 {
		c.MaxConnLifetime = time.Hour
	}
	if c.ConnectAttempts <= 0 {
		c.ConnectAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
}

// Replicator upserts events into the civic_events table.
type Replicator struct {
	db   execer
	pool *pgxpool.Pool
}

// New creates a replicator over an existing connection. The schema must
// already exist; see Init.
func New(db execer) *Replicator {
	return &Replicator{db: db}
}

// Connect opens a pool, retrying while the server comes up, and ensures
// the civic_events table exists.
func Connect(ctx context.Context, cfg Config) (*Replicator, error) {
	cfg.applyDefaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: parse postgres dsn: %v", domain.ErrInvalidInput, err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= cfg.ConnectAttempts; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
		}
		logger.Warn("postgres connect attempt %d/%d: %v", attempt, cfg.ConnectAttempts, err)
		if attempt == cfg.ConnectAttempts {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.RetryDelay):
		}
	}

	r := &Replicator{db: pool, pool: pool}
	if err := r.Init(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("Postgres replica connected (max %d conns)", cfg.MaxConns)
	return r, nil
}

// Init creates the replica table and indexes if they do not exist.
func (r *Replicator) Init(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, initSQL); err != nil {
		return fmt.Errorf("init civic_events: %w", err)
	}
	return nil
}

// Name returns the replication target name.
func (r *Replicator) Name() string {
	return "postgres"
}

// Replicate upserts one event keyed by natural key.
func (r *Replicator) Replicate(ctx context.Context, event *domain.CivicEvent) error {
	if event == nil || event.ID == "" {
		return fmt.Errorf("%w: event has no id", domain.ErrInvalidInput)
	}

	entities, err := json.Marshal(nonNil(event.Entities))
	if err != nil {
		return fmt.Errorf("marshalling entities: %w", err)
	}
	documents, err := json.Marshal(nonNil(event.Documents))
	if err != nil {
		return fmt.Errorf("marshalling documents: %w", err)
	}

	var lat, lon *float64
	if event.Location != nil {
		lat, lon = &event.Location.Lat, &event.Location.Lon
	}

	_, err = r.db.Exec(ctx, upsertSQL,
		event.ID,
		event.NaturalKey,
		string(event.Type),
		event.SourceID,
		event.Timestamp.UTC(),
		event.Title,
		event.Description,
		lat,
		lon,
		event.Region,
		nonNil(event.Tags),
		string(entities),
		string(documents),
		event.ContentHash,
		event.Revision,
		event.FirstSeenAt.UTC(),
		event.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", event.NaturalKey, err)
	}
	return nil
}

// Close releases the pool if the replicator owns one.
func (r *Replicator) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
