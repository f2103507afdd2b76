// Package store persists dispatched batches into the relational schema
// (sessions and events tables). It runs as one engine subscriber; insert
// failures are counted and logged, never propagated back into the engine.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memyselfandm/chronicle/internal/event"
)

const (
	upsertSessionSQL = `
		INSERT INTO sessions (id, started_at)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`

	insertEventSQL = `
		INSERT INTO events (id, session_id, event_type, occurred_at, tool_name, duration_ms, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
)

// Repository is the pgx-backed durable store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository connects a pooled postgres client.
func NewRepository(ctx context.Context, connString string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 5 * time.Minute
	cfg.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{pool: pool}, nil
}

// InsertBatch writes a dispatched batch's events and upserts their
// sessions in one round trip. Duplicate event ids are dropped by the
// database (ON CONFLICT DO NOTHING): replays from a producer retry must
// not fail the whole batch.
func (r *Repository) InsertBatch(ctx context.Context, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}

	b, err := buildInsertBatch(events)
	if err != nil {
		return err
	}

	br := r.pool.SendBatch(ctx, b)
	defer br.Close()

	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert batch: %w", err)
		}
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close releases the connection pool.
func (r *Repository) Close() {
	r.pool.Close()
}

// buildInsertBatch queues one session upsert per distinct session followed
// by the event inserts, preserving batch order.
func buildInsertBatch(events []event.Event) (*pgx.Batch, error) {
	b := &pgx.Batch{}

	seen := make(map[string]struct{})
	for _, e := range events {
		if e.SessionID == "" {
			continue
		}
		if _, ok := seen[e.SessionID]; ok {
			continue
		}
		seen[e.SessionID] = struct{}{}
		b.Queue(upsertSessionSQL, e.SessionID, e.Timestamp)
	}

	for _, e := range events {
		meta, err := metadataJSON(e.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata for event %s: %w", e.ID, err)
		}
		b.Queue(insertEventSQL,
			e.ID, e.SessionID, string(e.Type), e.Timestamp,
			e.ToolName, e.DurationMs, meta)
	}

	return b, nil
}

// metadataJSON encodes the open metadata map for the jsonb column; a nil
// map becomes an empty object rather than SQL null.
func metadataJSON(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}
