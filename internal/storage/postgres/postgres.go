// Package postgres stores normalized events as JSONB documents in a PostgreSQL
// table keyed by fingerprint.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pfrederiksen/discovr-ingest/internal/event"
	"github.com/pfrederiksen/discovr-ingest/internal/storage"
)

// DefaultTable is used when no table name is configured.
const DefaultTable = "events"

// Store is a storage.Store backed by a pgx connection pool.
type Store struct {
	pool  *pgxpool.Pool
	table string // sanitized identifier
}

// Open creates a pool for databaseURL, pings it and creates the table if
// needed.
func Open(ctx context.Context, databaseURL, table string) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create DB pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping DB: %w", err)
	}

	s := New(pool, table)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, table string) *Store {
	if table == "" {
		table = DefaultTable
	}
	return &Store{pool: pool, table: pgx.Identifier{table}.Sanitize()}
}

// Migrate creates the events table and its indexes.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + s.table + ` (
			fingerprint TEXT PRIMARY KEY,
			display_id  TEXT NOT NULL UNIQUE,
			city        TEXT NOT NULL,
			start_time  TIMESTAMPTZ NOT NULL,
			doc         JSONB NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS ` + pgx.Identifier{indexName(s.table)}.Sanitize() + ` ON ` + s.table + ` (city, start_time)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.table, err)
		}
	}
	return nil
}

func indexName(sanitized string) string {
	return strings.ReplaceAll(sanitized, `"`, "") + "_city_start"
}

// FindByFingerprint implements storage.Store.
func (s *Store) FindByFingerprint(ctx context.Context, key string) (*event.NormalizedEvent, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM `+s.table+` WHERE fingerprint = $1`, key).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding %s: %w", key, err)
	}

	var e event.NormalizedEvent
	if err := json.Unmarshal(doc, &e); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	return &e, nil
}

func (s *Store) upsertSQL() string {
	return `INSERT INTO ` + s.table + ` (fingerprint, display_id, city, start_time, doc, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (fingerprint) DO UPDATE SET
			display_id = EXCLUDED.display_id,
			city       = EXCLUDED.city,
			start_time = EXCLUDED.start_time,
			doc        = EXCLUDED.doc,
			updated_at = now()`
}

func upsertArgs(e *event.NormalizedEvent) ([]any, error) {
	doc, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", e.Fingerprint, err)
	}
	return []any{e.Fingerprint, e.DisplayID, e.City, e.StartTime, doc}, nil
}

// Upsert implements storage.Store.
func (s *Store) Upsert(ctx context.Context, e *event.NormalizedEvent) error {
	args, err := upsertArgs(e)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, s.upsertSQL(), args...); err != nil {
		return fmt.Errorf("upserting %s: %w", e.Fingerprint, err)
	}
	return nil
}

// UpsertMany implements storage.BatchUpserter with a single pgx batch.
func (s *Store) UpsertMany(ctx context.Context, events []*event.NormalizedEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	sql := s.upsertSQL()
	for _, e := range events {
		args, err := upsertArgs(e)
		if err != nil {
			return err
		}
		batch.Queue(sql, args...)
	}

	br := s.pool.SendBatch(ctx, batch)
	for _, e := range events {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("upserting %s: %w", e.Fingerprint, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("closing batch: %w", err)
	}
	return nil
}

// List implements storage.Lister.
func (s *Store) List(ctx context.Context, city string) ([]*event.NormalizedEvent, error) {
	sql := `SELECT doc FROM ` + s.table
	var args []any
	if city != "" {
		sql += ` WHERE city = $1`
		args = append(args, city)
	}
	sql += ` ORDER BY start_time, fingerprint`

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}

	events := make([]*event.NormalizedEvent, 0, len(docs))
	for _, doc := range docs {
		var e event.NormalizedEvent
		if err := json.Unmarshal(doc, &e); err != nil {
			return nil, fmt.Errorf("decoding event: %w", err)
		}
		events = append(events, &e)
	}
	return events, nil
}

// Close implements storage.Closer.
func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}
