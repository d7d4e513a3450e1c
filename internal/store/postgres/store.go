// Package postgres implements the snapshot store on PostgreSQL. Every distinct
// build is kept as a row of build_snapshots, giving a per-patch archive.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/runebook/runebook-gateway/internal/otel"
	"github.com/runebook/runebook-gateway/internal/store"
)

// StoreTracerName is the name of the tracer used by the database store
const StoreTracerName = "github.com/runebook/runebook-gateway/store"

const (
	latestHashQuery = `
SELECT content_hash
FROM build_snapshots
WHERE source = $1 AND champion = $2 AND patch = $3
ORDER BY fetched_at DESC
LIMIT 1`

	insertQuery = `
INSERT INTO build_snapshots (id, source, champion, patch, fetched_at, content_hash, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	latestQuery = `
SELECT DISTINCT ON (source, champion) source, champion, patch, fetched_at, payload
FROM build_snapshots
ORDER BY source, champion, fetched_at DESC`
)

// Querier is the subset of pgxpool.Pool used by the store
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Option configures the database store
type Option func(*Store)

// WithTracer sets the tracer used for store spans
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Store) {
		s.tracer = tracer
	}
}

// Store is a PostgreSQL-backed snapshot store. The pool is owned by the caller.
type Store struct {
	db     Querier
	tracer trace.Tracer
}

var _ store.Store = (*Store)(nil)

// New creates a database store on db
func New(db Querier, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("database pool is required")
	}
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Save inserts snap unless the newest row for the same source, champion and patch
// carries the same content hash
func (s *Store) Save(ctx context.Context, snap store.Snapshot) (err error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "store.Save",
		trace.WithAttributes(append(otel.BuildAttributes(snap.Source, snap.Champion),
			otel.AttrPatchVersion.String(snap.Patch))...))
	defer func() {
		otel.RecordError(span, err)
		span.End()
	}()

	if err := snap.Validate(); err != nil {
		return err
	}
	payload, hash, err := store.EncodeBuild(snap.Build)
	if err != nil {
		return err
	}

	var latest int64
	err = s.db.QueryRow(ctx, latestHashQuery, snap.Source, snap.Champion, snap.Patch).Scan(&latest)
	switch {
	case err == nil && uint64(latest) == hash:
		span.SetAttributes(attribute.Bool("runebook.store.unchanged", true))
		slog.DebugContext(ctx, "Snapshot unchanged, skipping insert",
			"source", snap.Source,
			"champion", snap.Champion,
			"patch", snap.Patch)
		return nil
	case err != nil && !errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("failed to query latest snapshot: %w", err)
	}

	fetchedAt := snap.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}
	// #nosec G115 -- the hash is stored bit-for-bit in a BIGINT column
	if _, err := s.db.Exec(ctx, insertQuery,
		uuid.New().String(),
		snap.Source,
		snap.Champion,
		snap.Patch,
		fetchedAt.UTC(),
		int64(hash),
		payload,
	); err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

type snapshotRow struct {
	Source    string
	Champion  string
	Patch     string
	FetchedAt time.Time
	Payload   []byte
}

// LoadLatest returns the newest row of every (source, champion) pair ordered by
// source and champion. Rows with an undecodable payload are logged and skipped.
func (s *Store) LoadLatest(ctx context.Context) (_ []store.Snapshot, err error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "store.LoadLatest")
	defer func() {
		otel.RecordError(span, err)
		span.End()
	}()

	rows, err := s.db.Query(ctx, latestQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByPos[snapshotRow])
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshots: %w", err)
	}

	snaps := make([]store.Snapshot, 0, len(records))
	for _, rec := range records {
		build, err := store.DecodeBuild(rec.Payload)
		if err != nil {
			slog.WarnContext(ctx, "Skipping unreadable snapshot",
				"source", rec.Source,
				"champion", rec.Champion,
				"error", err)
			continue
		}
		snaps = append(snaps, store.Snapshot{
			Source:    rec.Source,
			Champion:  rec.Champion,
			Patch:     rec.Patch,
			FetchedAt: rec.FetchedAt,
			Build:     build,
		})
	}
	span.SetAttributes(attribute.Int("runebook.store.snapshots", len(snaps)))
	return snaps, nil
}

// Close is a no-op; the pool is closed by its owner
func (*Store) Close() error {
	return nil
}
