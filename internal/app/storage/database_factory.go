package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"

	"github.com/runebook/runebook-gateway/internal/config"
	"github.com/runebook/runebook-gateway/internal/db"
	"github.com/runebook/runebook-gateway/internal/store"
	"github.com/runebook/runebook-gateway/internal/store/postgres"
)

// DatabaseFactory creates database-backed snapshot stores
type DatabaseFactory struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

var _ Factory = (*DatabaseFactory)(nil)

// DatabaseFactoryOption is a functional option for configuring the DatabaseFactory
type DatabaseFactoryOption func(*DatabaseFactory)

// WithTracer sets the OpenTelemetry tracer for the database store.
// If not set, tracing will be disabled (no-op).
func WithTracer(tracer trace.Tracer) DatabaseFactoryOption {
	return func(f *DatabaseFactory) {
		f.tracer = tracer
	}
}

// NewDatabaseFactory creates a new database-backed storage factory.
// It establishes a connection pool to the configured PostgreSQL database.
func NewDatabaseFactory(ctx context.Context, cfg *config.Config, opts ...DatabaseFactoryOption) (*DatabaseFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Storage.Database == nil {
		return nil, fmt.Errorf("database configuration is required for database storage type")
	}

	slog.Info("Creating database-backed storage factory")

	pool, err := db.NewPool(ctx, cfg.Storage.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	return newDatabaseFactory(pool, opts...), nil
}

func newDatabaseFactory(pool *pgxpool.Pool, opts ...DatabaseFactoryOption) *DatabaseFactory {
	factory := &DatabaseFactory{pool: pool}
	for _, opt := range opts {
		opt(factory)
	}
	return factory
}

// CreateStore returns a store on the factory's pool
func (d *DatabaseFactory) CreateStore(_ context.Context) (store.Store, error) {
	var opts []postgres.Option
	if d.tracer != nil {
		opts = append(opts, postgres.WithTracer(d.tracer))
		slog.Debug("Database store tracing enabled")
	}
	return postgres.New(d.pool, opts...)
}

// Cleanup closes the database connection pool
func (d *DatabaseFactory) Cleanup() {
	if d.pool != nil {
		slog.Info("Closing database connection pool")
		d.pool.Close()
	}
}
