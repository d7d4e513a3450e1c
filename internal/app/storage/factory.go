// Package storage creates the snapshot store selected by configuration and owns
// the resources behind it.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/runebook/runebook-gateway/internal/config"
	"github.com/runebook/runebook-gateway/internal/store"
)

// Factory creates the snapshot store for one storage backend
type Factory interface {
	// CreateStore returns the backend's snapshot store
	CreateStore(ctx context.Context) (store.Store, error)

	// Cleanup releases any resources held by this factory.
	// For database factories, this closes the connection pool.
	Cleanup()
}

// NewStorageFactory creates a storage factory based on the configured storage type
func NewStorageFactory(ctx context.Context, cfg *config.Config, opts ...DatabaseFactoryOption) (Factory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	switch cfg.Storage.GetType() {
	case config.StorageTypeDatabase:
		return NewDatabaseFactory(ctx, cfg, opts...)
	case config.StorageTypeFile:
		return NewFileFactory(cfg)
	case config.StorageTypeNone:
		return NoopFactory{}, nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Storage.GetType())
	}
}

// NoopFactory keeps builds in memory only
type NoopFactory struct{}

var _ Factory = NoopFactory{}

// CreateStore returns a store discarding every snapshot
func (NoopFactory) CreateStore(context.Context) (store.Store, error) {
	slog.Debug("Snapshot persistence disabled")
	return store.NoopStore{}, nil
}

// Cleanup is a no-op
func (NoopFactory) Cleanup() {}
