package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/runebook/runebook-gateway/internal/config"
	"github.com/runebook/runebook-gateway/internal/store"
	"github.com/runebook/runebook-gateway/internal/store/file"
)

// FileFactory creates file-based snapshot stores
type FileFactory struct {
	path string
}

var _ Factory = (*FileFactory)(nil)

// NewFileFactory creates a new file-based storage factory
func NewFileFactory(cfg *config.Config) (*FileFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	path := cfg.Storage.GetFilePath()
	slog.Info("Creating file-based storage factory", "path", path)
	return &FileFactory{path: path}, nil
}

// CreateStore opens the snapshot directory
func (f *FileFactory) CreateStore(_ context.Context) (store.Store, error) {
	return file.New(f.path)
}

// Cleanup is a no-op; the store closes its own lock file
func (*FileFactory) Cleanup() {}
