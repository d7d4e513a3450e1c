// Package store persists installed builds so the cache can be warmed at startup
// and builds are archived per patch.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"

	"github.com/runebook/runebook-gateway/internal/cache"
	"github.com/runebook/runebook-gateway/internal/guide"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go Store

// Store persists build snapshots
type Store interface {
	// Save records snap. Saving content identical to the latest snapshot of the same
	// source, champion and patch is a no-op.
	Save(ctx context.Context, snap Snapshot) error

	// LoadLatest returns the newest snapshot of every (source, champion) pair
	LoadLatest(ctx context.Context) ([]Snapshot, error)

	// Close releases the resources held by the store
	Close() error
}

// Snapshot is one persisted build
type Snapshot struct {
	Source    string       `json:"source"`
	Champion  string       `json:"champion"`
	Patch     string       `json:"patch"`
	FetchedAt time.Time    `json:"fetchedAt"`
	Build     *guide.Build `json:"build"`
}

// SnapshotFromEntry converts an installed cache entry into a snapshot
func SnapshotFromEntry(key cache.Key, entry cache.Entry[*guide.Build]) Snapshot {
	return Snapshot{
		Source:    key.Source,
		Champion:  key.Champion,
		Patch:     entry.Version,
		FetchedAt: entry.FetchedAt,
		Build:     entry.Value,
	}
}

// Entry converts the snapshot back into a cache entry
func (s Snapshot) Entry() cache.Entry[*guide.Build] {
	build := s.Build.Clone()
	if build != nil {
		build.Source = s.Source
		build.Champion = s.Champion
	}
	return cache.Entry[*guide.Build]{
		Value:     build,
		Version:   s.Patch,
		FetchedAt: s.FetchedAt,
	}
}

// Validate checks the snapshot identifies a complete build
func (s Snapshot) Validate() error {
	if s.Source == "" || s.Champion == "" {
		return errors.New("snapshot requires a source and a champion")
	}
	if s.Build == nil {
		return fmt.Errorf("snapshot %s/%s has no build", s.Source, s.Champion)
	}
	return nil
}

// EncodeBuild serializes build and returns its content hash
func EncodeBuild(build *guide.Build) ([]byte, uint64, error) {
	payload, err := json.Marshal(build)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode build: %w", err)
	}
	return payload, xxhash.Sum64(payload), nil
}

// DecodeBuild parses a payload written by EncodeBuild
func DecodeBuild(payload []byte) (*guide.Build, error) {
	var build guide.Build
	if err := json.Unmarshal(payload, &build); err != nil {
		return nil, fmt.Errorf("failed to decode build: %w", err)
	}
	return &build, nil
}

// NoopStore discards every snapshot
type NoopStore struct{}

var _ Store = NoopStore{}

// Save implements Store
func (NoopStore) Save(context.Context, Snapshot) error { return nil }

// LoadLatest implements Store
func (NoopStore) LoadLatest(context.Context) ([]Snapshot, error) { return nil, nil }

// Close implements Store
func (NoopStore) Close() error { return nil }

// InstallHook returns a cache install hook saving each installed build to s
func InstallHook(s Store) func(context.Context, cache.Key, cache.Entry[*guide.Build]) error {
	return func(ctx context.Context, key cache.Key, entry cache.Entry[*guide.Build]) error {
		if err := s.Save(ctx, SnapshotFromEntry(key, entry)); err != nil {
			return fmt.Errorf("failed to save snapshot %s: %w", key, err)
		}
		return nil
	}
}
