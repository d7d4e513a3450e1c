// Package file implements the snapshot store on the local filesystem: one JSON
// document per (source, champion), replaced atomically.
package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/goccy/go-json"
	"github.com/natefinch/atomic"

	"github.com/runebook/runebook-gateway/internal/store"
)

const (
	buildsDir     = "builds"
	lockFileName  = ".lock"
	lockRetryWait = 50 * time.Millisecond
)

// record is the on-disk layout of a snapshot
type record struct {
	Source      string          `json:"source"`
	Champion    string          `json:"champion"`
	Patch       string          `json:"patch"`
	FetchedAt   time.Time       `json:"fetchedAt"`
	ContentHash uint64          `json:"contentHash"`
	Build       json.RawMessage `json:"build"`
}

// Store keeps snapshots under root/builds. A directory lock guards against other
// gateway processes sharing the same root.
type Store struct {
	root string
	mu   sync.Mutex
	lock *flock.Flock
}

var _ store.Store = (*Store)(nil)

// New creates a file store rooted at root, creating the directory if needed
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("file store path is required")
	}
	if err := os.MkdirAll(filepath.Join(root, buildsDir), 0750); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory %s: %w", root, err)
	}
	return &Store{
		root: root,
		lock: flock.New(filepath.Join(root, lockFileName)),
	}, nil
}

// Save writes snap, skipping the write when the stored snapshot for the same patch
// has identical content
func (s *Store) Save(ctx context.Context, snap store.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	payload, hash, err := store.EncodeBuild(snap.Build)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lock.TryLockContext(ctx, lockRetryWait); err != nil {
		return fmt.Errorf("failed to lock snapshot directory: %w", err)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			slog.Warn("Failed to unlock snapshot directory", "error", err)
		}
	}()

	path := s.path(snap.Source, snap.Champion)
	if existing, err := readRecord(path); err == nil && existing.Patch == snap.Patch && existing.ContentHash == hash {
		slog.DebugContext(ctx, "Snapshot unchanged, skipping write",
			"source", snap.Source,
			"champion", snap.Champion,
			"patch", snap.Patch)
		return nil
	}

	data, err := json.MarshalIndent(record{
		Source:      snap.Source,
		Champion:    snap.Champion,
		Patch:       snap.Patch,
		FetchedAt:   snap.FetchedAt,
		ContentHash: hash,
		Build:       payload,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", path, err)
	}
	return nil
}

// LoadLatest reads every stored snapshot. Unreadable files are logged and skipped.
func (s *Store) LoadLatest(ctx context.Context) ([]store.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lock.TryRLockContext(ctx, lockRetryWait); err != nil {
		return nil, fmt.Errorf("failed to lock snapshot directory: %w", err)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			slog.Warn("Failed to unlock snapshot directory", "error", err)
		}
	}()

	var snaps []store.Snapshot
	err := filepath.WalkDir(filepath.Join(s.root, buildsDir), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}

		rec, err := readRecord(path)
		if err != nil {
			slog.WarnContext(ctx, "Skipping unreadable snapshot", "path", path, "error", err)
			return nil
		}
		build, err := store.DecodeBuild(rec.Build)
		if err != nil {
			slog.WarnContext(ctx, "Skipping unreadable snapshot", "path", path, "error", err)
			return nil
		}
		snaps = append(snaps, store.Snapshot{
			Source:    rec.Source,
			Champion:  rec.Champion,
			Patch:     rec.Patch,
			FetchedAt: rec.FetchedAt,
			Build:     build,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshots: %w", err)
	}

	slices.SortFunc(snaps, func(a, b store.Snapshot) int {
		if c := strings.Compare(a.Source, b.Source); c != 0 {
			return c
		}
		return strings.Compare(a.Champion, b.Champion)
	})
	return snaps, nil
}

// Close releases the directory lock file handle
func (s *Store) Close() error {
	return s.lock.Close()
}

func (s *Store) path(source, champion string) string {
	return filepath.Join(s.root, buildsDir, url.PathEscape(source), url.PathEscape(champion)+".json")
}

func readRecord(path string) (*record, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return &rec, nil
}
