package file

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runebook/runebook-gateway/internal/guide"
	"github.com/runebook/runebook-gateway/internal/store"
)

func snapshot(source, champion, patch string, items ...int) store.Snapshot {
	return store.Snapshot{
		Source:    source,
		Champion:  champion,
		Patch:     patch,
		FetchedAt: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
		Build: &guide.Build{
			Source:   source,
			Champion: champion,
			Items:    items,
			Runes:    guide.RuneSelection{PrimaryStyle: 8100, Perks: []int{8112}},
			Patch:    patch,
		},
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := New("")
	require.Error(t, err)

	root := filepath.Join(t.TempDir(), "nested", "data")
	s, err := New(root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	info, err := os.Stat(filepath.Join(root, buildsDir))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSaveAndLoad(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Save(ctx, snapshot("probuild", "Ahri", "14.20.1", 6655, 3020)))
	require.NoError(t, s.Save(ctx, snapshot("lolalytics", "Ahri", "14.20.1", 6655)))
	require.NoError(t, s.Save(ctx, snapshot("probuild", "Kaisa", "14.20.1", 3124)))
	// newer build replaces the older one
	require.NoError(t, s.Save(ctx, snapshot("probuild", "Ahri", "14.21.1", 6655, 3157)))

	snaps, err := s.LoadLatest(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 3)

	assert.Equal(t, "lolalytics", snaps[0].Source)
	assert.Equal(t, "probuild", snaps[1].Source)
	assert.Equal(t, "Ahri", snaps[1].Champion)
	assert.Equal(t, "14.21.1", snaps[1].Patch)
	assert.Equal(t, []int{6655, 3157}, snaps[1].Build.Items)
	assert.Equal(t, "Kaisa", snaps[2].Champion)
}

func TestSaveSkipsUnchangedContent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Save(ctx, snapshot("probuild", "Ahri", "14.20.1", 6655)))
	path := s.path("probuild", "Ahri")
	before, err := os.Stat(path)
	require.NoError(t, err)

	later := snapshot("probuild", "Ahri", "14.20.1", 6655)
	later.FetchedAt = later.FetchedAt.Add(time.Hour)
	require.NoError(t, s.Save(ctx, later))

	rec, err := readRecord(path)
	require.NoError(t, err)
	assert.Equal(t, snapshot("", "", "").FetchedAt, rec.FetchedAt, "unchanged content keeps the first record")

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
}

func TestSaveRejectsIncompleteSnapshots(t *testing.T) {
	t.Parallel()

	s, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.Error(t, s.Save(context.Background(), store.Snapshot{Source: "probuild", Champion: "Ahri"}))
}

func TestPathEscaping(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Save(ctx, snapshot("probuild", "../../etc/Ahri", "14.20.1", 6655)))

	path := s.path("probuild", "../../etc/Ahri")
	rel, err := filepath.Rel(filepath.Join(root, buildsDir), path)
	require.NoError(t, err)
	assert.NotContains(t, rel, "..")

	snaps, err := s.LoadLatest(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "../../etc/Ahri", snaps[0].Champion)
}

func TestLoadSkipsCorruptFiles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Save(ctx, snapshot("probuild", "Ahri", "14.20.1", 6655)))
	corrupt := filepath.Join(root, buildsDir, "probuild", "Broken.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(root, buildsDir, "README"), []byte("ignored"), 0600))

	snaps, err := s.LoadLatest(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "Ahri", snaps[0].Champion)
}

func TestConcurrentSaves(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Save(ctx, snapshot("probuild", "Ahri", "14.20.1", 6655, 3000+i)))
		}()
	}
	wg.Wait()

	snaps, err := s.LoadLatest(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Len(t, snaps[0].Build.Items, 2)
}

func TestLockHonorsContext(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	// another process holds the directory lock
	other, err := New(root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = other.Close() })
	require.NoError(t, other.lock.Lock())
	t.Cleanup(func() { _ = other.lock.Unlock() })

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err = s.Save(ctx, snapshot("probuild", "Ahri", "14.20.1", 6655))
	require.ErrorContains(t, err, "failed to lock snapshot directory")
}
