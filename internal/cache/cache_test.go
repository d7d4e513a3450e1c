package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticVersion struct {
	mu sync.Mutex
	v  string
}

func (s *staticVersion) LiveVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v
}

func (s *staticVersion) set(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v = v
}

type build struct {
	Items []int
}

func cloneBuild(b *build) *build {
	if b == nil {
		return nil
	}
	return &build{Items: append([]int(nil), b.Items...)}
}

// countingRefresh returns a refresh func that counts invocations and returns the given value.
func countingRefresh(calls *atomic.Int32, value *build, version string) RefreshFunc[*build] {
	return func(context.Context) (*build, string, error) {
		calls.Add(1)
		return value, version, nil
	}
}

func failingRefresh(calls *atomic.Int32, err error) RefreshFunc[*build] {
	return func(context.Context) (*build, string, error) {
		calls.Add(1)
		return nil, "", err
	}
}

func newTestCache(t *testing.T, opts ...Option) *Cache[*build] {
	t.Helper()
	opts = append([]Option{WithClone(cloneBuild)}, opts...)
	c, err := New[*build](opts...)
	require.NoError(t, err)
	return c
}

func TestKeyString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "build/probuild/Ahri", BuildKey("probuild", "Ahri").String())
	assert.Equal(t, "catalog/champion-map", CatalogKey(KindChampionMap).String())
	assert.NotEqual(t, BuildKey("probuild", "Ahri"), BuildKey("lolalytics", "Ahri"))
}

func TestNew_RejectsMismatchedFunctions(t *testing.T) {
	t.Parallel()

	_, err := New[*build](WithClone(func(s string) string { return s }))
	require.Error(t, err)

	_, err = New[*build](WithInstallHook(func(context.Context, Key, Entry[string]) error { return nil }))
	require.Error(t, err)
}

func TestGetOrRefresh_ConcurrentCallersShareOneFetch(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	key := BuildKey("probuild", "Ahri")

	var calls atomic.Int32
	release := make(chan struct{})
	refresh := func(context.Context) (*build, string, error) {
		calls.Add(1)
		<-release
		return &build{Items: []int{3020}}, "14.20.1", nil
	}

	const callers = 16
	var started sync.WaitGroup
	started.Add(callers)
	results := make([]Result[*build], callers)

	var wg conc.WaitGroup
	for i := range callers {
		wg.Go(func() {
			started.Done()
			res, err := c.GetOrRefresh(context.Background(), key, refresh)
			assert.NoError(t, err)
			results[i] = res
		})
	}

	started.Wait()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, res := range results {
		assert.Equal(t, []int{3020}, res.Value.Items)
		assert.Equal(t, "14.20.1", res.Version)
		assert.False(t, res.Stale)
	}
}

func TestGetOrRefresh_DifferentKeysDoNotSerialize(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	release := make(chan struct{})
	blocked := func(context.Context) (*build, string, error) {
		<-release
		return &build{Items: []int{1}}, "14.20.1", nil
	}
	defer close(release)

	go func() {
		_, _ = c.GetOrRefresh(context.Background(), BuildKey("probuild", "Ahri"), blocked)
	}()

	var calls atomic.Int32
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := c.GetOrRefresh(ctx, BuildKey("probuild", "Zed"),
		countingRefresh(&calls, &build{Items: []int{2}}, "14.20.1"))

	require.NoError(t, err)
	assert.Equal(t, []int{2}, res.Value.Items)
}

func TestGetOrRefresh_HitNeverFetches(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, WithVersionSource(&staticVersion{v: "14.20.1"}))
	key := BuildKey("probuild", "Ahri")

	var calls atomic.Int32
	refresh := countingRefresh(&calls, &build{Items: []int{6655, 3020}}, "14.20.1")

	first, err := c.GetOrRefresh(context.Background(), key, refresh)
	require.NoError(t, err)

	for range 5 {
		again, err := c.GetOrRefresh(context.Background(), key, refresh)
		require.NoError(t, err)
		assert.Equal(t, first.Value, again.Value)
		assert.Equal(t, first.FetchedAt, again.FetchedAt)
		assert.False(t, again.Stale)
	}

	entry, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, first.Value, entry.Value)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrRefresh_ReadersGetCopies(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	key := BuildKey("probuild", "Ahri")

	var calls atomic.Int32
	res, err := c.GetOrRefresh(context.Background(), key, countingRefresh(&calls, &build{Items: []int{1, 2}}, "14.20.1"))
	require.NoError(t, err)

	res.Value.Items[0] = 99

	again, err := c.GetOrRefresh(context.Background(), key, countingRefresh(&calls, nil, ""))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, again.Value.Items)

	entry, _ := c.Get(key)
	entry.Value.Items[1] = 99
	entry, _ = c.Get(key)
	assert.Equal(t, []int{1, 2}, entry.Value.Items)
}

func TestGetOrRefresh_StaleFallback(t *testing.T) {
	t.Parallel()

	live := &staticVersion{v: "14.20.1"}
	c := newTestCache(t, WithVersionSource(live))
	key := BuildKey("lolalytics", "Ahri")

	var calls atomic.Int32
	_, err := c.GetOrRefresh(context.Background(), key, countingRefresh(&calls, &build{Items: []int{1}}, "14.20.1"))
	require.NoError(t, err)

	live.set("14.21.1")
	res, err := c.GetOrRefresh(context.Background(), key, failingRefresh(&calls, errors.New("upstream down")))

	require.NoError(t, err)
	assert.True(t, res.Stale)
	assert.Equal(t, []int{1}, res.Value.Items)
	assert.Equal(t, "14.20.1", res.Version)
	assert.Equal(t, int32(2), calls.Load())

	// The stale entry is kept, so the next call tries again.
	_, err = c.GetOrRefresh(context.Background(), key, failingRefresh(&calls, errors.New("upstream down")))
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetOrRefresh_ColdMissFailure(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	key := BuildKey("probuild", "Ahri")
	cause := errors.New("connection refused")

	var calls atomic.Int32
	_, err := c.GetOrRefresh(context.Background(), key, failingRefresh(&calls, cause))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "build/probuild/Ahri")
	assert.Equal(t, 0, c.Len())
}

func TestGetOrRefresh_PatchVersionInvalidation(t *testing.T) {
	t.Parallel()

	live := &staticVersion{v: "14.20.1"}
	c := newTestCache(t, WithVersionSource(live))
	key := CatalogKey(KindChampionMap)

	var calls atomic.Int32
	_, err := c.GetOrRefresh(context.Background(), key, countingRefresh(&calls, &build{Items: []int{1}}, "14.20.1"))
	require.NoError(t, err)

	live.set("14.21.1")

	res, err := c.GetOrRefresh(context.Background(), key, countingRefresh(&calls, &build{Items: []int{2}}, "14.21.1"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "14.21.1", res.Version)
	assert.Equal(t, []int{2}, res.Value.Items)

	// Now fresh again under the new patch.
	_, err = c.GetOrRefresh(context.Background(), key, countingRefresh(&calls, &build{Items: []int{3}}, "14.21.1"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetOrRefresh_MaxAge(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	c := newTestCache(t, WithMaxAge(time.Hour), WithClock(clock))
	key := BuildKey("probuild", "Ahri")

	var calls atomic.Int32
	refresh := countingRefresh(&calls, &build{Items: []int{1}}, "14.20.1")

	_, err := c.GetOrRefresh(context.Background(), key, refresh)
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(30 * time.Minute)
	mu.Unlock()
	_, err = c.GetOrRefresh(context.Background(), key, refresh)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	mu.Lock()
	now = now.Add(time.Hour)
	mu.Unlock()
	_, err = c.GetOrRefresh(context.Background(), key, refresh)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetOrRefresh_PanicIsRecovered(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	key := BuildKey("probuild", "Ahri")

	_, err := c.GetOrRefresh(context.Background(), key, func(context.Context) (*build, string, error) {
		panic("parser bug")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, ErrRefreshPanic)

	// The flight was released, so the key is usable again.
	var calls atomic.Int32
	res, err := c.GetOrRefresh(context.Background(), key, countingRefresh(&calls, &build{Items: []int{7}}, "14.20.1"))
	require.NoError(t, err)
	assert.Equal(t, []int{7}, res.Value.Items)
}

func TestGetOrRefresh_CallerTimeout(t *testing.T) {
	t.Parallel()

	t.Run("cold key returns unavailable while the refresh keeps running", func(t *testing.T) {
		t.Parallel()

		c := newTestCache(t)
		key := BuildKey("probuild", "Ahri")

		release := make(chan struct{})
		var refreshCtxErr atomic.Value
		refresh := func(ctx context.Context) (*build, string, error) {
			<-release
			if ctx.Err() != nil {
				refreshCtxErr.Store(ctx.Err())
			}
			return &build{Items: []int{1}}, "14.20.1", nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		_, err := c.GetOrRefresh(ctx, key, refresh)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		close(release)
		require.Eventually(t, func() bool {
			_, ok := c.Get(key)
			return ok
		}, time.Second, 5*time.Millisecond)
		assert.Nil(t, refreshCtxErr.Load(), "refresh must not see the caller's cancellation")
	})

	t.Run("stale key is served flagged stale", func(t *testing.T) {
		t.Parallel()

		live := &staticVersion{v: "14.20.1"}
		c := newTestCache(t, WithVersionSource(live))
		key := BuildKey("probuild", "Ahri")

		var calls atomic.Int32
		_, err := c.GetOrRefresh(context.Background(), key, countingRefresh(&calls, &build{Items: []int{1}}, "14.20.1"))
		require.NoError(t, err)
		live.set("14.21.1")

		release := make(chan struct{})
		defer close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		res, err := c.GetOrRefresh(ctx, key, func(context.Context) (*build, string, error) {
			<-release
			return &build{Items: []int{2}}, "14.21.1", nil
		})
		require.NoError(t, err)
		assert.True(t, res.Stale)
		assert.Equal(t, []int{1}, res.Value.Items)
	})
}

func TestGetOrRefresh_RefreshTimeout(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, WithRefreshTimeout(20*time.Millisecond))

	_, err := c.GetOrRefresh(context.Background(), BuildKey("probuild", "Ahri"),
		func(ctx context.Context) (*build, string, error) {
			<-ctx.Done()
			return nil, "", ctx.Err()
		})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEviction(t *testing.T) {
	t.Parallel()

	t.Run("LRU bound evicts the least recently used entry", func(t *testing.T) {
		t.Parallel()

		c := newTestCache(t, WithMaxEntries(2))
		var calls atomic.Int32
		for _, champ := range []string{"Ahri", "Zed", "Lux"} {
			_, err := c.GetOrRefresh(context.Background(), BuildKey("probuild", champ),
				countingRefresh(&calls, &build{Items: []int{1}}, "14.20.1"))
			require.NoError(t, err)
		}

		assert.Equal(t, 2, c.Len())
		_, ok := c.Get(BuildKey("probuild", "Ahri"))
		assert.False(t, ok)
		_, ok = c.Get(BuildKey("probuild", "Lux"))
		assert.True(t, ok)
	})

	t.Run("entry evicted mid-refresh stays available as a stale fallback", func(t *testing.T) {
		t.Parallel()

		live := &staticVersion{v: "14.20.1"}
		c := newTestCache(t, WithMaxEntries(1), WithVersionSource(live))
		ahri := BuildKey("probuild", "Ahri")

		var calls atomic.Int32
		_, err := c.GetOrRefresh(context.Background(), ahri, countingRefresh(&calls, &build{Items: []int{1}}, "14.20.1"))
		require.NoError(t, err)
		live.set("14.21.1")

		inRefresh := make(chan struct{})
		release := make(chan struct{})
		done := make(chan Result[*build], 1)
		go func() {
			res, err := c.GetOrRefresh(context.Background(), ahri, func(context.Context) (*build, string, error) {
				close(inRefresh)
				<-release
				return nil, "", errors.New("upstream down")
			})
			assert.NoError(t, err)
			done <- res
		}()

		<-inRefresh
		// Installing another key evicts Ahri from the LRU while its refresh is in flight.
		_, err = c.GetOrRefresh(context.Background(), BuildKey("probuild", "Zed"),
			countingRefresh(&calls, &build{Items: []int{2}}, "14.21.1"))
		require.NoError(t, err)

		entry, ok := c.Get(ahri)
		require.True(t, ok, "pinned entry must still be readable")
		assert.Equal(t, []int{1}, entry.Value.Items)

		close(release)
		res := <-done
		assert.True(t, res.Stale)
		assert.Equal(t, []int{1}, res.Value.Items)

		// Once the refresh finished the pin is released and the LRU bound holds again.
		assert.Equal(t, 1, c.Len())
	})
}

func TestSeed(t *testing.T) {
	t.Parallel()

	live := &staticVersion{v: "14.20.1"}
	c := newTestCache(t, WithVersionSource(live))
	key := BuildKey("probuild", "Ahri")

	seeded := Entry[*build]{Value: &build{Items: []int{5}}, Version: "14.20.1", FetchedAt: time.Now()}
	assert.True(t, c.Seed(key, seeded))
	assert.False(t, c.Seed(key, seeded), "seed never replaces an entry")

	var calls atomic.Int32
	res, err := c.GetOrRefresh(context.Background(), key, countingRefresh(&calls, &build{Items: []int{6}}, "14.20.1"))
	require.NoError(t, err)
	assert.Equal(t, []int{5}, res.Value.Items)
	assert.Equal(t, int32(0), calls.Load())

	// A seeded entry from an old patch goes through the normal staleness rule.
	old := BuildKey("probuild", "Zed")
	c.Seed(old, Entry[*build]{Value: &build{Items: []int{8}}, Version: "14.19.1", FetchedAt: time.Now()})
	res, err = c.GetOrRefresh(context.Background(), old, countingRefresh(&calls, &build{Items: []int{9}}, "14.20.1"))
	require.NoError(t, err)
	assert.Equal(t, []int{9}, res.Value.Items)
	assert.Equal(t, int32(1), calls.Load())
}

func TestInstallHook(t *testing.T) {
	t.Parallel()

	var installed []Key
	var mu sync.Mutex
	hook := func(_ context.Context, key Key, entry Entry[*build]) error {
		mu.Lock()
		defer mu.Unlock()
		installed = append(installed, key)
		entry.Value.Items[0] = 99
		return errors.New("disk full")
	}

	c := newTestCache(t, WithInstallHook(hook))
	key := BuildKey("probuild", "Ahri")

	var calls atomic.Int32
	res, err := c.GetOrRefresh(context.Background(), key, countingRefresh(&calls, &build{Items: []int{1}}, "14.20.1"))
	require.NoError(t, err, "hook errors never reach callers")
	assert.Equal(t, []int{1}, res.Value.Items, "hook gets its own copy")

	_, err = c.GetOrRefresh(context.Background(), BuildKey("probuild", "Zed"), failingRefresh(&calls, errors.New("x")))
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Key{key}, installed)
}
