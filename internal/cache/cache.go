package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/singleflight"

	"github.com/runebook/runebook-gateway/internal/telemetry"
	"github.com/runebook/runebook-gateway/internal/versions"
)

const (
	// DefaultMaxEntries bounds the number of cached entries
	DefaultMaxEntries = 512
	// DefaultRefreshTimeout bounds a single detached refresh
	DefaultRefreshTimeout = 20 * time.Second
)

var (
	// ErrUnavailable is returned when no cached value exists and the refresh failed
	ErrUnavailable = errors.New("unavailable")
	// ErrRefreshPanic wraps a panic recovered from a refresh function
	ErrRefreshPanic = errors.New("refresh panicked")
)

// Entry is a cached value tagged with the patch version it was fetched under
type Entry[V any] struct {
	Value     V
	Version   string
	FetchedAt time.Time
}

// Result is what GetOrRefresh hands back to callers
type Result[V any] struct {
	Value     V
	Version   string
	FetchedAt time.Time
	// Stale is set when the refresh failed and a previously cached value is served instead
	Stale bool
}

// RefreshFunc fetches a fresh value and reports the patch version it belongs to
type RefreshFunc[V any] func(ctx context.Context) (V, string, error)

// VersionSource exposes the live patch version. LiveVersion must not block on I/O.
type VersionSource interface {
	LiveVersion() string
}

// Cache is a versioned, size-bounded cache with per-key singleflight refreshes.
// It is safe for concurrent use.
type Cache[V any] struct {
	settings
	clone     func(V) V
	onInstall func(context.Context, Key, Entry[V]) error

	group singleflight.Group

	mu  sync.Mutex
	lru *simplelru.LRU[Key, *Entry[V]]
	// pinned holds entries the LRU evicted while their key was being refreshed
	pinned   map[Key]*Entry[V]
	inflight map[Key]struct{}
}

type settings struct {
	maxEntries     int
	maxAge         time.Duration
	refreshTimeout time.Duration
	versions       VersionSource
	metrics        *telemetry.CacheMetrics
	now            func() time.Time
	cloneFn        any
	installHook    any
}

// Option configures a Cache
type Option func(*settings)

// WithMaxEntries sets the LRU size bound
func WithMaxEntries(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

// WithMaxAge marks entries older than d as stale. Zero disables the time bound.
func WithMaxAge(d time.Duration) Option {
	return func(s *settings) {
		s.maxAge = d
	}
}

// WithRefreshTimeout bounds each detached refresh
func WithRefreshTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.refreshTimeout = d
		}
	}
}

// WithVersionSource sets where the live patch version is read from
func WithVersionSource(v VersionSource) Option {
	return func(s *settings) {
		s.versions = v
	}
}

// WithMetrics sets the cache metrics
func WithMetrics(m *telemetry.CacheMetrics) Option {
	return func(s *settings) {
		s.metrics = m
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}

// WithClone sets the deep-copy function applied on install and on every read
func WithClone[V any](fn func(V) V) Option {
	return func(s *settings) {
		s.cloneFn = fn
	}
}

// WithInstallHook registers a hook invoked after each successful refresh install.
// Hook errors are logged and never reach callers.
func WithInstallHook[V any](hook func(context.Context, Key, Entry[V]) error) Option {
	return func(s *settings) {
		s.installHook = hook
	}
}

// New creates a cache for values of type V
func New[V any](opts ...Option) (*Cache[V], error) {
	c := &Cache[V]{
		settings: settings{
			maxEntries:     DefaultMaxEntries,
			refreshTimeout: DefaultRefreshTimeout,
			now:            time.Now,
		},
		pinned:   make(map[Key]*Entry[V]),
		inflight: make(map[Key]struct{}),
	}
	for _, opt := range opts {
		opt(&c.settings)
	}

	c.clone = func(v V) V { return v }
	if c.cloneFn != nil {
		fn, ok := c.cloneFn.(func(V) V)
		if !ok {
			return nil, fmt.Errorf("clone function has type %T, which does not match the cache value type", c.cloneFn)
		}
		c.clone = fn
	}
	if c.installHook != nil {
		hook, ok := c.installHook.(func(context.Context, Key, Entry[V]) error)
		if !ok {
			return nil, fmt.Errorf("install hook has type %T, which does not match the cache value type", c.installHook)
		}
		c.onInstall = hook
	}

	lru, err := simplelru.NewLRU(c.maxEntries, c.evicted)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU: %w", err)
	}
	c.lru = lru
	return c, nil
}

// evicted runs under c.mu from inside the LRU
func (c *Cache[V]) evicted(key Key, entry *Entry[V]) {
	if _, refreshing := c.inflight[key]; refreshing {
		c.pinned[key] = entry
	}
	c.metrics.RecordEviction(context.Background(), string(key.Kind))
}

func (c *Cache[V]) lookupLocked(key Key) (*Entry[V], bool) {
	if entry, ok := c.lru.Get(key); ok {
		return entry, true
	}
	entry, ok := c.pinned[key]
	return entry, ok
}

func (c *Cache[V]) isStale(entry *Entry[V], live string) bool {
	if live != "" && versions.IsNewerVersion(live, entry.Version) {
		return true
	}
	return c.maxAge > 0 && c.now().Sub(entry.FetchedAt) > c.maxAge
}

func (c *Cache[V]) liveVersion() string {
	if c.versions == nil {
		return ""
	}
	return c.versions.LiveVersion()
}

func (c *Cache[V]) result(entry *Entry[V], stale bool) Result[V] {
	return Result[V]{
		Value:     entry.Value,
		Version:   entry.Version,
		FetchedAt: entry.FetchedAt,
		Stale:     stale,
	}
}

// Get returns the cached entry for key without triggering any I/O
func (c *Cache[V]) Get(key Key) (Entry[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lookupLocked(key)
	if !ok {
		return Entry[V]{}, false
	}
	out := *entry
	out.Value = c.clone(entry.Value)
	return out, true
}

// Len returns the number of retained entries, pinned ones included
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len() + len(c.pinned)
}

// Seed installs an entry loaded from persistence. It never replaces an existing entry
// and reports whether the entry was installed.
func (c *Cache[V]) Seed(key Key, entry Entry[V]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lookupLocked(key); ok {
		return false
	}
	entry.Value = c.clone(entry.Value)
	c.lru.Add(key, &entry)
	return true
}

// GetOrRefresh returns the cached value for key, refreshing it through refresh when it is
// absent or stale. Concurrent callers for the same key share one refresh. When the refresh
// fails, or ctx expires first, a previously cached value is returned flagged as stale; with
// nothing cached the error wraps ErrUnavailable.
func (c *Cache[V]) GetOrRefresh(ctx context.Context, key Key, refresh RefreshFunc[V]) (Result[V], error) {
	live := c.liveVersion()

	c.mu.Lock()
	entry, ok := c.lookupLocked(key)
	if ok && !c.isStale(entry, live) {
		res := c.result(entry, false)
		c.mu.Unlock()
		c.metrics.RecordLookup(ctx, string(key.Kind), true)
		res.Value = c.clone(res.Value)
		return res, nil
	}
	c.mu.Unlock()
	c.metrics.RecordLookup(ctx, string(key.Kind), false)

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key.String(), func() (any, error) {
		return c.runRefresh(detached, key, refresh)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Result[V]{}, res.Err
		}
		out := res.Val.(Result[V])
		out.Value = c.clone(out.Value)
		return out, nil
	case <-ctx.Done():
		out, err := c.fallback(ctx, key, ctx.Err())
		if err != nil {
			return Result[V]{}, err
		}
		out.Value = c.clone(out.Value)
		return out, nil
	}
}

// runRefresh is executed by the flight leader only
func (c *Cache[V]) runRefresh(ctx context.Context, key Key, refresh RefreshFunc[V]) (Result[V], error) {
	c.mu.Lock()
	// Another flight may have installed a fresh value between the caller's lookup and now.
	if entry, ok := c.lookupLocked(key); ok && !c.isStale(entry, c.liveVersion()) {
		res := c.result(entry, false)
		c.mu.Unlock()
		return res, nil
	}
	c.inflight[key] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inflight, key)
		delete(c.pinned, key)
		c.mu.Unlock()
	}()

	refreshCtx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()

	start := c.now()
	value, version, err := invoke(refreshCtx, refresh)
	duration := c.now().Sub(start)

	if err != nil {
		outcome := telemetry.RefreshFailure
		if errors.Is(err, ErrRefreshPanic) {
			outcome = telemetry.RefreshPanic
		}
		c.metrics.RecordRefresh(ctx, string(key.Kind), outcome, duration)
		slog.WarnContext(ctx, "Cache refresh failed",
			"key", key.String(),
			"duration", duration,
			"error", err)
		return c.fallback(ctx, key, err)
	}
	c.metrics.RecordRefresh(ctx, string(key.Kind), telemetry.RefreshSuccess, duration)

	entry := &Entry[V]{
		Value:     c.clone(value),
		Version:   version,
		FetchedAt: c.now(),
	}

	c.mu.Lock()
	delete(c.pinned, key)
	c.lru.Add(key, entry)
	c.mu.Unlock()

	if c.onInstall != nil {
		installed := *entry
		installed.Value = c.clone(entry.Value)
		if hookErr := c.onInstall(ctx, key, installed); hookErr != nil {
			slog.WarnContext(ctx, "Cache install hook failed", "key", key.String(), "error", hookErr)
		}
	}

	return c.result(entry, false), nil
}

// fallback serves the retained entry for key flagged stale, or wraps cause in ErrUnavailable
func (c *Cache[V]) fallback(ctx context.Context, key Key, cause error) (Result[V], error) {
	c.mu.Lock()
	entry, ok := c.lookupLocked(key)
	var res Result[V]
	if ok {
		res = c.result(entry, true)
	}
	c.mu.Unlock()

	if !ok {
		return Result[V]{}, fmt.Errorf("%w: %s: %w", ErrUnavailable, key, cause)
	}
	c.metrics.RecordStaleServed(ctx, string(key.Kind))
	return res, nil
}

func invoke[V any](ctx context.Context, refresh RefreshFunc[V]) (value V, version string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrRefreshPanic, r)
		}
	}()
	return refresh(ctx)
}
