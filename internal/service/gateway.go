package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/runebook/runebook-gateway/internal/cache"
	"github.com/runebook/runebook-gateway/internal/catalog"
	"github.com/runebook/runebook-gateway/internal/guide"
	"github.com/runebook/runebook-gateway/internal/otel"
	"github.com/runebook/runebook-gateway/internal/sources"
)

// Gateway implements Service over a source registry, the catalog mirror and three versioned caches
type Gateway struct {
	registry *sources.Registry
	mirror   CatalogMirror

	builds    *cache.Cache[*guide.Build]
	champions *cache.Cache[*catalog.ChampionMap]
	runeTrees *cache.Cache[*catalog.RuneTree]

	cacheOpts      []cache.Option
	onBuildInstall BuildInstallHook
	tracer         trace.Tracer
}

var _ Service = (*Gateway)(nil)

// New creates the aggregation facade
func New(registry *sources.Registry, mirror CatalogMirror, opts ...Option) (*Gateway, error) {
	if registry == nil {
		return nil, errors.New("source registry is required")
	}
	if mirror == nil {
		return nil, errors.New("catalog mirror is required")
	}

	g := &Gateway{
		registry: registry,
		mirror:   mirror,
	}
	for _, opt := range opts {
		opt(g)
	}

	base := slices.Concat([]cache.Option{cache.WithVersionSource(mirror)}, g.cacheOpts)

	buildOpts := slices.Concat(base, []cache.Option{cache.WithClone((*guide.Build).Clone)})
	if g.onBuildInstall != nil {
		buildOpts = append(buildOpts, cache.WithInstallHook[*guide.Build](g.onBuildInstall))
	}

	var err error
	if g.builds, err = cache.New[*guide.Build](buildOpts...); err != nil {
		return nil, fmt.Errorf("failed to create build cache: %w", err)
	}
	if g.champions, err = cache.New[*catalog.ChampionMap](
		slices.Concat(base, []cache.Option{cache.WithClone((*catalog.ChampionMap).Clone)})...,
	); err != nil {
		return nil, fmt.Errorf("failed to create champion map cache: %w", err)
	}
	if g.runeTrees, err = cache.New[*catalog.RuneTree](
		slices.Concat(base, []cache.Option{cache.WithClone((*catalog.RuneTree).Clone)})...,
	); err != nil {
		return nil, fmt.Errorf("failed to create rune tree cache: %w", err)
	}

	return g, nil
}

// CheckReadiness succeeds once a patch version has been observed
func (g *Gateway) CheckReadiness(ctx context.Context) error {
	if g.mirror.LastKnownVersion() != "" {
		return nil
	}
	if _, err := g.mirror.CurrentVersion(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	return nil
}

// ListSources returns the registered source ids
func (g *Gateway) ListSources() []string {
	return g.registry.IDs()
}

// GetLatestBuild validates source and champion, then serves the build through the cache
func (g *Gateway) GetLatestBuild(ctx context.Context, source, champion string) (*BuildResult, error) {
	ctx, span := g.startSpan(ctx, "service.GetLatestBuild", otel.BuildAttributes(source, champion)...)
	defer span.End()

	src, ok := g.registry.Get(source)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownSource, source)
		otel.RecordError(span, err)
		return nil, err
	}

	canonical, err := g.resolveChampion(ctx, champion)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	key := cache.BuildKey(source, canonical)
	span.SetAttributes(otel.AttrCacheKey.String(key.String()))

	res, err := g.builds.GetOrRefresh(ctx, key, func(ctx context.Context) (*guide.Build, string, error) {
		build, err := src.FetchBuild(ctx, canonical)
		if err != nil {
			return nil, "", err
		}
		return build, build.Patch, nil
	})
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	annotate(span, res.Version, res.Stale)
	return fromCache(res), nil
}

// GetRunes returns the rune selection of the latest build
func (g *Gateway) GetRunes(ctx context.Context, source, champion string) (*RunesResult, error) {
	build, err := g.GetLatestBuild(ctx, source, champion)
	if err != nil {
		return nil, err
	}
	runes := build.Value.Runes.Clone()
	return &RunesResult{
		Value:     &runes,
		Patch:     build.Patch,
		FetchedAt: build.FetchedAt,
		Stale:     build.Stale,
	}, nil
}

// GetChampionMap serves the champion catalog through the cache
func (g *Gateway) GetChampionMap(ctx context.Context) (*ChampionMapResult, error) {
	ctx, span := g.startSpan(ctx, "service.GetChampionMap", otel.AttrCatalogKind.String(string(cache.KindChampionMap)))
	defer span.End()

	res, err := g.champions.GetOrRefresh(ctx, cache.CatalogKey(cache.KindChampionMap),
		func(ctx context.Context) (*catalog.ChampionMap, string, error) {
			champions, err := g.mirror.FetchChampionMap(ctx)
			if err != nil {
				return nil, "", err
			}
			return champions, champions.Version, nil
		})
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	annotate(span, res.Version, res.Stale)
	return fromCache(res), nil
}

// GetRuneTree serves the rune tree through the cache
func (g *Gateway) GetRuneTree(ctx context.Context) (*RuneTreeResult, error) {
	ctx, span := g.startSpan(ctx, "service.GetRuneTree", otel.AttrCatalogKind.String(string(cache.KindRuneTree)))
	defer span.End()

	res, err := g.runeTrees.GetOrRefresh(ctx, cache.CatalogKey(cache.KindRuneTree),
		func(ctx context.Context) (*catalog.RuneTree, string, error) {
			tree, err := g.mirror.FetchRuneTree(ctx)
			if err != nil {
				return nil, "", err
			}
			return tree, tree.Version, nil
		})
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	annotate(span, res.Version, res.Stale)
	return fromCache(res), nil
}

// SeedBuild installs a persisted build for a registered source. Entries already cached win.
func (g *Gateway) SeedBuild(entry cache.Entry[*guide.Build]) bool {
	build := entry.Value
	if build == nil {
		return false
	}
	if _, ok := g.registry.Get(build.Source); !ok {
		return false
	}
	return g.builds.Seed(cache.BuildKey(build.Source, build.Champion), entry)
}

// resolveChampion maps champion onto its canonical id. A cached champion map is used as is,
// stale or not, so resolving a known champion never waits on Data Dragon. The map is fetched
// only when nothing is cached or the champion is missing from it. When the champion map
// cannot be obtained the id is passed through unvalidated.
func (g *Gateway) resolveChampion(ctx context.Context, champion string) (string, error) {
	champion = strings.TrimSpace(champion)
	if champion == "" {
		return "", fmt.Errorf("%w: empty champion id", guide.ErrNotFound)
	}

	if cached, ok := g.champions.Get(cache.CatalogKey(cache.KindChampionMap)); ok {
		if champ, found := cached.Value.Lookup(champion); found {
			return champ.ID, nil
		}
	}

	champions, err := g.GetChampionMap(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		slog.DebugContext(ctx, "Champion map unavailable, passing champion through unvalidated",
			"champion", champion,
			"error", err)
		return champion, nil
	}

	champ, ok := champions.Value.Lookup(champion)
	if !ok {
		return "", fmt.Errorf("%w: unknown champion %q", guide.ErrNotFound, champion)
	}
	return champ.ID, nil
}

func fromCache[V any](res cache.Result[V]) *Result[V] {
	return &Result[V]{
		Value:     res.Value,
		Patch:     res.Version,
		FetchedAt: res.FetchedAt,
		Stale:     res.Stale,
	}
}
