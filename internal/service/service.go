// Package service provides the aggregation facade of the runebook gateway: the single
// entry point resolving builds, runes and static catalogs through the versioned cache.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/runebook/runebook-gateway/internal/catalog"
	"github.com/runebook/runebook-gateway/internal/guide"
)

var (
	// ErrUnknownSource is returned when the requested source is not registered
	ErrUnknownSource = errors.New("unknown source")
	// ErrNotReady is returned by CheckReadiness until a patch version is known
	ErrNotReady = errors.New("patch version not yet known")
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go Service

// Service defines the operations exposed by the gateway
type Service interface {
	// CheckReadiness reports whether the gateway can serve versioned data
	CheckReadiness(ctx context.Context) error

	// ListSources returns the registered source ids in configuration order
	ListSources() []string

	// GetLatestBuild returns the current build for champion from source
	GetLatestBuild(ctx context.Context, source, champion string) (*BuildResult, error)

	// GetRunes returns the rune portion of the current build for champion from source
	GetRunes(ctx context.Context, source, champion string) (*RunesResult, error)

	// GetChampionMap returns the champion catalog of the live patch
	GetChampionMap(ctx context.Context) (*ChampionMapResult, error)

	// GetRuneTree returns the reforged rune tree of the live patch
	GetRuneTree(ctx context.Context) (*RuneTreeResult, error)
}

// CatalogMirror is the view of the Data Dragon mirror the facade depends on
type CatalogMirror interface {
	CurrentVersion(ctx context.Context) (string, error)
	LastKnownVersion() string
	LiveVersion() string
	FetchChampionMap(ctx context.Context) (*catalog.ChampionMap, error)
	FetchRuneTree(ctx context.Context) (*catalog.RuneTree, error)
}

// Result carries a value together with its cache metadata
type Result[V any] struct {
	Value V
	// Patch is the patch version the value was fetched under; empty when unknown
	Patch     string
	FetchedAt time.Time
	// Stale is set when the value is served after a failed refresh
	Stale bool
}

// BuildResult is the result of GetLatestBuild
type BuildResult = Result[*guide.Build]

// RunesResult is the result of GetRunes
type RunesResult = Result[*guide.RuneSelection]

// ChampionMapResult is the result of GetChampionMap
type ChampionMapResult = Result[*catalog.ChampionMap]

// RuneTreeResult is the result of GetRuneTree
type RuneTreeResult = Result[*catalog.RuneTree]
