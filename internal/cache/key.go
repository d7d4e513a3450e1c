// Package cache implements the versioned cache that sits in front of every
// upstream fetch: per-key request coalescing, an LRU size bound and
// invalidation when the live patch version advances.
package cache

import "fmt"

// Kind distinguishes the families of cached values
type Kind string

// Cached value kinds
const (
	KindBuild       Kind = "build"
	KindChampionMap Kind = "champion-map"
	KindRuneTree    Kind = "rune-tree"
)

// Key identifies one cache entry
type Key struct {
	Kind     Kind
	Source   string
	Champion string
}

// BuildKey returns the key of a (source, champion) build
func BuildKey(source, champion string) Key {
	return Key{Kind: KindBuild, Source: source, Champion: champion}
}

// CatalogKey returns the key of a catalog document
func CatalogKey(kind Kind) Key {
	return Key{Kind: kind}
}

// String returns a stable textual form, also used as the flight key
func (k Key) String() string {
	if k.Kind == KindBuild {
		return fmt.Sprintf("%s/%s/%s", k.Kind, k.Source, k.Champion)
	}
	return fmt.Sprintf("catalog/%s", k.Kind)
}
