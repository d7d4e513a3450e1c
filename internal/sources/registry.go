package sources

import (
	"fmt"
	"slices"
)

// Registry maps source ids onto adapters. It is immutable after construction.
type Registry struct {
	ids     []string
	sources map[string]BuildSource
}

// NewRegistry creates a registry enumerating srcs in the given order
func NewRegistry(srcs ...BuildSource) (*Registry, error) {
	r := &Registry{
		ids:     make([]string, 0, len(srcs)),
		sources: make(map[string]BuildSource, len(srcs)),
	}
	for i, src := range srcs {
		if src == nil {
			return nil, fmt.Errorf("source[%d] is nil", i)
		}
		id := src.ID()
		if id == "" {
			return nil, fmt.Errorf("source[%d] has an empty id", i)
		}
		if _, dup := r.sources[id]; dup {
			return nil, fmt.Errorf("source[%d]: duplicate source id '%s'", i, id)
		}
		r.ids = append(r.ids, id)
		r.sources[id] = src
	}
	return r, nil
}

// Get returns the adapter registered under id
func (r *Registry) Get(id string) (BuildSource, bool) {
	src, ok := r.sources[id]
	return src, ok
}

// IDs returns the registered source ids in registration order
func (r *Registry) IDs() []string {
	return slices.Clone(r.ids)
}

// Len returns the number of registered sources
func (r *Registry) Len() int {
	return len(r.ids)
}
