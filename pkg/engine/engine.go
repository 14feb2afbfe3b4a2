// Package engine defines the URL sources that feed the downloader: each
// engine turns a search query (or page URL) into a sequence of candidate
// image URLs. Site-specific parsing stays inside the engine packages; the
// driver only depends on this interface.
package engine

import (
	"context"
	"fmt"
	"strings"
)

// Candidate is an image URL proposed for download, before dedup and
// filtering. Name is an optional suggested filename; Width and Height are
// the declared resolution when the source exposes one (zero means unknown).
type Candidate struct {
	URL     string
	Name    string
	Referer string
	Width   int
	Height  int
}

// Engine produces candidate image URLs for a query. Implementations must be
// safe to use for multiple queries but need not be safe for concurrent use.
type Engine interface {
	Name() string
	Candidates(ctx context.Context, query string, limit int) ([]Candidate, error)
}

// Registry is a read-only lookup of engines by name.
type Registry struct {
	byName map[string]Engine
}

// NewRegistry builds a registry from the given engines. Names must be
// non-empty and unique.
func NewRegistry(engines ...Engine) (Registry, error) {
	byName := make(map[string]Engine, len(engines))
	for _, e := range engines {
		if e == nil {
			return Registry{}, fmt.Errorf("engine must not be nil")
		}
		name := strings.ToLower(strings.TrimSpace(e.Name()))
		if name == "" {
			return Registry{}, fmt.Errorf("engine name must not be empty")
		}
		if _, ok := byName[name]; ok {
			return Registry{}, fmt.Errorf("duplicate engine: %q", name)
		}
		byName[name] = e
	}
	return Registry{byName: byName}, nil
}

// Get looks up an engine by name, case-insensitively.
func (r Registry) Get(name string) (Engine, bool) {
	if r.byName == nil {
		return nil, false
	}
	e, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return e, ok
}
