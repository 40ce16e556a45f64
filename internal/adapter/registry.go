package adapter

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sync"

	"reelbar/internal/dom"
	"reelbar/internal/engine"
	"reelbar/internal/logging"
)

type entry struct {
	def      Definition
	patterns []*regexp.Regexp
}

// Registry is the ordered set of known page kinds.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
}

// NewRegistry builds a registry from definitions. A later definition replaces an
// earlier one of the same kind in place.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{}
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// BuiltinRegistry contains the page kinds reelbar ships with.
func BuiltinRegistry() *Registry {
	r, err := NewRegistry(YouTubeShorts())
	if err != nil {
		panic(err)
	}
	return r
}

// Register adds or replaces a definition.
func (r *Registry) Register(d Definition) error {
	patterns, err := d.Validate()
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].def.Kind == d.Kind {
			r.entries[i] = entry{def: d, patterns: patterns}
			return nil
		}
	}
	r.entries = append(r.entries, entry{def: d, patterns: patterns})
	return nil
}

// Definitions returns all definitions in registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.def)
	}
	return out
}

// Get returns the definition for a kind.
func (r *Registry) Get(kind string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.def.Kind == kind {
			return e.def, nil
		}
	}
	return Definition{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
}

// Match returns every definition with a pattern matching url, in registration order.
func (r *Registry) Match(url string) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Definition
	for _, e := range r.entries {
		for _, p := range e.patterns {
			if p.MatchString(url) {
				out = append(out, e.def)
				break
			}
		}
	}
	return out
}

// Bind builds one page adapter per registered definition over host, in
// registration order.
func (r *Registry) Bind(host dom.Host) ([]engine.PageAdapter, error) {
	defs := r.Definitions()
	out := make([]engine.PageAdapter, 0, len(defs))
	for _, d := range defs {
		s, err := New(d, host)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Reload replaces the registry contents with the built-ins overlaid by the
// definitions in path. A missing file leaves only the built-ins.
func (r *Registry) Reload(path string) error {
	fresh := BuiltinRegistry()
	if path != "" {
		defs, err := LoadFile(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		for _, d := range defs {
			if err := fresh.Register(d); err != nil {
				return err
			}
		}
	}

	fresh.mu.RLock()
	entries := fresh.entries
	fresh.mu.RUnlock()

	r.mu.Lock()
	r.entries = entries
	r.mu.Unlock()
	logging.Adapter("registry reloaded: %d page kinds", len(entries))
	return nil
}
