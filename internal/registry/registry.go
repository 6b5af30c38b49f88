package registry

import (
	"fmt"
	"sort"
	"sync"
)

// Module is implemented by every built-in module package.
type Module interface {
	Register(r *Registry)
}

// Registry holds every registered version of every module kind. It is safe
// for concurrent use; writers are expected only during startup and hot reload.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string][]*Descriptor
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{kinds: make(map[string][]*Descriptor)}
}

// Register adds the first version of a kind. It fails with ErrDuplicateKind
// when the kind name is already present. A malformed descriptor is a
// programming error and panics.
func (r *Registry) Register(d Descriptor) (*Descriptor, error) {
	stored := d.clone()
	stored.Version = 1
	if err := validate(stored); err != nil {
		panic(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.kinds[d.Kind]; exists {
		return nil, fmt.Errorf("register %q: %w", d.Kind, ErrDuplicateKind)
	}
	r.kinds[d.Kind] = []*Descriptor{stored}
	return stored, nil
}

// MustRegister is Register for module init code, where a duplicate kind is a
// programming error.
func (r *Registry) MustRegister(d Descriptor) *Descriptor {
	stored, err := r.Register(d)
	if err != nil {
		panic(err)
	}
	return stored
}

// Replace appends the next version of an existing kind. Tasks already
// started keep the version they resolved.
func (r *Registry) Replace(d Descriptor) (*Descriptor, error) {
	stored := d.clone()
	if err := validate(stored); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	versions, exists := r.kinds[d.Kind]
	if !exists {
		return nil, fmt.Errorf("replace %q: %w", d.Kind, ErrUnknownKind)
	}
	stored.Version = versions[len(versions)-1].Version + 1
	r.kinds[d.Kind] = append(versions, stored)
	return stored, nil
}

// Resolve returns the latest version of kind.
func (r *Registry) Resolve(kind string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions, ok := r.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("resolve %q: %w", kind, ErrUnknownKind)
	}
	return versions[len(versions)-1], nil
}

// ResolveVersion returns a specific version of kind.
func (r *Registry) ResolveVersion(kind string, version int) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions, ok := r.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("resolve %q: %w", kind, ErrUnknownKind)
	}
	for _, d := range versions {
		if d.Version == version {
			return d, nil
		}
	}
	return nil, fmt.Errorf("resolve %q version %d: %w", kind, version, ErrUnknownKind)
}

// Kinds returns the latest descriptor of every kind, sorted by name.
func (r *Registry) Kinds() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, 0, len(r.kinds))
	for _, versions := range r.kinds {
		out = append(out, versions[len(versions)-1])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Load registers every module in mods.
func (r *Registry) Load(mods ...Module) {
	for _, m := range mods {
		m.Register(r)
	}
}
