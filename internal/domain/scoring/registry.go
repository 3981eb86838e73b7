package scoring

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry holds every published version of every model. Versions are
// append-only; publishing assigns the next version number and existing
// versions are never touched, so any historical score stays reproducible.
type Registry struct {
	mu       sync.RWMutex
	versions map[string][]Model
}

// NewRegistry creates an empty model registry.
func NewRegistry() *Registry {
	return &Registry{versions: make(map[string][]Model)}
}

// Publish validates m, assigns the next version for its name and stores
// it. The stored model (with version and timestamp filled in) is
// returned.
func (r *Registry) Publish(m Model) (Model, error) {
	m = m.normalized()
	if err := m.Validate(); err != nil {
		return Model{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m.Version = len(r.versions[m.Name]) + 1
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	// Deep-copy factors so callers cannot mutate a published version.
	factors := make([]Factor, len(m.Factors))
	copy(factors, m.Factors)
	m.Factors = factors

	r.versions[m.Name] = append(r.versions[m.Name], m)
	return m, nil
}

// Current returns the highest published version of name.
func (r *Registry) Current(name string) (Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	vs := r.versions[name]
	if len(vs) == 0 {
		return Model{}, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	return vs[len(vs)-1], nil
}

// Version returns one specific published version of name.
func (r *Registry) Version(name string, version int) (Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	vs := r.versions[name]
	if version < 1 || version > len(vs) {
		return Model{}, fmt.Errorf("%w: %s v%d", ErrModelNotFound, name, version)
	}
	return vs[version-1], nil
}

// Versions returns all published versions of name, oldest first.
func (r *Registry) Versions(name string) ([]Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	vs := r.versions[name]
	if len(vs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	out := make([]Model, len(vs))
	copy(out, vs)
	return out, nil
}

// Names lists registered model names, sorted for stable iteration.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.versions))
	for name := range r.versions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
