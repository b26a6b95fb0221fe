package cache

import (
	"slices"
	"sync"
)

// Registry owns one Cache per name. The orchestrator creates it and hands
// each step its cache.
type Registry struct {
	mu     sync.Mutex
	caches map[string]*Cache
}

// NewRegistry returns a registry with the named caches created up front.
func NewRegistry(names ...string) *Registry {
	r := &Registry{caches: make(map[string]*Cache, len(names))}
	for _, n := range names {
		r.caches[n] = New(n)
	}
	return r
}

// Get returns the named cache, creating it on first use.
func (r *Registry) Get(name string) *Cache {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.caches[name]
	if !ok {
		c = New(name)
		r.caches[name] = c
	}
	return c
}

// Lookup returns the named cache without creating it.
func (r *Registry) Lookup(name string) (*Cache, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.caches[name]
	return c, ok
}

// Names returns the registered cache names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.caches))
	for n := range r.caches {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
