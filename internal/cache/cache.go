// Package cache implements the per-category transformation caches.
//
// A Cache pairs a content-addressed entry map with an ordered accumulation
// list: the entry map decides which sources need reprocessing, the list
// decides which results are emitted and in which order. Both always hold
// the same set of paths. Evicting a path records the output files its
// entry produced as orphans; the owning step drains and deletes them.
package cache

import (
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"git.home.luguber.info/inful/sitebuilder/internal/fsutil"
)

// Entry is the cached result of transforming one source.
type Entry struct {
	// Deps maps every file that contributed to the result (the source
	// itself included) to its content hash at processing time.
	Deps map[string]string
	// Output is the transformed content; Map an optional source map.
	Output []byte
	Map    []byte
	// Outputs lists files written for this entry, relative to the output root.
	Outputs []string
}

// Cache is safe for concurrent use.
type Cache struct {
	name string

	mu      sync.Mutex
	entries map[string]*Entry
	order   []string
	orphans []string
}

// New returns an empty cache.
func New(name string) *Cache {
	return &Cache{name: name, entries: make(map[string]*Entry)}
}

func (c *Cache) Name() string { return c.name }

// Get returns the entry for path.
func (c *Cache) Get(path string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[path]
	return e, ok
}

// Fresh reports whether path has an entry whose dependencies all still hash
// to the recorded values. Unreadable dependencies make the entry stale.
func (c *Cache) Fresh(path string) bool {
	c.mu.Lock()
	e, ok := c.entries[path]
	var deps map[string]string
	if ok {
		deps = maps.Clone(e.Deps)
	}
	c.mu.Unlock()
	if !ok || len(deps) == 0 {
		return false
	}
	for dep, want := range deps {
		got, err := fsutil.HashFile(dep)
		if err != nil || got != want {
			return false
		}
	}
	return true
}

// Put stores the entry for path and remembers path at the end of the
// accumulation list when it is new. Outputs from a replaced entry that the
// new entry no longer produces become orphans.
func (c *Cache) Put(path string, e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entries[path]; ok {
		for _, out := range old.Outputs {
			if !slices.Contains(e.Outputs, out) {
				c.orphans = append(c.orphans, out)
			}
		}
	} else {
		c.order = append(c.order, path)
	}
	c.entries[path] = e
}

// SetOutputs records the files written for path's entry.
func (c *Cache) SetOutputs(path string, outputs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[path]; ok {
		e.Outputs = slices.Clone(outputs)
	}
}

// Remembered returns the accumulated paths in insertion order.
func (c *Cache) Remembered() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.order)
}

// Forget evicts path from the entries and the accumulation list. It
// reports whether the path was cached.
func (c *Cache) Forget(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.forgetLocked(path)
}

// ForgetTree evicts every cached path equal to or below dir and returns the
// evicted paths in accumulation order.
func (c *Cache) ForgetTree(dir string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	sep := string(filepath.Separator)
	prefix := strings.TrimSuffix(dir, sep) + sep
	var evicted []string
	for _, p := range slices.Clone(c.order) {
		if p == dir || strings.HasPrefix(p, prefix) {
			c.forgetLocked(p)
			evicted = append(evicted, p)
		}
	}
	return evicted
}

// Reset evicts everything.
func (c *Cache) Reset() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.order)
	for _, p := range slices.Clone(c.order) {
		c.forgetLocked(p)
	}
	return n
}

func (c *Cache) forgetLocked(path string) bool {
	e, ok := c.entries[path]
	if !ok {
		return false
	}
	delete(c.entries, path)
	c.order = slices.DeleteFunc(c.order, func(p string) bool { return p == path })
	c.orphans = append(c.orphans, e.Outputs...)
	return true
}

// DrainOrphans returns and clears the outputs of evicted entries.
func (c *Cache) DrainOrphans() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.orphans
	c.orphans = nil
	return out
}

// Len returns the number of cached paths.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Consistent reports whether the entry map and the accumulation list hold
// exactly the same paths, each once.
func (c *Cache) Consistent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.order) != len(c.entries) {
		return false
	}
	seen := make(map[string]bool, len(c.order))
	for _, p := range c.order {
		if seen[p] {
			return false
		}
		seen[p] = true
		if _, ok := c.entries[p]; !ok {
			return false
		}
	}
	return true
}
