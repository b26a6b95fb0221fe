// Package watcher turns filesystem changes below the source roots into
// step re-runs.
//
// Raw fsnotify events are filtered, classified by source root, coalesced
// per path and queued on a bounded channel. A single Dispatcher drains the
// queue, applies cache invalidation for deletions and re-runs each
// category's step, never more than one run per category at a time.
package watcher

import (
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

// Event is a coalesced change to one source path.
type Event struct {
	Path     string
	Kind     site.EventKind
	Category site.Category
}

// Classifier maps paths to the category of the source root containing them.
type Classifier struct {
	roots []root
}

type root struct {
	dir      string
	category site.Category
}

// NewClassifier builds a classifier over roots. Nested roots win over
// their parents, so components inside the pages root stay markup sources
// even when pages and components are configured separately.
func NewClassifier(roots map[string]site.Category) *Classifier {
	c := &Classifier{}
	for dir, cat := range roots {
		c.roots = append(c.roots, root{dir: filepath.Clean(dir), category: cat})
	}
	sort.Slice(c.roots, func(i, j int) bool { return len(c.roots[i].dir) > len(c.roots[j].dir) })
	return c
}

// Classify returns the category of path, or false outside every root.
func (c *Classifier) Classify(path string) (site.Category, bool) {
	path = filepath.Clean(path)
	for _, r := range c.roots {
		if path == r.dir || strings.HasPrefix(path, r.dir+string(filepath.Separator)) {
			return r.category, true
		}
	}
	return "", false
}

// Dirs returns the root directories.
func (c *Classifier) Dirs() []string {
	dirs := make([]string, 0, len(c.roots))
	for _, r := range c.roots {
		dirs = append(dirs, r.dir)
	}
	sort.Strings(dirs)
	return dirs
}

// Ignored reports whether a change to path is noise: hidden files,
// editor swap and backup files, OS metadata.
func Ignored(path string) bool {
	base := filepath.Base(path)
	switch {
	case strings.HasPrefix(base, "."):
		return true
	case strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".swx"),
		strings.HasSuffix(base, ".tmp"),
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"):
		return true
	case base == "Thumbs.db", base == "4913": // vim's write probe
		return true
	}
	return false
}

// merge combines a pending kind with a newer one for the same path.
func merge(prev, next site.EventKind) site.EventKind {
	switch {
	case prev == site.Deleted && next != site.Deleted:
		// Atomic saves delete (or rename away) and recreate.
		return site.Changed
	case prev == site.Added && next == site.Changed:
		return site.Added
	default:
		return next
	}
}
