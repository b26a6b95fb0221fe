package cache

import (
	"log/slog"

	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

// EvictionObserver is told how many paths each eviction removed.
type EvictionObserver interface {
	CacheEvicted(cacheName string, n int)
}

// Invalidator keeps caches in step with source deletions.
type Invalidator struct {
	registry *Registry
	observer EvictionObserver
	logger   *slog.Logger
}

// NewInvalidator returns an invalidator over r. observer may be nil.
func NewInvalidator(r *Registry, observer EvictionObserver, logger *slog.Logger) *Invalidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invalidator{registry: r, observer: observer, logger: logger}
}

// Handle applies a watch event to the named cache. Only deletions evict;
// additions and changes are picked up by content hashing on the next run.
// A deleted directory evicts every cached path below it. Handle returns
// the evicted paths.
func (i *Invalidator) Handle(kind site.EventKind, path, cacheName string) []string {
	if kind != site.Deleted {
		return nil
	}
	c, ok := i.registry.Lookup(cacheName)
	if !ok {
		return nil
	}
	evicted := c.ForgetTree(path)
	if len(evicted) == 0 {
		return nil
	}
	i.logger.Debug("Evicted cache entries",
		slog.String("cache", cacheName),
		logfields.Path(path),
		slog.Int("count", len(evicted)))
	if i.observer != nil {
		i.observer.CacheEvicted(cacheName, len(evicted))
	}
	return evicted
}
