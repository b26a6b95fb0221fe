package watcher

import (
	"sync"
	"time"
)

// coalescer delays each path's event until the path has been quiet for
// the debounce window, merging the kinds seen in between.
type coalescer struct {
	debounce time.Duration
	out      chan<- Event
	done     <-chan struct{}

	mu      sync.Mutex
	pending map[string]*pendingEvent
}

type pendingEvent struct {
	event Event
	timer *time.Timer
}

func newCoalescer(debounce time.Duration, out chan<- Event, done <-chan struct{}) *coalescer {
	return &coalescer{debounce: debounce, out: out, done: done, pending: make(map[string]*pendingEvent)}
}

func (c *coalescer) add(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pending[ev.Path]; ok {
		p.event.Kind = merge(p.event.Kind, ev.Kind)
		p.timer.Reset(c.debounce)
		return
	}
	path := ev.Path
	c.pending[path] = &pendingEvent{
		event: ev,
		timer: time.AfterFunc(c.debounce, func() { c.flush(path) }),
	}
}

// flush queues the path's event. A full queue blocks until the dispatcher
// catches up; deletions must not be dropped.
func (c *coalescer) flush(path string) {
	c.mu.Lock()
	p, ok := c.pending[path]
	if ok {
		delete(c.pending, path)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case c.out <- p.event:
	case <-c.done:
	}
}

// stop cancels every pending timer.
func (c *coalescer) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for path, p := range c.pending {
		p.timer.Stop()
		delete(c.pending, path)
	}
}
