package watcher

import (
	"context"
	"log/slog"
	"sync"

	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

// Runner is what the dispatcher drives; the orchestrator implements it.
type Runner interface {
	// Invalidate applies a deletion to the category's cache.
	Invalidate(cat site.Category, kind site.EventKind, path string)
	// ResetCache empties the category's cache before a full rebuild.
	ResetCache(cat site.Category)
	// RunStep runs the category's step once.
	RunStep(ctx context.Context, cat site.Category) error
}

// Dispatcher serializes step re-runs per category. A trigger that arrives
// while the category runs sets a pending flag; however many arrive, they
// produce exactly one follow-up run. Deletions collected in the meantime
// are applied right before that run, so a step never sees its cache
// change underneath it.
type Dispatcher struct {
	runner Runner
	logger *slog.Logger

	mu     sync.Mutex
	states map[site.Category]*categoryState
	wg     sync.WaitGroup
}

type categoryState struct {
	running bool
	pending bool
	reset   bool
	deletes []string
}

// NewDispatcher returns a Dispatcher driving runner.
func NewDispatcher(runner Runner, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{runner: runner, logger: logger, states: make(map[site.Category]*categoryState)}
}

// Run consumes events until ctx is cancelled and in-flight runs finish.
func (d *Dispatcher) Run(ctx context.Context, events <-chan Event) error {
	defer d.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			d.Dispatch(ctx, ev)
		}
	}
}

// Dispatch handles one event.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	d.mu.Lock()
	st := d.state(ev.Category)
	if ev.Kind == site.Deleted && ev.Category.Cached() {
		st.deletes = append(st.deletes, ev.Path)
	}
	d.mu.Unlock()
	d.trigger(ctx, ev.Category)
}

// RebuildAll resets the caches of cats and re-runs their steps.
func (d *Dispatcher) RebuildAll(ctx context.Context, cats ...site.Category) {
	d.mu.Lock()
	for _, cat := range cats {
		st := d.state(cat)
		if cat.Cached() {
			st.reset = true
		}
	}
	d.mu.Unlock()
	for _, cat := range cats {
		d.trigger(ctx, cat)
	}
}

// Wait blocks until no run is in flight.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) state(cat site.Category) *categoryState {
	st, ok := d.states[cat]
	if !ok {
		st = &categoryState{}
		d.states[cat] = st
	}
	return st
}

func (d *Dispatcher) trigger(ctx context.Context, cat site.Category) {
	d.mu.Lock()
	st := d.state(cat)
	if st.running {
		st.pending = true
		d.mu.Unlock()
		return
	}
	st.running = true
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		d.loop(ctx, cat)
	}()
}

func (d *Dispatcher) loop(ctx context.Context, cat site.Category) {
	for {
		d.mu.Lock()
		st := d.states[cat]
		deletes, reset := st.deletes, st.reset
		st.deletes, st.reset, st.pending = nil, false, false
		d.mu.Unlock()

		if reset {
			d.runner.ResetCache(cat)
		}
		for _, path := range deletes {
			d.runner.Invalidate(cat, site.Deleted, path)
		}

		if ctx.Err() == nil {
			if err := d.runner.RunStep(ctx, cat); err != nil {
				d.logger.Error("Step failed; waiting for the next change",
					logfields.Category(string(cat)),
					logfields.Error(err))
			}
		}

		d.mu.Lock()
		if st.pending && ctx.Err() == nil {
			d.mu.Unlock()
			continue
		}
		st.running = false
		d.mu.Unlock()
		return
	}
}
