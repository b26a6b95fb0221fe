// Package orchestrator wires the build steps into a task graph and runs
// it, once for a build and continuously in watch mode.
//
// The orchestrator owns the cache registry. Steps receive their cache at
// construction; the watcher's dispatcher reaches the caches only through
// Invalidate and ResetCache.
package orchestrator

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"git.home.luguber.info/inful/sitebuilder/internal/assets"
	"git.home.luguber.info/inful/sitebuilder/internal/cache"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/events"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/icons"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/markup"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/scripts"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
	"git.home.luguber.info/inful/sitebuilder/internal/styles"
)

// State is the orchestrator's lifecycle position.
type State string

const (
	StateIdle     State = "idle"
	StateCleaning State = "cleaning"
	StateBuilding State = "building"
	StateReady    State = "ready"
	StateWatching State = "watching"
	StateFailed   State = "failed"
)

// Step is one build step.
type Step interface {
	Run(ctx context.Context) (site.Report, error)
}

// Options configures an Orchestrator.
type Options struct {
	Config *config.Config
	// Bus receives StepFinished and BuildFinished events; may be nil.
	Bus      *events.Bus
	Recorder metrics.Recorder
	// Metrics is mounted on the dev server in watch mode; may be nil.
	Metrics http.Handler
	Logger  *slog.Logger
}

// Orchestrator runs the build steps for one configuration.
type Orchestrator struct {
	cfg         *config.Config
	registry    *cache.Registry
	invalidator *cache.Invalidator
	steps       map[site.Category]Step
	order       []site.Category
	bus         *events.Bus
	recorder    metrics.Recorder
	metrics     http.Handler
	logger      *slog.Logger

	mu    sync.Mutex
	state State
}

// New constructs every configured step with its cache.
func New(opts Options) (*Orchestrator, error) {
	if opts.Config == nil {
		return nil, ferrors.InternalError("orchestrator requires a configuration").Build()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	cfg := opts.Config

	o := &Orchestrator{
		cfg:      cfg,
		registry: cache.NewRegistry(string(site.CategoryStyles), string(site.CategoryScript), string(site.CategoryIcons)),
		steps:    make(map[site.Category]Step),
		bus:      opts.Bus,
		recorder: opts.Recorder,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		state:    StateIdle,
	}
	o.invalidator = cache.NewInvalidator(o.registry, opts.Recorder, opts.Logger)

	o.add(site.CategoryStatic, assets.New(assets.Options{
		Name:   site.CategoryStatic.Step(),
		Root:   cfg.Paths.Static,
		Output: cfg.Paths.Output,
		Logger: o.logger,
	}))

	o.add(site.CategoryMarkup, markup.New(markup.Options{
		Root:       cfg.Paths.Pages,
		Components: cfg.Paths.Components,
		Output:     cfg.Paths.Output,
		Mode:       markup.Mode(cfg.Markup.Mode),
		Extensions: cfg.Markup.Extensions,
		Markdown:   cfg.Markup.MarkdownEnabled(),
		Env:        cfg.Mode,
		Site:       cfg.Site,
		Logger:     o.logger,
	}))

	st, err := styles.New(styles.Options{
		Root:         cfg.Paths.Styles,
		Output:       cfg.Paths.Output,
		Mode:         cfg.Mode,
		InlineFilter: cfg.Styles.InlineFilter,
		Browsers:     cfg.Styles.Browsers,
		OutputMode:   styles.OutputMode(cfg.Styles.Output),
		Bundle:       cfg.Styles.Bundle,
		Logger:       o.logger,
	}, o.registry.Get(string(site.CategoryStyles)))
	if err != nil {
		return nil, err
	}
	o.add(site.CategoryStyles, st)

	sc, err := scripts.New(scripts.Options{
		Root:   cfg.Paths.Scripts,
		Output: cfg.Paths.Output,
		Env:    cfg.Mode,
		Mode:   scripts.Mode(cfg.Scripts.Mode),
		Target: cfg.Scripts.Target,
		Logger: o.logger,
	}, o.registry.Get(string(site.CategoryScript)))
	if err != nil {
		return nil, err
	}
	o.add(site.CategoryScript, sc)

	if cfg.Icons.Enabled {
		o.add(site.CategoryIcons, icons.New(icons.Options{
			Root:      cfg.Paths.Icons,
			Output:    cfg.Paths.Output,
			Env:       cfg.Mode,
			Separator: cfg.Icons.Separator,
			Sprite:    cfg.Icons.Sprite,
			Logger:    o.logger,
		}, o.registry.Get(string(site.CategoryIcons))))
	}
	return o, nil
}

func (o *Orchestrator) add(cat site.Category, s Step) {
	o.steps[cat] = s
	o.order = append(o.order, cat)
}

// Categories returns the configured step categories in graph order.
func (o *Orchestrator) Categories() []site.Category {
	return append([]site.Category(nil), o.order...)
}

// Registry returns the cache registry.
func (o *Orchestrator) Registry() *cache.Registry { return o.registry }

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	prev := o.state
	o.state = s
	o.mu.Unlock()
	if prev != s {
		o.logger.Debug("Orchestrator state", slog.String("from", string(prev)), slog.String("to", string(s)))
	}
}

// Invalidate applies a source event to the category's cache.
func (o *Orchestrator) Invalidate(cat site.Category, kind site.EventKind, path string) {
	if !cat.Cached() {
		return
	}
	o.invalidator.Handle(kind, path, string(cat))
}

// ResetCache empties the category's cache; its next run rebuilds every output.
func (o *Orchestrator) ResetCache(cat site.Category) {
	c, ok := o.registry.Lookup(string(cat))
	if !ok {
		return
	}
	if n := c.Reset(); n > 0 {
		o.recorder.CacheEvicted(string(cat), n)
	}
}

func (o *Orchestrator) publish(ctx context.Context, evt events.Event) {
	if o.bus == nil {
		return
	}
	if err := o.bus.Publish(ctx, evt); err != nil {
		o.logger.Debug("Event not published", logfields.Event(evt.EventName()), logfields.Error(err))
	}
}
