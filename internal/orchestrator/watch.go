package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/sitebuilder/internal/devserver"
	"git.home.luguber.info/inful/sitebuilder/internal/watcher"
)

// Watch builds once and then, until ctx is cancelled, re-runs steps on
// source changes while the dev server serves the output root. A failed
// initial build ends Watch; later step failures are logged and watching
// continues.
func (o *Orchestrator) Watch(ctx context.Context) error {
	if _, err := o.Build(ctx); err != nil {
		return err
	}

	w, err := watcher.New(watcher.Options{
		Roots:     o.cfg.SourceRoots(),
		Debounce:  o.cfg.Watch.Debounce,
		QueueSize: o.cfg.Watch.QueueSize,
		Logger:    o.logger,
	})
	if err != nil {
		return err
	}
	dispatcher := watcher.NewDispatcher(o, o.logger)
	server := devserver.New(devserver.Options{
		Root:           o.cfg.Paths.Output,
		Addr:           o.cfg.Server.Addr(),
		LiveReload:     o.cfg.Server.LiveReloadEnabled(),
		ReloadDebounce: o.cfg.Server.ReloadDebounce,
		Metrics:        o.metrics,
		Observer:       o.recorder,
		Logger:         o.logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	var sched *watcher.RebuildScheduler
	if interval := o.cfg.Watch.FullRebuildInterval; interval > 0 {
		sched, err = watcher.NewRebuildScheduler(interval, func() {
			dispatcher.RebuildAll(gctx, o.Categories()...)
		}, o.logger)
		if err != nil {
			_ = w.Close()
			return err
		}
	}

	o.setState(StateWatching)
	o.logger.Info("Watching for changes", "roots", len(o.cfg.SourceRoots()))

	g.Go(func() error { return w.Run(gctx) })
	g.Go(func() error { return dispatcher.Run(gctx, w.Events()) })
	g.Go(func() error { return server.Run(gctx) })
	if sched != nil {
		sched.Start()
		g.Go(func() error {
			<-gctx.Done()
			return sched.Stop()
		})
	}

	err = g.Wait()
	o.setState(StateIdle)
	return err
}
