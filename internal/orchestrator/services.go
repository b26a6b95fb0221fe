package orchestrator

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/events"
	"git.home.luguber.info/inful/sitebuilder/internal/eventstore"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/notify"
)

// Services are the lifecycle event consumers enabled by configuration:
// metrics, build history and build notifications.
type Services struct {
	Bus      *events.Bus
	Recorder metrics.Recorder
	// Metrics serves the Prometheus registry; nil when metrics are disabled.
	Metrics http.Handler

	store    eventstore.Store
	notifier notify.Notifier
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewServices opens the configured history store and notifier.
func NewServices(cfg *config.Config, logger *slog.Logger) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Services{
		Bus:      events.NewBus(),
		Recorder: metrics.NoopRecorder{},
		notifier: notify.Noop{},
		logger:   logger,
	}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		s.Recorder = metrics.NewPrometheusRecorder(reg)
		s.Metrics = metrics.Handler(reg)
	}
	if cfg.History.Enabled {
		store, err := eventstore.NewSQLiteStore(cfg.History.Path)
		if err != nil {
			return nil, err
		}
		s.store = store
	}
	if cfg.Notify.NATSURL != "" {
		n, err := notify.NewNATSNotifier(cfg.Notify.NATSURL, cfg.Notify.Subject)
		if err != nil {
			// Notifications are best effort; a missing broker must not block builds.
			logger.Warn("Build notifications disabled", "url", cfg.Notify.NATSURL, "error", err)
		} else {
			s.notifier = n
		}
	}
	return s, nil
}

// Start subscribes every consumer to the bus.
func (s *Services) Start(ctx context.Context) {
	all, _ := events.Subscribe[events.Event](s.Bus, 64)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for evt := range all {
			metrics.Record(s.Recorder, evt)
		}
	}()

	if s.store != nil {
		history, _ := events.Subscribe[events.Event](s.Bus, 64)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			eventstore.Record(context.WithoutCancel(ctx), s.store, history, s.logger)
		}()
	}

	builds, _ := events.Subscribe[events.BuildFinished](s.Bus, 16)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		notify.Forward(context.WithoutCancel(ctx), s.notifier, builds, s.logger)
	}()
}

// Close ends every subscription, waits for queued events to be consumed
// and releases the store and the broker connection.
func (s *Services) Close() error {
	s.Bus.Close()
	s.wg.Wait()
	s.notifier.Close()
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}
