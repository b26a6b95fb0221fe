package eventstore

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/sitebuilder/internal/events"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// Record writes lifecycle events from ch into store until ch is closed.
// Storage failures are logged; history is best effort and never fails a
// build.
func Record(ctx context.Context, store Store, ch <-chan events.Event, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for evt := range ch {
		var err error
		switch e := evt.(type) {
		case events.StepFinished:
			err = store.AppendStep(ctx, StepRecord{
				BuildID:    e.BuildID,
				Step:       e.Category.Step(),
				Report:     e.Report,
				FinishedAt: e.At,
				Duration:   e.Duration,
				Err:        e.Err,
			})
		case events.BuildFinished:
			err = store.AppendBuild(ctx, BuildRecord{
				ID:         e.BuildID,
				Mode:       e.Mode,
				Revision:   e.Revision,
				FinishedAt: e.At,
				Duration:   e.Duration,
				Err:        e.Err,
			})
		}
		if err != nil {
			logger.Warn("Failed to record build history",
				logfields.Event(evt.EventName()),
				logfields.Error(err))
		}
	}
}
