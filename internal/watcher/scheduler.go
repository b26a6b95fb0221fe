package watcher

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// RebuildScheduler periodically requests a full rebuild, which resets the
// caches and so recovers from any drift between caches and sources.
type RebuildScheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

// NewRebuildScheduler schedules fn every interval. Runs never overlap.
func NewRebuildScheduler(interval time.Duration, fn func(), logger *slog.Logger) (*RebuildScheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			logger.Info("Scheduled full rebuild")
			fn()
		}),
		gocron.WithName("full-rebuild"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("failed to create full rebuild job: %w", err)
	}
	return &RebuildScheduler{scheduler: s, logger: logger}, nil
}

// Start begins the schedule.
func (r *RebuildScheduler) Start() { r.scheduler.Start() }

// Stop shuts the scheduler down, waiting for a running job.
func (r *RebuildScheduler) Stop() error { return r.scheduler.Shutdown() }
