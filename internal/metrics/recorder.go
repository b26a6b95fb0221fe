// Package metrics records build metrics.
//
// Components receive a Recorder. NoopRecorder is the default and costs
// nothing; PrometheusRecorder is installed when metrics are enabled and
// is scraped through the dev server's /__metrics endpoint.
package metrics

import (
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/events"
)

// ResultLabel enumerates step outcomes for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
	ResultSkipped ResultLabel = "skipped"
)

// Recorder receives build observations.
type Recorder interface {
	ObserveStepDuration(step string, d time.Duration)
	IncStepResult(step string, result ResultLabel)
	AddFilesWritten(step string, n int)
	ObserveBuildDuration(d time.Duration)
	IncBuildOutcome(outcome ResultLabel)
	CacheEvicted(cache string, n int)
	IncReload()
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) ObserveStepDuration(string, time.Duration) {}
func (NoopRecorder) IncStepResult(string, ResultLabel)         {}
func (NoopRecorder) AddFilesWritten(string, int)               {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)        {}
func (NoopRecorder) IncBuildOutcome(ResultLabel)               {}
func (NoopRecorder) CacheEvicted(string, int)                  {}
func (NoopRecorder) IncReload()                                {}

// Record translates a lifecycle event into observations.
func Record(r Recorder, evt events.Event) {
	switch e := evt.(type) {
	case events.StepFinished:
		step := e.Category.Step()
		r.ObserveStepDuration(step, e.Duration)
		if e.Succeeded() {
			r.IncStepResult(step, ResultSuccess)
		} else {
			r.IncStepResult(step, ResultFailed)
		}
		r.AddFilesWritten(step, e.Report.Written)
	case events.BuildFinished:
		r.ObserveBuildDuration(e.Duration)
		if e.Succeeded() {
			r.IncBuildOutcome(ResultSuccess)
		} else {
			r.IncBuildOutcome(ResultFailed)
		}
	}
}
