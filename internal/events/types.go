package events

import (
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

// Event is implemented by every lifecycle event so consumers can
// subscribe to all of them at once.
type Event interface {
	EventName() string
}

// StepFinished is published after each step run, in a full build or in
// watch mode.
type StepFinished struct {
	BuildID  string // empty for watch re-runs outside a build
	Category site.Category
	Report   site.Report
	Duration time.Duration
	Err      string // empty on success
	At       time.Time
}

func (StepFinished) EventName() string { return "step.finished" }

// Succeeded reports whether the step run completed without error.
func (e StepFinished) Succeeded() bool { return e.Err == "" }

// BuildFinished is published once per full build.
type BuildFinished struct {
	BuildID  string
	Mode     site.Mode
	Revision string // source commit, empty outside a git work tree
	Steps    []StepFinished
	Duration time.Duration
	Err      string
	At       time.Time
}

func (BuildFinished) EventName() string { return "build.finished" }

func (e BuildFinished) Succeeded() bool { return e.Err == "" }
