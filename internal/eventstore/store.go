// Package eventstore keeps a history of builds and step runs in SQLite.
package eventstore

import (
	"context"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

// BuildRecord is one stored full build.
type BuildRecord struct {
	ID         string
	Mode       site.Mode
	Revision   string
	FinishedAt time.Time
	Duration   time.Duration
	Err        string
}

// StepRecord is one stored step run.
type StepRecord struct {
	ID         int64
	BuildID    string
	Step       string
	Report     site.Report
	FinishedAt time.Time
	Duration   time.Duration
	Err        string
}

// Store persists build history.
type Store interface {
	AppendBuild(ctx context.Context, b BuildRecord) error
	AppendStep(ctx context.Context, s StepRecord) error
	// Recent returns the latest builds, newest first.
	Recent(ctx context.Context, limit int) ([]BuildRecord, error)
	// Steps returns the step runs of a build in the order they finished.
	Steps(ctx context.Context, buildID string) ([]StepRecord, error)
	Close() error
}
