// Package assets copies static files into the output tree.
package assets

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/fsutil"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

// Options configures a Copier.
type Options struct {
	Name   string // step name used in reports and logs
	Root   string // source root
	Output string // destination root
	// Match filters files by slash path relative to Root; nil copies everything.
	Match  func(rel string) bool
	Logger *slog.Logger
}

// Copier mirrors Root into Output, copying a file only when its
// destination is missing or older than the source.
type Copier struct {
	opts Options

	mu      sync.Mutex
	lastRun time.Time
}

// New returns a Copier.
func New(opts Options) *Copier {
	if opts.Name == "" {
		opts.Name = "copy"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Copier{opts: opts}
}

// Run copies new and modified files. Destinations receive the source's
// modification time, so an unchanged tree produces no writes.
func (c *Copier) Run(ctx context.Context) (site.Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	report := site.Report{Step: c.opts.Name}
	started := time.Now()

	files, err := fsutil.Walk(c.opts.Root, c.opts.Match)
	if err != nil {
		return report, ferrors.WrapError(err, ferrors.CategoryFileSystem, "scan source root").
			WithContext("path", c.opts.Root).Build()
	}

	for _, src := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		copied, err := c.copyIfNewer(src)
		if err != nil {
			return report, err
		}
		report.Processed++
		if copied {
			report.Written++
		} else {
			report.Skipped++
		}
	}

	c.lastRun = started
	c.opts.Logger.DebugContext(ctx, "Copied files",
		logfields.Step(c.opts.Name),
		logfields.Written(report.Written),
		logfields.Skipped(report.Skipped))
	return report, nil
}

func (c *Copier) copyIfNewer(src string) (bool, error) {
	dst, err := fsutil.Mirror(c.opts.Root, src, c.opts.Output)
	if err != nil {
		return false, ferrors.WrapError(err, ferrors.CategoryInternal, "map output path").
			WithContext("path", src).Build()
	}
	srcInfo, err := os.Stat(src)
	if err != nil {
		return false, ferrors.WrapError(err, ferrors.CategoryFileSystem, "stat source").
			WithContext("path", src).Build()
	}
	dstInfo, err := os.Stat(dst)
	if err == nil {
		// Unmodified since the last successful run and still present.
		if !c.lastRun.IsZero() && srcInfo.ModTime().Before(c.lastRun) {
			return false, nil
		}
		if !dstInfo.ModTime().Before(srcInfo.ModTime()) {
			return false, nil
		}
	}
	if err := fsutil.CopyFile(src, dst); err != nil {
		return false, ferrors.WrapError(err, ferrors.CategoryFileSystem, "copy file").
			WithContext("path", src).Build()
	}
	return true, nil
}
