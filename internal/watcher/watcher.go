package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

// Options configures a Watcher.
type Options struct {
	Roots     map[string]site.Category
	Debounce  time.Duration
	QueueSize int
	Logger    *slog.Logger
}

// Watcher watches the source roots recursively.
type Watcher struct {
	classifier *Classifier
	debounce   time.Duration
	queue      chan Event
	logger     *slog.Logger
	fsw        *fsnotify.Watcher
}

// New creates a Watcher and registers every directory below the roots.
// Roots that do not exist yet are skipped.
func New(opts Options) (*Watcher, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 150 * time.Millisecond
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	w := &Watcher{
		classifier: NewClassifier(opts.Roots),
		debounce:   opts.Debounce,
		queue:      make(chan Event, opts.QueueSize),
		logger:     opts.Logger,
		fsw:        fsw,
	}
	for _, dir := range w.classifier.Dirs() {
		if _, err := w.addRecursive(dir); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Events is the bounded queue of coalesced events.
func (w *Watcher) Events() <-chan Event { return w.queue }

// Close releases the underlying watcher without running it.
func (w *Watcher) Close() error { return w.fsw.Close() }

// Run forwards changes until ctx is cancelled, then closes the watcher.
// The event queue is not closed; consumers stop on the same context.
func (w *Watcher) Run(ctx context.Context) error {
	co := newCoalescer(w.debounce, w.queue, ctx.Done())
	defer co.stop()
	defer func() { _ = w.fsw.Close() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(co, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) handle(co *coalescer, ev fsnotify.Event) {
	if Ignored(ev.Name) {
		return
	}
	cat, ok := w.classifier.Classify(ev.Name)
	if !ok {
		return
	}

	var kind site.EventKind
	switch {
	case ev.Has(fsnotify.Create):
		kind = site.Added
	case ev.Has(fsnotify.Write):
		kind = site.Changed
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		kind = site.Deleted
	default:
		return
	}

	if kind == site.Added {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			// Files may land before the directory watch exists.
			files, err := w.addRecursive(ev.Name)
			if err != nil {
				w.logger.Warn("Failed to watch new directory", logfields.Path(ev.Name), logfields.Error(err))
			}
			for _, f := range files {
				if fcat, ok := w.classifier.Classify(f); ok && !Ignored(f) {
					co.add(Event{Path: f, Kind: site.Added, Category: fcat})
				}
			}
			return
		}
	}

	w.logger.Debug("Source change",
		logfields.Path(ev.Name),
		logfields.Event(string(kind)),
		logfields.Category(string(cat)))
	co.add(Event{Path: ev.Name, Kind: kind, Category: cat})
}

// addRecursive watches dir and its subdirectories and returns the files
// found below it.
func (w *Watcher) addRecursive(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if path != dir && Ignored(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			files = append(files, path)
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
	return files, err
}
