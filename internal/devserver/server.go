// Package devserver serves the output tree over local HTTP and tells
// connected browsers to reload when the tree changes.
//
// The server only observes the output root; it never runs build steps.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/version"
)

// ReloadObserver is told about every reload broadcast.
type ReloadObserver interface {
	IncReload()
}

// Options configures a Server.
type Options struct {
	Root           string
	Addr           string
	LiveReload     bool
	ReloadDebounce time.Duration
	// Metrics is mounted at /__metrics when set.
	Metrics  http.Handler
	Observer ReloadObserver
	Logger   *slog.Logger
}

// Server is the development HTTP server.
type Server struct {
	opts    Options
	hub     *Hub
	started time.Time
	logger  *slog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	reloads int
}

// New returns a Server for opts.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ReloadDebounce <= 0 {
		opts.ReloadDebounce = 200 * time.Millisecond
	}
	if opts.Addr == "" {
		opts.Addr = "localhost:3000"
	}
	return &Server{
		opts:    opts,
		hub:     NewHub(opts.Logger),
		started: time.Now(),
		logger:  opts.Logger,
	}
}

// Handler returns the complete routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	files := http.FileServer(http.Dir(s.opts.Root))
	if s.opts.LiveReload {
		mux.Handle("/__livereload", s.hub)
		mux.HandleFunc("/__livereload.js", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			_, _ = w.Write([]byte(clientScript))
		})
		files = injectHandler(files)
	}
	mux.HandleFunc("/__health", s.health)
	if s.opts.Metrics != nil {
		mux.Handle("/__metrics", s.opts.Metrics)
	}
	mux.Handle("/", noCache(files))
	return mux
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
	Clients int    `json:"clients"`
	Reloads int    `json:"reloads"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	reloads := s.reloads
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:  "ok",
		Version: version.Version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Clients: s.hub.Clients(),
		Reloads: reloads,
	})
}

func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to listen").
			WithContext("addr", s.opts.Addr).Build()
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln and watches the output root until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       300 * time.Second,
	}

	watchErr := make(chan error, 1)
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	if s.opts.LiveReload {
		go func() { watchErr <- s.watchOutput(watchCtx) }()
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()
	s.logger.Info("Dev server listening", "url", "http://"+ln.Addr().String())

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "dev server failed").Build()
	case err := <-watchErr:
		s.hub.Shutdown()
		_ = srv.Close()
		return err
	case <-ctx.Done():
	}

	// Open event streams would otherwise hold Shutdown until its deadline.
	s.hub.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "dev server shutdown failed").Build()
	}
	return nil
}

// Reload broadcasts a reload signal immediately.
func (s *Server) Reload() {
	n := s.hub.Broadcast()
	s.mu.Lock()
	s.reloads++
	s.mu.Unlock()
	if s.opts.Observer != nil {
		s.opts.Observer.IncReload()
	}
	s.logger.Info("Reloading browsers", "clients", n)
}

// scheduleReload debounces bursts of output writes into one Reload.
func (s *Server) scheduleReload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Reset(s.opts.ReloadDebounce)
		return
	}
	s.timer = time.AfterFunc(s.opts.ReloadDebounce, s.Reload)
}

func (s *Server) watchOutput(ctx context.Context) error {
	if err := os.MkdirAll(s.opts.Root, 0o755); err != nil {
		return ferrors.FileSystemError("failed to create output directory").
			WithCause(err).WithContext("path", s.opts.Root).Build()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to create output watcher").Build()
	}
	defer func() { _ = fsw.Close() }()
	if err := watchTree(fsw, s.opts.Root); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to watch output directory").
			WithContext("path", s.opts.Root).Build()
	}
	defer func() {
		s.mu.Lock()
		if s.timer != nil {
			s.timer.Stop()
		}
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := watchTree(fsw, ev.Name); err != nil {
						s.logger.Warn("Failed to watch output directory", logfields.Path(ev.Name), logfields.Error(err))
					}
				}
			}
			s.scheduleReload()
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("Output watcher error", logfields.Error(err))
		}
	}
}

func watchTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}
