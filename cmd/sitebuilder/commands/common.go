// Package commands implements the sitebuilder CLI.
package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/orchestrator"
)

// Global carries state shared by every command.
type Global struct {
	Out io.Writer
}

func (g *Global) out() io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

// CLI is the command tree and the global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"sitebuild.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Env     string           `name:"env" help:"Build mode (development|production); overrides SITEBUILD_ENV"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Clean   CleanCmd   `cmd:"" help:"Remove the output directory"`
	Build   BuildCmd   `cmd:"" help:"Clean and build the whole site"`
	Watch   WatchCmd   `cmd:"" help:"Build, then rebuild on changes and serve with live reload"`
	Step    StepCmd    `cmd:"" help:"Run a single build step"`
	History HistoryCmd `cmd:"" help:"Show recorded builds"`
	Init    InitCmd    `cmd:"" help:"Write an example configuration file"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	setupLogging(c.Verbose, "", config.LogFormatText)
	return nil
}

// setupLogging installs the default logger. --verbose wins over
// SITEBUILD_LOG_LEVEL, which wins over the configured level.
func setupLogging(verbose bool, configured config.LogLevel, format config.LogFormat) {
	level := slog.LevelInfo
	switch {
	case verbose:
		level = slog.LevelDebug
	case os.Getenv(config.EnvLogLevel) != "":
		level = parseLevel(config.NormalizeLogLevel(os.Getenv(config.EnvLogLevel)))
	case configured != "":
		level = parseLevel(configured)
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == config.LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(logfields.NewContextHandler(handler)))
}

func parseLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadConfig reads the configuration, applies --env and reconfigures
// logging from the file's logging section.
func loadConfig(root *CLI) (*config.Config, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, err
	}
	if err := cfg.SetMode(strings.TrimSpace(root.Env)); err != nil {
		return nil, err
	}
	setupLogging(root.Verbose, cfg.Logging.Level, cfg.Logging.Format)
	if cfg.File != "" {
		slog.Debug("Loaded configuration", "file", cfg.File, "mode", cfg.Mode)
	}
	return cfg, nil
}

// withServices runs fn with an orchestrator whose lifecycle events reach
// the configured metrics, history and notification consumers.
func withServices(ctx context.Context, cfg *config.Config, fn func(*orchestrator.Orchestrator) error) error {
	logger := slog.Default()
	svc, err := orchestrator.NewServices(cfg, logger)
	if err != nil {
		return err
	}
	svc.Start(ctx)
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("Failed to close services", "error", err)
		}
	}()

	o, err := orchestrator.New(orchestrator.Options{
		Config:   cfg,
		Bus:      svc.Bus,
		Recorder: svc.Recorder,
		Metrics:  svc.Metrics,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	return fn(o)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
