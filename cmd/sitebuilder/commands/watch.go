package commands

import (
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/sitebuilder/internal/orchestrator"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Port int `short:"p" help:"Override server.port"`
}

func (w *WatchCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	if w.Port > 0 {
		cfg.Server.Port = w.Port
	}
	ctx, stop := signalContext()
	defer stop()

	_, _ = fmt.Fprintf(g.out(), "Serving %s at http://%s\n", cfg.Paths.Output, cfg.Server.Addr())
	return withServices(ctx, cfg, func(o *orchestrator.Orchestrator) error {
		err := o.Watch(ctx)
		slog.Info("Watch stopped")
		return err
	})
}
