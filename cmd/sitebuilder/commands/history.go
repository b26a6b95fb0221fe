package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"git.home.luguber.info/inful/sitebuilder/internal/eventstore"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit   int    `short:"n" help:"Number of builds to list" default:"10"`
	BuildID string `arg:"" optional:"" name:"build-id" help:"Show the steps of one build"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	out := g.out()
	if _, err := os.Stat(cfg.History.Path); errors.Is(err, fs.ErrNotExist) {
		_, _ = fmt.Fprintln(out, "No build history recorded (set history.enabled: true)")
		return nil
	}

	store, err := eventstore.NewSQLiteStore(cfg.History.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	if h.BuildID != "" {
		steps, err := store.Steps(ctx, h.BuildID)
		if err != nil {
			return err
		}
		if len(steps) == 0 {
			return ferrors.ValidationError("no steps recorded for build").WithContext("build_id", h.BuildID).Build()
		}
		_, _ = fmt.Fprintln(out, renderStepRecords(steps))
		return nil
	}

	builds, err := store.Recent(ctx, h.Limit)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, renderHistory(builds))
	return nil
}
