package commands

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/sitebuilder/internal/events"
	"git.home.luguber.info/inful/sitebuilder/internal/orchestrator"
)

// CleanCmd implements the 'clean' command.
type CleanCmd struct{}

func (c *CleanCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	o, err := orchestrator.New(orchestrator.Options{Config: cfg})
	if err != nil {
		return err
	}
	if err := o.Clean(context.Background()); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(g.out(), "Removed %s\n", cfg.Paths.Output)
	return nil
}

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Quiet bool `short:"q" help:"Do not print the build summary"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	return withServices(ctx, cfg, func(o *orchestrator.Orchestrator) error {
		summary, err := o.Build(ctx)
		if !b.Quiet {
			_, _ = fmt.Fprintln(g.out(), renderBuild(summary))
		}
		return err
	})
}

// StepCmd implements the 'step' command.
type StepCmd struct {
	Name string `arg:"" enum:"copy,markup,styles,scripts,icons" help:"Step to run (copy, markup, styles, scripts, icons)"`
}

func (s *StepCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	return withServices(ctx, cfg, func(o *orchestrator.Orchestrator) error {
		evt, err := o.Step(ctx, s.Name)
		if evt.Category != "" {
			_, _ = fmt.Fprintln(g.out(), renderSteps([]events.StepFinished{evt}))
		}
		return err
	})
}
