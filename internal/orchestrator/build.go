package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/sitebuilder/internal/events"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/revision"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
	"git.home.luguber.info/inful/sitebuilder/internal/taskgraph"
)

const (
	nodeClean = "clean"
	nodeBuild = "build"
)

// Clean removes the output root and forgets every cached transformation.
func (o *Orchestrator) Clean(context.Context) error {
	o.setState(StateCleaning)
	out := o.cfg.Paths.Output
	if err := os.RemoveAll(out); err != nil {
		o.setState(StateFailed)
		return ferrors.OrchestrationError("failed to clean output directory").
			WithCause(err).WithContext("path", out).Build()
	}
	for _, name := range o.registry.Names() {
		c := o.registry.Get(name)
		c.Reset()
		c.DrainOrphans()
	}
	o.logger.Info("Cleaned output directory", logfields.Path(out))
	return nil
}

// Build cleans the output root and runs every step concurrently. The
// returned summary lists each step that ran; err is the first failure.
func (o *Orchestrator) Build(ctx context.Context) (events.BuildFinished, error) {
	id := uuid.NewString()
	ctx = logfields.WithBuildID(ctx, id)
	logger := o.logger.With(logfields.BuildID(id))
	started := time.Now()
	summary := events.BuildFinished{BuildID: id, Mode: o.cfg.Mode}

	rev, err := revision.Head(o.cfg.Paths.Pages)
	if err != nil {
		logger.Warn("Failed to read source revision", logfields.Error(err))
	}
	summary.Revision = rev

	logger.Info("Build started",
		logfields.Mode(string(o.cfg.Mode)),
		slog.String("revision", revision.Short(rev)),
		slog.Int("steps", len(o.order)))

	var (
		mu      sync.Mutex
		results = make(map[site.Category]events.StepFinished)
	)
	nodes := []taskgraph.Node{{Name: nodeClean, Run: func(ctx context.Context) error {
		if err := o.Clean(ctx); err != nil {
			return err
		}
		o.setState(StateBuilding)
		return nil
	}}}
	barrier := make([]string, 0, len(o.order))
	for _, cat := range o.order {
		nodes = append(nodes, taskgraph.Node{
			Name: cat.Step(),
			Deps: []string{nodeClean},
			Run: func(ctx context.Context) error {
				evt, err := o.execute(ctx, cat, id, logger)
				mu.Lock()
				results[cat] = evt
				mu.Unlock()
				return err
			},
		})
		barrier = append(barrier, cat.Step())
	}
	nodes = append(nodes, taskgraph.Node{Name: nodeBuild, Deps: barrier})

	graph, err := taskgraph.New(nodes...)
	if err != nil {
		return summary, ferrors.WrapError(err, ferrors.CategoryInternal, "invalid build graph").Build()
	}
	_, runErr := graph.Run(ctx, &graphLogger{logger: logger})

	for _, cat := range o.order {
		if evt, ok := results[cat]; ok {
			summary.Steps = append(summary.Steps, evt)
		}
	}
	summary.Duration = time.Since(started)
	summary.At = time.Now()

	if runErr != nil {
		o.setState(StateFailed)
		runErr = buildError(runErr)
		summary.Err = runErr.Error()
		logger.Error("Build failed", logfields.Duration(summary.Duration), logfields.Error(runErr))
	} else {
		o.setState(StateReady)
		logger.Info("Build finished", logfields.Duration(summary.Duration))
	}
	o.publish(ctx, summary)
	return summary, runErr
}

// buildError unwraps the graph's node error so step classifications
// reach the CLI unchanged.
func buildError(err error) error {
	var nodeErr *taskgraph.NodeError
	if errors.As(err, &nodeErr) {
		if _, ok := ferrors.AsClassified(nodeErr.Err); ok {
			return nodeErr.Err
		}
		return ferrors.OrchestrationError("build step failed").
			WithCause(nodeErr.Err).WithContext("step", nodeErr.Node).Build()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "build cancelled").Build()
	}
	return ferrors.WrapError(err, ferrors.CategoryOrchestration, "build failed").Build()
}

// RunStep runs one category's step outside a full build.
func (o *Orchestrator) RunStep(ctx context.Context, cat site.Category) error {
	_, err := o.execute(ctx, cat, "", o.logger)
	return err
}

// Step runs the named step once and returns its report.
func (o *Orchestrator) Step(ctx context.Context, name string) (events.StepFinished, error) {
	cat, ok := site.CategoryForStep(name)
	if !ok {
		return events.StepFinished{}, ferrors.ValidationError("unknown step").WithContext("step", name).Build()
	}
	if _, ok := o.steps[cat]; !ok {
		return events.StepFinished{}, ferrors.ValidationError("step is not enabled").WithContext("step", name).Build()
	}
	return o.execute(ctx, cat, "", o.logger)
}

func (o *Orchestrator) execute(ctx context.Context, cat site.Category, buildID string, logger *slog.Logger) (events.StepFinished, error) {
	step, ok := o.steps[cat]
	if !ok {
		return events.StepFinished{}, ferrors.InternalError("no step for category").
			WithContext("category", string(cat)).Build()
	}
	started := time.Now()
	report, err := step.Run(ctx)
	evt := events.StepFinished{
		BuildID:  buildID,
		Category: cat,
		Report:   report,
		Duration: time.Since(started),
		At:       time.Now(),
	}
	attrs := []any{
		logfields.Step(cat.Step()),
		logfields.Written(report.Written),
		logfields.Skipped(report.Skipped),
		slog.Int("processed", report.Processed),
		slog.Int("cached", report.Cached),
		slog.Int("removed", report.Removed),
		logfields.Duration(evt.Duration),
	}
	if err != nil {
		evt.Err = err.Error()
		logger.Error("Step failed", append(attrs, logfields.Error(err))...)
	} else {
		logger.Info("Step finished", attrs...)
	}
	o.publish(ctx, evt)
	return evt, err
}

// graphLogger reports node transitions at debug level.
type graphLogger struct {
	logger *slog.Logger
}

func (g *graphLogger) NodeStarted(name string) {
	g.logger.Debug("Task started", slog.String("task", name))
}

func (g *graphLogger) NodeFinished(res taskgraph.NodeResult) {
	g.logger.Debug("Task finished",
		slog.String("task", res.Name),
		slog.String("status", string(res.Status)),
		logfields.Duration(res.Duration))
}
