// Package styles compiles stylesheets.
//
// Every entry stylesheet (a .css file no other stylesheet imports) runs
// through a fixed plugin chain: import inlining, url rewriting, media
// query lowering, logical property lowering, prefixing and minification.
// Results are cached by the content of the entry and everything it pulled
// in, and every remembered entry is written on each run.
package styles

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"

	"git.home.luguber.info/inful/sitebuilder/internal/cache"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/fsutil"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

// OutputDir is the directory below the output root receiving stylesheets.
const OutputDir = "styles"

// OutputMode selects one file per entry or a single bundle.
type OutputMode string

const (
	OutputFiles  OutputMode = "files"
	OutputBundle OutputMode = "bundle"
)

// Options configures a Pipeline.
type Options struct {
	Root         string
	Output       string
	Mode         site.Mode
	InlineFilter string   // glob of url() targets embedded as data URIs
	Browsers     []string // prefix targets, e.g. safari15.6
	OutputMode   OutputMode
	Bundle       string // bundle file name in OutputBundle mode
	Logger       *slog.Logger
}

// Pipeline is the styles step.
type Pipeline struct {
	opts    Options
	cache   *cache.Cache
	plugins []Plugin

	mu sync.Mutex
}

// New returns a Pipeline storing results in c.
func New(opts Options, c *cache.Cache) (*Pipeline, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.OutputMode == "" {
		opts.OutputMode = OutputFiles
	}
	if opts.Bundle == "" {
		opts.Bundle = "bundle.css"
	}
	if opts.InlineFilter == "" {
		opts.InlineFilter = "**/*.svg"
	}
	engines, err := parseEngines(opts.Browsers)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid styles.browsers").Build()
	}

	// Maps only make sense for one output per entry.
	sourceMaps := !opts.Mode.Production() && opts.OutputMode == OutputFiles

	return &Pipeline{
		opts:  opts,
		cache: c,
		plugins: []Plugin{
			&importPlugin{root: opts.Root},
			&urlPlugin{inlineFilter: opts.InlineFilter, logger: opts.Logger},
			&customMediaPlugin{logger: opts.Logger},
			&minmaxPlugin{},
			&logicalPlugin{},
			&prefixPlugin{root: opts.Root, engines: engines, sourceMaps: sourceMaps},
			newMinifyPlugin(opts.Mode.Production()),
		},
	}, nil
}

// Run processes stale entries and writes every remembered entry.
func (p *Pipeline) Run(ctx context.Context) (site.Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	report := site.Report{Step: string(site.CategoryStyles)}
	entries, partials, err := p.scan()
	if err != nil {
		return report, err
	}

	// A file that became a partial is no longer an entry.
	for _, remembered := range p.cache.Remembered() {
		if partials[remembered] {
			p.cache.Forget(remembered)
		}
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if p.cache.Fresh(entry) {
			report.Cached++
			continue
		}
		e, err := p.process(ctx, entry)
		if err != nil {
			return report, err
		}
		p.cache.Put(entry, e)
		report.Processed++
	}

	for _, orphan := range p.cache.DrainOrphans() {
		removed, err := fsutil.Remove(filepath.Join(p.opts.Output, orphan))
		if err != nil {
			return report, ferrors.WrapError(err, ferrors.CategoryFileSystem, "remove stale output").
				WithContext("path", orphan).Build()
		}
		if removed {
			report.Removed++
		}
	}

	if err := p.write(&report); err != nil {
		return report, err
	}
	p.opts.Logger.DebugContext(ctx, "Compiled stylesheets",
		logfields.Step(report.Step),
		slog.Int("processed", report.Processed),
		slog.Int("cached", report.Cached),
		logfields.Written(report.Written))
	return report, nil
}

// scan lists entries and partials below the root.
func (p *Pipeline) scan() ([]string, map[string]bool, error) {
	files, err := fsutil.Walk(p.opts.Root, fsutil.HasExt(".css"))
	if err != nil {
		return nil, nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "scan styles").
			WithContext("path", p.opts.Root).Build()
	}
	partials := map[string]bool{}
	graph := make(map[string][]string, len(files))
	for _, f := range files {
		imports, err := scanImports(p.opts.Root, f)
		if err != nil {
			return nil, nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "scan imports").
				WithContext("path", f).Build()
		}
		graph[f] = imports
		for _, imp := range imports {
			if imp != f {
				partials[imp] = true
			}
		}
	}
	entries := make([]string, 0, len(files))
	for _, f := range files {
		if !partials[f] {
			entries = append(entries, f)
		}
	}

	// Partials no entry reaches are only imported by each other.
	reached := map[string]bool{}
	var visit func(string)
	visit = func(f string) {
		if reached[f] {
			return
		}
		reached[f] = true
		for _, imp := range graph[f] {
			visit(imp)
		}
	}
	for _, e := range entries {
		visit(e)
	}
	done := map[string]bool{}
	for _, f := range files {
		if reached[f] {
			continue
		}
		if cycle := findCycle(graph, done, f, nil); cycle != nil {
			return nil, nil, (&expander{root: p.opts.Root}).cycleError(cycle)
		}
	}
	return entries, partials, nil
}

// findCycle follows imports depth-first from file and returns the first
// chain that leads back into itself, closed with the repeated file.
func findCycle(graph map[string][]string, done map[string]bool, file string, chain []string) []string {
	if i := slices.Index(chain, file); i >= 0 {
		return append(slices.Clone(chain[i:]), file)
	}
	if done[file] {
		return nil
	}
	chain = append(chain, file)
	for _, imp := range graph[file] {
		if cycle := findCycle(graph, done, imp, chain); cycle != nil {
			return cycle
		}
	}
	done[file] = true
	return nil
}

func (p *Pipeline) process(ctx context.Context, entry string) (*cache.Entry, error) {
	sheet := &Sheet{Entry: entry, Deps: map[string]string{}}
	for _, plugin := range p.plugins {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := plugin.Process(ctx, sheet); err != nil {
			return nil, err
		}
	}

	e := &cache.Entry{Deps: sheet.Deps, Output: bytes.Clone(sheet.Join()), Map: sheet.Map}
	if p.opts.OutputMode == OutputFiles {
		rel := p.outputRel(entry)
		e.Outputs = []string{rel}
		if len(e.Map) > 0 {
			e.Outputs = append(e.Outputs, rel+".map")
		}
	}
	return e, nil
}

func (p *Pipeline) outputRel(entry string) string {
	rel, err := filepath.Rel(p.opts.Root, entry)
	if err != nil {
		rel = filepath.Base(entry)
	}
	return filepath.Join(OutputDir, rel)
}

func (p *Pipeline) write(report *site.Report) error {
	remembered := p.cache.Remembered()

	if p.opts.OutputMode == OutputBundle {
		dst := filepath.Join(p.opts.Output, OutputDir, p.opts.Bundle)
		if len(remembered) == 0 {
			removed, err := fsutil.Remove(dst)
			if err != nil {
				return ferrors.WrapError(err, ferrors.CategoryFileSystem, "remove bundle").
					WithContext("path", dst).Build()
			}
			if removed {
				report.Removed++
			}
			return nil
		}
		var buf bytes.Buffer
		for i, path := range remembered {
			e, ok := p.cache.Get(path)
			if !ok {
				continue
			}
			if i > 0 {
				buf.WriteByte('\n')
			}
			buf.Write(e.Output)
		}
		return p.writeFile(report, dst, buf.Bytes())
	}

	for _, path := range remembered {
		e, ok := p.cache.Get(path)
		if !ok {
			continue
		}
		dst := filepath.Join(p.opts.Output, p.outputRel(path))
		if err := p.writeFile(report, dst, e.Output); err != nil {
			return err
		}
		if len(e.Map) > 0 {
			if err := p.writeFile(report, dst+".map", e.Map); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Pipeline) writeFile(report *site.Report, dst string, data []byte) error {
	changed, err := fsutil.WriteFile(dst, data)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "write stylesheet").
			WithContext("path", dst).Build()
	}
	if changed {
		report.Written++
	} else {
		report.Skipped++
	}
	return nil
}
