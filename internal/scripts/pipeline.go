// Package scripts compiles JavaScript with esbuild.
//
// In bundle mode every top-level .js file under the scripts root is an
// entry bundled with everything it imports. In transpile mode every .js
// file is lowered to the configured language target on its own. Either
// way results are cached by content and every remembered entry is
// written on each run.
package scripts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"

	"git.home.luguber.info/inful/sitebuilder/internal/cache"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/fsutil"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

// OutputDir is the directory below the output root receiving scripts.
const OutputDir = "scripts"

// Mode selects bundling or per-file transpilation.
type Mode string

const (
	ModeBundle    Mode = "bundle"
	ModeTranspile Mode = "transpile"
)

var targets = map[string]api.Target{
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"es2023": api.ES2023,
	"es2024": api.ES2024,
	"esnext": api.ESNext,
}

// Options configures a Pipeline.
type Options struct {
	Root   string
	Output string
	Env    site.Mode
	Mode   Mode
	Target string // transpile target, e.g. es2015
	Logger *slog.Logger
}

// Pipeline is the scripts step.
type Pipeline struct {
	opts   Options
	target api.Target
	cache  *cache.Cache

	mu sync.Mutex
}

// New returns a Pipeline storing results in c.
func New(opts Options, c *cache.Cache) (*Pipeline, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Mode == "" {
		opts.Mode = ModeBundle
	}
	if opts.Target == "" {
		opts.Target = "es2015"
	}
	target, ok := targets[strings.ToLower(opts.Target)]
	if !ok {
		return nil, ferrors.ConfigError("invalid scripts.target").WithContext("target", opts.Target).Build()
	}
	if opts.Mode == ModeBundle {
		target = api.ESNext
	}
	return &Pipeline{opts: opts, target: target, cache: c}, nil
}

// Run processes stale entries and writes every remembered entry.
func (p *Pipeline) Run(ctx context.Context) (site.Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	report := site.Report{Step: string(site.CategoryScript)}
	entries, err := p.entries()
	if err != nil {
		return report, err
	}

	p.forgetDemoted(entries)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if p.cache.Fresh(entry) {
			report.Cached++
			continue
		}
		var e *cache.Entry
		if p.opts.Mode == ModeBundle {
			e, err = p.bundle(entry)
		} else {
			e, err = p.transpile(entry)
		}
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

	for _, path := range p.cache.Remembered() {
		e, ok := p.cache.Get(path)
		if !ok {
			continue
		}
		dst := filepath.Join(p.opts.Output, p.outputRel(path))
		changed, err := fsutil.WriteFile(dst, e.Output)
		if err != nil {
			return report, ferrors.WrapError(err, ferrors.CategoryFileSystem, "write script").
				WithContext("path", dst).Build()
		}
		if changed {
			report.Written++
		} else {
			report.Skipped++
		}
	}

	p.opts.Logger.DebugContext(ctx, "Compiled scripts",
		logfields.Step(report.Step),
		logfields.Mode(string(p.opts.Mode)),
		slog.Int("processed", report.Processed),
		slog.Int("cached", report.Cached),
		logfields.Written(report.Written))
	return report, nil
}

// entries lists the sources processed in the current mode: top-level
// files when bundling, the whole tree when transpiling.
func (p *Pipeline) entries() ([]string, error) {
	match := fsutil.HasExt(".js")
	if p.opts.Mode == ModeBundle {
		match = func(rel string) bool {
			return !strings.Contains(rel, "/") && strings.EqualFold(filepath.Ext(rel), ".js")
		}
	}
	files, err := fsutil.Walk(p.opts.Root, match)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "scan scripts").
			WithContext("path", p.opts.Root).Build()
	}
	return files, nil
}

// forgetDemoted evicts remembered sources that still exist but are no
// longer entries, such as a file moved into a module directory.
func (p *Pipeline) forgetDemoted(entries []string) {
	current := make(map[string]bool, len(entries))
	for _, e := range entries {
		current[e] = true
	}
	for _, path := range p.cache.Remembered() {
		if current[path] {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			p.cache.Forget(path)
		}
	}
}

func (p *Pipeline) outputRel(entry string) string {
	rel, err := filepath.Rel(p.opts.Root, entry)
	if err != nil {
		rel = filepath.Base(entry)
	}
	return filepath.Join(OutputDir, rel)
}

func (p *Pipeline) bundle(entry string) (*cache.Entry, error) {
	opts := api.BuildOptions{
		EntryPoints:   []string{entry},
		AbsWorkingDir: p.opts.Root,
		Outfile:       filepath.Join(p.opts.Output, p.outputRel(entry)),
		Bundle:        true,
		Write:         false,
		Metafile:      true,
		Platform:      api.PlatformBrowser,
		Format:        api.FormatIIFE,
		Target:        p.target,
		LogLevel:      api.LogLevelSilent,
	}
	if p.opts.Env.Production() {
		opts.MinifyWhitespace = true
		opts.MinifyIdentifiers = true
		opts.MinifySyntax = true
	} else {
		opts.Sourcemap = api.SourceMapInline
	}

	result := api.Build(opts)
	if len(result.Errors) > 0 {
		return nil, buildError(entry, result.Errors)
	}
	if len(result.OutputFiles) != 1 {
		return nil, ferrors.InternalError(fmt.Sprintf("expected one output file, got %d", len(result.OutputFiles))).
			WithContext("path", entry).Build()
	}

	deps, err := p.metafileDeps(result.Metafile)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryTransform, "read bundle inputs").
			WithContext("path", entry).Build()
	}
	return &cache.Entry{
		Deps:    deps,
		Output:  result.OutputFiles[0].Contents,
		Outputs: []string{p.outputRel(entry)},
	}, nil
}

type metafile struct {
	Inputs map[string]json.RawMessage `json:"inputs"`
}

// metafileDeps hashes every on-disk input esbuild read for the bundle.
func (p *Pipeline) metafileDeps(raw string) (map[string]string, error) {
	var meta metafile
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, err
	}
	deps := make(map[string]string, len(meta.Inputs))
	for input := range meta.Inputs {
		// Namespaced inputs such as "(disabled):fs" have no file behind them.
		if strings.Contains(input, ":") && !filepath.IsAbs(input) {
			continue
		}
		path := input
		if !filepath.IsAbs(path) {
			path = filepath.Join(p.opts.Root, filepath.FromSlash(input))
		}
		sum, err := fsutil.HashFile(path)
		if err != nil {
			return nil, err
		}
		deps[path] = sum
	}
	return deps, nil
}

func (p *Pipeline) transpile(entry string) (*cache.Entry, error) {
	src, err := os.ReadFile(entry)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "read script").
			WithContext("path", entry).Build()
	}
	rel, _ := filepath.Rel(p.opts.Root, entry)
	opts := api.TransformOptions{
		Loader:     api.LoaderJS,
		Target:     p.target,
		Sourcefile: filepath.ToSlash(rel),
		LogLevel:   api.LogLevelSilent,
	}
	if p.opts.Env.Production() {
		opts.MinifyWhitespace = true
		opts.MinifyIdentifiers = true
		opts.MinifySyntax = true
	} else {
		opts.Sourcemap = api.SourceMapInline
	}

	result := api.Transform(string(src), opts)
	if len(result.Errors) > 0 {
		return nil, buildError(entry, result.Errors)
	}
	return &cache.Entry{
		Deps:    map[string]string{entry: fsutil.HashBytes(src)},
		Output:  result.Code,
		Outputs: []string{p.outputRel(entry)},
	}, nil
}

func buildError(entry string, msgs []api.Message) error {
	formatted := api.FormatMessages(msgs, api.FormatMessagesOptions{Kind: api.ErrorMessage})
	b := ferrors.TransformError("script compilation failed").
		WithContext("path", entry).
		WithCause(fmt.Errorf("%s", strings.TrimSpace(strings.Join(formatted, "\n"))))
	if loc := msgs[0].Location; loc != nil {
		b = b.WithContext("line", loc.Line).WithContext("column", loc.Column)
	}
	return b.Build()
}
