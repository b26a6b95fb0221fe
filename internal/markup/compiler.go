// Package markup renders pages into HTML.
//
// Template pages are rendered with pongo2, a Django/Jinja compatible
// engine, so Nunjucks-style includes, blocks and filters carry over.
// Markdown pages are converted with goldmark and optionally wrapped in a
// layout template named in their front matter.
package markup

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/flosch/pongo2/v6"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"git.home.luguber.info/inful/sitebuilder/internal/assets"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/fsutil"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

// Mode selects rendering or plain copying.
type Mode string

const (
	ModeTemplate    Mode = "template"
	ModePassthrough Mode = "passthrough"
)

// Options configures a Compiler.
type Options struct {
	Root       string   // pages root
	Components []string // include search path
	Output     string
	Mode       Mode
	Extensions []string // template page extensions, e.g. .njk
	Markdown   bool     // also render *.md pages
	Env        site.Mode
	Site       map[string]any
	Logger     *slog.Logger
}

// Compiler is the markup step.
type Compiler struct {
	opts        Options
	md          goldmark.Markdown
	passthrough *assets.Copier
}

// New returns a Compiler.
func New(opts Options) *Compiler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".njk"}
	}
	c := &Compiler{
		opts: opts,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
	}
	if opts.Mode == ModePassthrough {
		c.passthrough = assets.New(assets.Options{
			Name:   "markup",
			Root:   opts.Root,
			Output: opts.Output,
			Match:  fsutil.HasExt(opts.Extensions...),
			Logger: opts.Logger,
		})
	}
	return c
}

// Run renders every page. Pages are rendered in lexical order; the first
// failure stops the step.
func (c *Compiler) Run(ctx context.Context) (site.Report, error) {
	if c.passthrough != nil {
		return c.passthrough.Run(ctx)
	}

	report := site.Report{Step: "markup"}
	exts := slices.Clone(c.opts.Extensions)
	if c.opts.Markdown {
		exts = append(exts, ".md")
	}
	pages, err := fsutil.Walk(c.opts.Root, fsutil.HasExt(exts...))
	if err != nil {
		return report, ferrors.WrapError(err, ferrors.CategoryFileSystem, "scan pages").
			WithContext("path", c.opts.Root).Build()
	}

	loader := &searchLoader{dirs: c.opts.Components}
	set := pongo2.NewSet("pages", loader)
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if c.isComponent(page) {
			continue
		}
		out, err := c.render(set, loader, page)
		if err != nil {
			return report, err
		}
		dst, err := fsutil.Mirror(c.opts.Root, page, c.opts.Output)
		if err != nil {
			return report, ferrors.WrapError(err, ferrors.CategoryInternal, "map output path").
				WithContext("path", page).Build()
		}
		dst = fsutil.ReplaceExt(dst, ".html")
		changed, err := fsutil.WriteFile(dst, out)
		if err != nil {
			return report, ferrors.WrapError(err, ferrors.CategoryFileSystem, "write page").
				WithContext("path", dst).Build()
		}
		report.Processed++
		if changed {
			report.Written++
		} else {
			report.Skipped++
		}
	}

	c.opts.Logger.DebugContext(ctx, "Rendered pages", logfields.Step("markup"), slog.Int("pages", report.Processed))
	return report, nil
}

// isComponent skips partials that live inside the pages root.
func (c *Compiler) isComponent(path string) bool {
	for _, dir := range c.opts.Components {
		if strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (c *Compiler) render(set *pongo2.TemplateSet, loader *searchLoader, page string) ([]byte, error) {
	rel, _ := filepath.Rel(c.opts.Root, page)
	rel = filepath.ToSlash(rel)
	pageCtx := map[string]any{
		"path": rel,
		"url":  "/" + fsutil.ReplaceExt(rel, ".html"),
	}
	vars := pongo2.Context{
		"env":  string(c.opts.Env),
		"page": pageCtx,
		"site": c.siteVars(),
		"data": map[string]any{},
	}

	if strings.EqualFold(filepath.Ext(page), ".md") {
		return c.renderMarkdown(set, loader, page, vars, pageCtx)
	}

	tpl, err := set.FromFile(page)
	if err != nil {
		return nil, transformError(err, "parse template", page)
	}
	out, err := tpl.ExecuteBytes(vars)
	if err != nil {
		return nil, transformError(err, "render template", page)
	}
	return out, nil
}

func (c *Compiler) renderMarkdown(set *pongo2.TemplateSet, loader *searchLoader, page string, vars pongo2.Context, pageCtx map[string]any) ([]byte, error) {
	src, err := os.ReadFile(page)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "read page").WithContext("path", page).Build()
	}
	data, body, err := splitFrontMatter(src)
	if err != nil {
		return nil, transformError(err, "parse front matter", page)
	}

	var buf bytes.Buffer
	if err := c.md.Convert(body, &buf); err != nil {
		return nil, transformError(err, "render markdown", page)
	}

	layout, _ := data["layout"].(string)
	if layout == "" {
		return buf.Bytes(), nil
	}

	if title, ok := data["title"]; ok {
		pageCtx["title"] = title
	}
	vars["data"] = data
	vars["content"] = pongo2.AsSafeValue(buf.String())

	// Layouts resolve like includes, starting from the page's directory.
	tpl, err := set.FromFile(loader.Abs(page, layout))
	if err != nil {
		return nil, transformError(err, fmt.Sprintf("parse layout %q", layout), page)
	}
	out, err := tpl.ExecuteBytes(vars)
	if err != nil {
		return nil, transformError(err, fmt.Sprintf("render layout %q", layout), page)
	}
	return out, nil
}

func (c *Compiler) siteVars() map[string]any {
	if c.opts.Site == nil {
		return map[string]any{}
	}
	return c.opts.Site
}

func transformError(err error, action, page string) error {
	return ferrors.WrapError(err, ferrors.CategoryTransform, action).WithContext("path", page).Build()
}
