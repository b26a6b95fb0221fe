// Package icons merges SVG icons into a single sprite of <symbol>s.
package icons

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/beevik/etree"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/svg"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"git.home.luguber.info/inful/sitebuilder/internal/cache"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/fsutil"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

// OutputDir is the directory below the output root receiving the sprite.
const OutputDir = "icons"

const (
	svgNS   = "http://www.w3.org/2000/svg"
	xlinkNS = "http://www.w3.org/1999/xlink"
)

// Options configures a Builder.
type Options struct {
	Root      string
	Output    string
	Env       site.Mode
	Separator string // joins directory segments and the file stem into an id
	Sprite    string // sprite file name
	Logger    *slog.Logger
}

// Builder is the icons step. Each icon's <symbol> is cached; the sprite
// is rebuilt from all remembered symbols whenever any of them changed.
type Builder struct {
	opts   Options
	cache  *cache.Cache
	lower  cases.Caser
	minify *minify.M

	mu         sync.Mutex
	lastMerged []string
}

// New returns a Builder storing symbols in c.
func New(opts Options, c *cache.Cache) *Builder {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Separator == "" {
		opts.Separator = "-"
	}
	if opts.Sprite == "" {
		opts.Sprite = "sprite.svg"
	}
	m := minify.New()
	m.AddFunc("image/svg+xml", svg.Minify)
	return &Builder{opts: opts, cache: c, lower: cases.Lower(language.Und), minify: m}
}

// ID derives the symbol id of an icon from its path below root.
func (b *Builder) ID(path string) string {
	rel, err := filepath.Rel(b.opts.Root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	rel = strings.TrimSuffix(filepath.ToSlash(rel), filepath.Ext(rel))
	id := strings.Join(strings.Split(rel, "/"), b.opts.Separator)
	return b.lower.String(norm.NFC.String(id))
}

// Run parses new and changed icons and rewrites the sprite when the set
// of symbols changed.
func (b *Builder) Run(ctx context.Context) (site.Report, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	report := site.Report{Step: string(site.CategoryIcons)}
	files, err := fsutil.Walk(b.opts.Root, fsutil.HasExt(".svg"))
	if err != nil {
		return report, ferrors.WrapError(err, ferrors.CategoryFileSystem, "scan icons").
			WithContext("path", b.opts.Root).Build()
	}
	if err := b.checkCollisions(files); err != nil {
		return report, err
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if b.cache.Fresh(file) {
			report.Cached++
			continue
		}
		e, err := b.symbol(file)
		if err != nil {
			return report, err
		}
		b.cache.Put(file, e)
		report.Processed++
	}
	b.cache.DrainOrphans() // symbols have no files of their own

	dst := filepath.Join(b.opts.Output, OutputDir, b.opts.Sprite)
	remembered := b.cache.Remembered()
	if len(remembered) == 0 {
		removed, err := fsutil.Remove(dst)
		if err != nil {
			return report, ferrors.WrapError(err, ferrors.CategoryFileSystem, "remove sprite").
				WithContext("path", dst).Build()
		}
		if removed {
			report.Removed++
		}
		b.lastMerged = nil
		return report, nil
	}

	if report.Processed == 0 && slices.Equal(remembered, b.lastMerged) && exists(dst) {
		report.Skipped++
		return report, nil
	}
	if err := b.checkCollisions(remembered); err != nil {
		return report, err
	}

	sprite, err := b.merge(remembered)
	if err != nil {
		return report, err
	}
	changed, err := fsutil.WriteFile(dst, sprite)
	if err != nil {
		return report, ferrors.WrapError(err, ferrors.CategoryFileSystem, "write sprite").
			WithContext("path", dst).Build()
	}
	if changed {
		report.Written++
	} else {
		report.Skipped++
	}
	b.lastMerged = remembered

	b.opts.Logger.DebugContext(ctx, "Built icon sprite",
		logfields.Step(report.Step),
		logfields.Path(dst),
		slog.Int("symbols", len(remembered)))
	return report, nil
}

func (b *Builder) checkCollisions(files []string) error {
	owners := make(map[string]string, len(files))
	for _, f := range files {
		id := b.ID(f)
		if other, ok := owners[id]; ok {
			return ferrors.TransformError("icon id collision: "+id).
				WithContext("path", other).
				WithContext("other", f).
				WithContext("id", id).
				Build()
		}
		owners[id] = f
	}
	return nil
}

// symbol converts one icon into a <symbol> element.
func (b *Builder) symbol(file string) (*cache.Entry, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "read icon").
			WithContext("path", file).Build()
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryTransform, "parse icon").
			WithContext("path", file).Build()
	}
	root := doc.Root()
	if root == nil || root.Tag != "svg" {
		return nil, ferrors.TransformError("icon is not an SVG document").WithContext("path", file).Build()
	}

	sym := etree.NewElement("symbol")
	sym.CreateAttr("id", b.ID(file))
	if vb := viewBox(root); vb != "" {
		sym.CreateAttr("viewBox", vb)
	}
	if par := root.SelectAttrValue("preserveAspectRatio", ""); par != "" {
		sym.CreateAttr("preserveAspectRatio", par)
	}
	for _, child := range slices.Clone(root.Child) {
		if cd, ok := child.(*etree.CharData); ok && cd.IsWhitespace() {
			continue
		}
		sym.AddChild(child)
	}

	out := etree.NewDocument()
	out.SetRoot(sym)
	xml, err := out.WriteToBytes()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "serialize symbol").
			WithContext("path", file).Build()
	}
	return &cache.Entry{
		Deps:   map[string]string{file: fsutil.HashBytes(data)},
		Output: xml,
	}, nil
}

// viewBox returns the root's viewBox, falling back to its width and height.
func viewBox(root *etree.Element) string {
	if vb := root.SelectAttrValue("viewBox", ""); vb != "" {
		return vb
	}
	w := strings.TrimSuffix(root.SelectAttrValue("width", ""), "px")
	h := strings.TrimSuffix(root.SelectAttrValue("height", ""), "px")
	if w == "" || h == "" {
		return ""
	}
	return "0 0 " + w + " " + h
}

// merge assembles the sprite from the cached symbols, sorted by id.
func (b *Builder) merge(paths []string) ([]byte, error) {
	type entry struct {
		id  string
		sym *etree.Element
	}
	symbols := make([]entry, 0, len(paths))
	xlink := false
	for _, path := range paths {
		e, ok := b.cache.Get(path)
		if !ok {
			continue
		}
		doc := etree.NewDocument()
		if err := doc.ReadFromBytes(e.Output); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "reparse cached symbol").
				WithContext("path", path).Build()
		}
		sym := doc.Root()
		xlink = xlink || usesXlink(sym)
		symbols = append(symbols, entry{id: b.ID(path), sym: sym})
	}
	slices.SortFunc(symbols, func(x, y entry) int { return strings.Compare(x.id, y.id) })

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("svg")
	root.CreateAttr("xmlns", svgNS)
	if xlink {
		root.CreateAttr("xmlns:xlink", xlinkNS)
	}
	root.CreateAttr("style", "display: none")
	for _, s := range symbols {
		root.AddChild(s.sym)
	}

	if !b.opts.Env.Production() {
		doc.Indent(2)
		return doc.WriteToBytes()
	}
	raw, err := doc.WriteToBytes()
	if err != nil {
		return nil, err
	}
	out, err := b.minify.Bytes("image/svg+xml", raw)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryTransform, "minify sprite").Build()
	}
	return out, nil
}

func usesXlink(el *etree.Element) bool {
	for _, a := range el.Attr {
		if a.Space == "xlink" {
			return true
		}
	}
	for _, child := range el.ChildElements() {
		if usesXlink(child) {
			return true
		}
	}
	return false
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}
