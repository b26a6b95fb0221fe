package styles

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/cache"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

var testBrowsers = []string{"chrome109", "firefox115", "safari15.6"}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func newPipeline(t *testing.T, root, out string, mutate func(*Options)) (*Pipeline, *cache.Cache) {
	t.Helper()
	opts := Options{Root: root, Output: out, Mode: site.Development, Browsers: testBrowsers}
	if mutate != nil {
		mutate(&opts)
	}
	c := cache.New("styles")
	p, err := New(opts, c)
	require.NoError(t, err)
	return p, c
}

func readOutput(t *testing.T, out, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(out, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func TestPipelineInlinesImports(t *testing.T) {
	dir := t.TempDir()
	root, out := filepath.Join(dir, "styles"), filepath.Join(dir, "dist")
	writeFiles(t, root, map[string]string{
		"a.css": "@import \"b.css\";\n.a { color: red; }\n",
		"b.css": ".b { color: blue; }\n",
	})
	p, c := newPipeline(t, root, out, nil)

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)

	got := readOutput(t, out, "styles/a.css")
	assert.Contains(t, got, ".a")
	assert.Contains(t, got, ".b")
	assert.NotContains(t, got, "@import")
	assert.Less(t, strings.Index(got, ".b"), strings.Index(got, ".a"))
	assert.NoFileExists(t, filepath.Join(out, "styles", "b.css"))
	assert.Equal(t, []string{filepath.Join(root, "a.css")}, c.Remembered())
}

func TestPipelineSkipsUnchangedEntries(t *testing.T) {
	dir := t.TempDir()
	root, out := filepath.Join(dir, "styles"), filepath.Join(dir, "dist")
	writeFiles(t, root, map[string]string{
		"a.css":          "@import \"parts/b.css\";\n.a { color: red; }\n",
		"parts/b.css":    ".b { color: blue; }\n",
		"standalone.css": ".s { color: green; }\n",
	})
	p, _ := newPipeline(t, root, out, nil)

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	second, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.Processed)
	assert.Equal(t, 2, second.Cached)
	assert.Zero(t, second.Written)

	// Changing a partial invalidates the entry that imports it.
	writeFiles(t, root, map[string]string{"parts/b.css": ".b { color: black; }\n"})
	third, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, third.Processed)
	assert.Equal(t, 1, third.Cached)
	assert.Contains(t, readOutput(t, out, "styles/a.css"), "black")
}

func TestPipelineImportCycle(t *testing.T) {
	dir := t.TempDir()
	root, out := filepath.Join(dir, "styles"), filepath.Join(dir, "dist")
	writeFiles(t, root, map[string]string{
		"main.css": "@import \"a.css\";\n",
		"a.css":    "@import \"b.css\";\n.a { color: red; }\n",
		"b.css":    "@import \"a.css\";\n.b { color: blue; }\n",
	})
	p, _ := newPipeline(t, root, out, nil)

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryTransform))
	assert.Contains(t, err.Error(), "import cycle: a.css -> b.css -> a.css")
}

func TestPipelineImportCycleWithoutEntry(t *testing.T) {
	dir := t.TempDir()
	root, out := filepath.Join(dir, "styles"), filepath.Join(dir, "dist")
	writeFiles(t, root, map[string]string{
		"a.css": "@import \"b.css\";\n.a { color: red; }\n",
		"b.css": "@import \"a.css\";\n.b { color: blue; }\n",
	})
	p, _ := newPipeline(t, root, out, nil)

	report, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryTransform))
	assert.Contains(t, err.Error(), "import cycle: a.css -> b.css -> a.css")
	assert.Zero(t, report.Written)
}

func TestPipelineUnresolvedImport(t *testing.T) {
	dir := t.TempDir()
	root, out := filepath.Join(dir, "styles"), filepath.Join(dir, "dist")
	writeFiles(t, root, map[string]string{"a.css": "@import \"missing.css\";\n"})
	p, _ := newPipeline(t, root, out, nil)

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unresolved import")

	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	path, _ := ce.Context().GetString("path")
	assert.Equal(t, filepath.Join(root, "a.css"), path)
}

func TestPipelineRewritesURLs(t *testing.T) {
	dir := t.TempDir()
	root, out := filepath.Join(dir, "styles"), filepath.Join(dir, "dist")
	writeFiles(t, root, map[string]string{
		"main.css":                  "@import \"components/card.css\";\n",
		"components/card.css":       ".card { background: url(img/bg.png); }\n.icon { background: url(\"icons/star.svg\"); }\n.abs { background: url(/img/x.png); }\n",
		"components/icons/star.svg": "<svg xmlns=\"http://www.w3.org/2000/svg\">\n  <path d=\"M0 0\"/>\n</svg>\n",
	})
	p, c := newPipeline(t, root, out, nil)

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	got := readOutput(t, out, "styles/main.css")
	assert.Contains(t, got, "components/img/bg.png")
	assert.Contains(t, got, "data:image/svg+xml,")
	assert.Contains(t, got, "/img/x.png")
	assert.NotContains(t, got, "star.svg")

	e, ok := c.Get(filepath.Join(root, "main.css"))
	require.True(t, ok)
	assert.Contains(t, e.Deps, filepath.Join(root, "components", "icons", "star.svg"))
}

func TestPipelineDevelopmentSourceMaps(t *testing.T) {
	dir := t.TempDir()
	root, out := filepath.Join(dir, "styles"), filepath.Join(dir, "dist")
	writeFiles(t, root, map[string]string{"site.css": ".a { color: red; }\n"})
	p, _ := newPipeline(t, root, out, nil)

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, readOutput(t, out, "styles/site.css"), "/*# sourceMappingURL=site.css.map */")
	assert.FileExists(t, filepath.Join(out, "styles", "site.css.map"))
}

func TestPipelineProductionMinifies(t *testing.T) {
	dir := t.TempDir()
	root, out := filepath.Join(dir, "styles"), filepath.Join(dir, "dist")
	writeFiles(t, root, map[string]string{"site.css": ".a {\n  color: red;\n}\n\n.b {\n  margin: 0px;\n}\n"})
	p, _ := newPipeline(t, root, out, func(o *Options) { o.Mode = site.Production })

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	got := readOutput(t, out, "styles/site.css")
	assert.NotContains(t, got, "\n  ")
	assert.NotContains(t, got, "sourceMappingURL")
	assert.NoFileExists(t, filepath.Join(out, "styles", "site.css.map"))
}

func TestPipelineBundleEviction(t *testing.T) {
	dir := t.TempDir()
	root, out := filepath.Join(dir, "styles"), filepath.Join(dir, "dist")
	writeFiles(t, root, map[string]string{
		"a.css": ".alpha { color: red; }\n",
		"b.css": ".beta { color: blue; }\n",
	})
	reg := cache.NewRegistry("styles")
	c := reg.Get("styles")
	p, err := New(Options{
		Root:       root,
		Output:     out,
		Mode:       site.Development,
		Browsers:   testBrowsers,
		OutputMode: OutputBundle,
		Bundle:     "bundle.css",
	}, c)
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.NoError(t, err)
	bundle := readOutput(t, out, "styles/bundle.css")
	assert.Less(t, strings.Index(bundle, ".alpha"), strings.Index(bundle, ".beta"))

	// Without invalidation a deleted entry is still remembered and emitted.
	require.NoError(t, os.Remove(filepath.Join(root, "b.css")))
	_, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, readOutput(t, out, "styles/bundle.css"), ".beta")

	inv := cache.NewInvalidator(reg, nil, nil)
	evicted := inv.Handle(site.Deleted, filepath.Join(root, "b.css"), "styles")
	assert.Len(t, evicted, 1)

	_, err = p.Run(context.Background())
	require.NoError(t, err)
	bundle = readOutput(t, out, "styles/bundle.css")
	assert.Contains(t, bundle, ".alpha")
	assert.NotContains(t, bundle, ".beta")
	assert.True(t, c.Consistent())
}

func TestPipelineFilesEvictionRemovesOutputs(t *testing.T) {
	dir := t.TempDir()
	root, out := filepath.Join(dir, "styles"), filepath.Join(dir, "dist")
	writeFiles(t, root, map[string]string{
		"a.css": ".a { color: red; }\n",
		"b.css": ".b { color: blue; }\n",
	})
	p, c := newPipeline(t, root, out, nil)
	_, err := p.Run(context.Background())
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(out, "styles", "b.css"))

	require.NoError(t, os.Remove(filepath.Join(root, "b.css")))
	c.Forget(filepath.Join(root, "b.css"))

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Removed)
	assert.NoFileExists(t, filepath.Join(out, "styles", "b.css"))
	assert.NoFileExists(t, filepath.Join(out, "styles", "b.css.map"))
	assert.FileExists(t, filepath.Join(out, "styles", "a.css"))
}

func TestPipelineDeterministic(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "styles")
	writeFiles(t, root, map[string]string{
		"a.css":       "@import \"parts/x.css\" screen;\n@custom-media --wide (width >= 800px);\n@media (--wide) { .a { margin-inline: 1px 2px; } }\n",
		"parts/x.css": ".x { display: flex; user-select: none; }\n",
	})

	outputs := make([]string, 2)
	for i := range outputs {
		out := filepath.Join(dir, "dist", string(rune('a'+i)))
		p, _ := newPipeline(t, root, out, func(o *Options) { o.Mode = site.Production })
		_, err := p.Run(context.Background())
		require.NoError(t, err)
		outputs[i] = readOutput(t, out, "styles/a.css")
	}
	assert.Equal(t, outputs[0], outputs[1])
	assert.Contains(t, outputs[0], "min-width:800px")
	assert.Contains(t, outputs[0], "margin-left:1px")
}

func TestNewRejectsUnknownBrowser(t *testing.T) {
	_, err := New(Options{Browsers: []string{"netscape4"}}, cache.New("styles"))
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}
