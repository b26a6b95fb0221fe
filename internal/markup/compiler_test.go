package markup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

type fixture struct {
	pages, components, out string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	return fixture{
		pages:      filepath.Join(dir, "source", "pages"),
		components: filepath.Join(dir, "source", "components"),
		out:        filepath.Join(dir, "dist"),
	}
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func (f fixture) compiler(mode Mode) *Compiler {
	return New(Options{
		Root:       f.pages,
		Components: []string{f.components},
		Output:     f.out,
		Mode:       mode,
		Markdown:   true,
		Env:        site.Production,
		Site:       map[string]any{"title": "Demo"},
	})
}

func TestPlainTemplateRendersVerbatim(t *testing.T) {
	f := newFixture(t)
	write(t, filepath.Join(f.pages, "index.njk"), "<h1>Hi</h1>\n")

	report, err := f.compiler(ModeTemplate).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Written)
	assert.Equal(t, "<h1>Hi</h1>\n", read(t, filepath.Join(f.out, "index.html")))
}

func TestIncludesResolveFromComponentsAndPageDir(t *testing.T) {
	f := newFixture(t)
	write(t, filepath.Join(f.components, "header.njk"), "<header>{{ site.title }}</header>")
	write(t, filepath.Join(f.pages, "blog", "_aside.njk"), "<aside>{{ env }}</aside>")
	write(t, filepath.Join(f.pages, "blog", "post.njk"),
		`{% include "header.njk" %}{% include "_aside.njk" %}<p>{{ page.url }}</p>`)

	_, err := f.compiler(ModeTemplate).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t,
		"<header>Demo</header><aside>production</aside><p>/blog/post.html</p>",
		read(t, filepath.Join(f.out, "blog", "post.html")))
}

func TestExtendsLayoutFromComponents(t *testing.T) {
	f := newFixture(t)
	write(t, filepath.Join(f.components, "base.njk"), "<main>{% block body %}{% endblock %}</main>")
	write(t, filepath.Join(f.pages, "about.njk"), `{% extends "base.njk" %}{% block body %}About{% endblock %}`)

	_, err := f.compiler(ModeTemplate).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "<main>About</main>", read(t, filepath.Join(f.out, "about.html")))
}

func TestUnresolvedIncludeFailsWithPagePath(t *testing.T) {
	f := newFixture(t)
	page := filepath.Join(f.pages, "index.njk")
	write(t, page, `{% include "missing.njk" %}`)

	_, err := f.compiler(ModeTemplate).Run(context.Background())
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryTransform))
	classified, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	path, _ := classified.Context().GetString("path")
	assert.Equal(t, page, path)
	assert.NoFileExists(t, filepath.Join(f.out, "index.html"))
}

func TestMarkdownWithLayout(t *testing.T) {
	f := newFixture(t)
	write(t, filepath.Join(f.components, "post.njk"), "<title>{{ page.title }}</title><article>{{ content }}</article>")
	write(t, filepath.Join(f.pages, "notes.md"), "---\ntitle: Notes\nlayout: post.njk\n---\n# Hello\n\n*world*\n")

	_, err := f.compiler(ModeTemplate).Run(context.Background())
	require.NoError(t, err)
	got := read(t, filepath.Join(f.out, "notes.html"))
	assert.Contains(t, got, "<title>Notes</title>")
	assert.Contains(t, got, `<h1 id="hello">Hello</h1>`)
	assert.Contains(t, got, "<em>world</em>")
}

func TestMarkdownWithoutLayoutIsFragment(t *testing.T) {
	f := newFixture(t)
	write(t, filepath.Join(f.pages, "plain.md"), "Some ~~old~~ text\n")

	_, err := f.compiler(ModeTemplate).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "<p>Some <del>old</del> text</p>\n", read(t, filepath.Join(f.out, "plain.html")))
}

func TestComponentsInsidePagesAreNotRendered(t *testing.T) {
	f := newFixture(t)
	f.components = filepath.Join(f.pages, "_includes")
	write(t, filepath.Join(f.components, "nav.njk"), "<nav></nav>")
	write(t, filepath.Join(f.pages, "index.njk"), `{% include "nav.njk" %}`)

	report, err := f.compiler(ModeTemplate).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.NoFileExists(t, filepath.Join(f.out, "_includes", "nav.html"))
}

func TestPassthroughCopiesHTML(t *testing.T) {
	f := newFixture(t)
	write(t, filepath.Join(f.pages, "index.html"), "<p>static</p>")
	write(t, filepath.Join(f.pages, "draft.txt"), "skip")
	c := New(Options{Root: f.pages, Output: f.out, Mode: ModePassthrough, Extensions: []string{".html"}})

	report, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Written)
	assert.Equal(t, "<p>static</p>", read(t, filepath.Join(f.out, "index.html")))
	assert.NoFileExists(t, filepath.Join(f.out, "draft.txt"))

	report, err = c.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Written)
}

func TestSplitFrontMatter(t *testing.T) {
	data, body, err := splitFrontMatter([]byte("---\r\ntitle: X\r\n---\r\nbody"))
	require.NoError(t, err)
	assert.Equal(t, "X", data["title"])
	assert.Equal(t, "body", string(body))

	data, body, err = splitFrontMatter([]byte("no front matter"))
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.Equal(t, "no front matter", string(body))

	_, _, err = splitFrontMatter([]byte("---\ntitle: X\n"))
	assert.ErrorIs(t, err, errUnterminatedFrontMatter)
}
