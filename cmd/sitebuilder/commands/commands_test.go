package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

func project(t *testing.T, configBody string, files map[string]string) *CLI {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "sitebuild.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(configBody), 0o644))
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return &CLI{Config: cfgPath}
}

func TestInitWritesConfigOnce(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	cmd := &InitCmd{Output: dir}

	require.NoError(t, cmd.Run(&Global{Out: &out}, &CLI{}))
	assert.FileExists(t, filepath.Join(dir, "sitebuild.yaml"))
	assert.Contains(t, out.String(), "Initialized successfully")

	err := cmd.Run(&Global{Out: &out}, &CLI{})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))

	cmd.Force = true
	require.NoError(t, cmd.Run(&Global{Out: &out}, &CLI{}))
}

func TestBuildPrintsSummary(t *testing.T) {
	root := project(t, "site:\n  title: Test\n", map[string]string{
		"source/static/robots.txt": "User-agent: *\n",
		"source/pages/index.njk":   "<h1>{{ site.title }}</h1>\n",
	})
	var out bytes.Buffer
	require.NoError(t, (&BuildCmd{}).Run(&Global{Out: &out}, root))

	summary := out.String()
	assert.Contains(t, summary, "development")
	assert.Contains(t, summary, "copy")
	assert.Contains(t, summary, "markup")
	assert.NotContains(t, summary, "FAILED")

	page, err := os.ReadFile(filepath.Join(filepath.Dir(root.Config), "dist", "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<h1>Test</h1>\n", string(page))
}

func TestBuildFailureMapsToStepExitCode(t *testing.T) {
	root := project(t, "", map[string]string{
		"source/pages/index.njk": `{% include "nope.njk" %}`,
	})
	var out bytes.Buffer
	err := (&BuildCmd{}).Run(&Global{Out: &out}, root)
	require.Error(t, err)
	assert.Contains(t, out.String(), "FAILED")
	assert.Equal(t, 11, ferrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
}

func TestEnvFlagSelectsProduction(t *testing.T) {
	root := project(t, "", map[string]string{
		"source/styles/site.css": ".a {\n  color: red;\n}\n",
	})
	root.Env = "production"
	var out bytes.Buffer
	require.NoError(t, (&BuildCmd{}).Run(&Global{Out: &out}, root))
	assert.Contains(t, out.String(), "production")

	css, err := os.ReadFile(filepath.Join(filepath.Dir(root.Config), "dist", "styles", "site.css"))
	require.NoError(t, err)
	assert.NotContains(t, string(css), "\n  ")
}

func TestStepRunsOneStep(t *testing.T) {
	root := project(t, "", map[string]string{
		"source/scripts/main.js":   "console.log('x')\n",
		"source/static/robots.txt": "x",
	})
	var out bytes.Buffer
	require.NoError(t, (&StepCmd{Name: "scripts"}).Run(&Global{Out: &out}, root))
	dist := filepath.Join(filepath.Dir(root.Config), "dist")
	assert.FileExists(t, filepath.Join(dist, "scripts", "main.js"))
	assert.NoFileExists(t, filepath.Join(dist, "robots.txt"))
	assert.Contains(t, out.String(), "scripts")
}

func TestCleanRemovesOutput(t *testing.T) {
	root := project(t, "", map[string]string{"dist/old.html": "x"})
	var out bytes.Buffer
	require.NoError(t, (&CleanCmd{}).Run(&Global{Out: &out}, root))
	assert.NoDirExists(t, filepath.Join(filepath.Dir(root.Config), "dist"))
}

func TestHistory(t *testing.T) {
	root := project(t, "", nil)
	var out bytes.Buffer
	require.NoError(t, (&HistoryCmd{Limit: 5}).Run(&Global{Out: &out}, root))
	assert.Contains(t, out.String(), "No build history recorded")

	root = project(t, "history:\n  enabled: true\n", map[string]string{"source/static/a.txt": "a"})
	require.NoError(t, (&BuildCmd{Quiet: true}).Run(&Global{Out: &out}, root))
	require.NoError(t, (&BuildCmd{Quiet: true}).Run(&Global{Out: &out}, root))

	out.Reset()
	require.NoError(t, (&HistoryCmd{Limit: 5}).Run(&Global{Out: &out}, root))
	assert.Contains(t, out.String(), "development")
	assert.Equal(t, 2, bytes.Count(out.Bytes(), []byte(" ok ")))

	err := (&HistoryCmd{Limit: 5, BuildID: "missing"}).Run(&Global{Out: &out}, root)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
}
