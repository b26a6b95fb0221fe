package styles

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// prefixPlugin runs esbuild's CSS transform for the configured browser
// targets, which adds vendor prefixes and lowers syntax the targets lack.
// With sourceMaps set it keeps the map esbuild produces.
type prefixPlugin struct {
	root       string
	engines    []api.Engine
	sourceMaps bool
}

func (p *prefixPlugin) Name() string { return "prefix" }

func (p *prefixPlugin) Process(_ context.Context, s *Sheet) error {
	opts := api.TransformOptions{
		Loader:     api.LoaderCSS,
		Engines:    p.engines,
		Sourcefile: displayPath(p.root, s.Entry),
		LogLevel:   api.LogLevelSilent,
	}
	if p.sourceMaps {
		opts.Sourcemap = api.SourceMapExternal
	}
	result := api.Transform(string(s.Join()), opts)
	if len(result.Errors) > 0 {
		msgs := api.FormatMessages(result.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage})
		return ferrors.TransformError("css transform failed").
			WithContext("path", s.Entry).
			WithCause(fmt.Errorf("%s", strings.TrimSpace(strings.Join(msgs, "\n")))).
			Build()
	}
	s.CSS = result.Code
	s.Map = result.Map
	return nil
}

var browserTarget = regexp.MustCompile(`^([a-z]+)(\d+(?:\.\d+){0,2})$`)

var browserEngines = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"safari":  api.EngineSafari,
	"ios":     api.EngineIOS,
	"opera":   api.EngineOpera,
}

// parseEngines converts targets such as "safari15.6" into esbuild engines.
func parseEngines(browsers []string) ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(browsers))
	for _, b := range browsers {
		m := browserTarget.FindStringSubmatch(strings.ToLower(strings.TrimSpace(b)))
		if m == nil {
			return nil, fmt.Errorf("invalid browser target %q", b)
		}
		name, ok := browserEngines[m[1]]
		if !ok {
			return nil, fmt.Errorf("unsupported browser %q", m[1])
		}
		engines = append(engines, api.Engine{Name: name, Version: m[2]})
	}
	return engines, nil
}

// mapName is the source map file name written next to an entry's output.
func mapName(entry string) string {
	return filepath.Base(entry) + ".map"
}
