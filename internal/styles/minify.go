package styles

import (
	"context"

	"github.com/tdewolff/minify/v2"
	mincss "github.com/tdewolff/minify/v2/css"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// minifyPlugin compacts production output. In development it leaves the
// CSS readable and links the source map when one was produced.
type minifyPlugin struct {
	production bool
	m          *minify.M
}

func newMinifyPlugin(production bool) *minifyPlugin {
	m := minify.New()
	m.AddFunc("text/css", mincss.Minify)
	return &minifyPlugin{production: production, m: m}
}

func (p *minifyPlugin) Name() string { return "minify" }

func (p *minifyPlugin) Process(_ context.Context, s *Sheet) error {
	src := s.Join()
	if !p.production {
		if len(s.Map) > 0 {
			s.CSS = append(src, []byte("/*# sourceMappingURL="+mapName(s.Entry)+" */\n")...)
		}
		return nil
	}
	out, err := p.m.Bytes("text/css", src)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryTransform, "minify stylesheet").
			WithContext("path", s.Entry).Build()
	}
	s.CSS = out
	s.Map = nil
	return nil
}
