package styles

import (
	"context"
	"encoding/base64"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tdewolff/parse/v2/css"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/fsutil"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// urlPlugin rewrites url() references in each fragment. Targets matching
// the inline filter are embedded as data URIs; other relative targets are
// rebased from the declaring file's directory to the entry's directory.
type urlPlugin struct {
	inlineFilter string
	logger       *slog.Logger
}

func (p *urlPlugin) Name() string { return "url" }

func (p *urlPlugin) Process(_ context.Context, s *Sheet) error {
	if s.Fragments == nil {
		s.Fragments = []Fragment{{File: s.Entry, CSS: s.CSS}}
	}
	for i, frag := range s.Fragments {
		out, err := p.rewrite(s, frag)
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryTransform, "rewrite urls").
				WithContext("path", frag.File).Build()
		}
		s.Fragments[i].CSS = out
	}
	return nil
}

func (p *urlPlugin) rewrite(s *Sheet, frag Fragment) ([]byte, error) {
	toks, err := tokenize(frag.CSS)
	if err != nil {
		return nil, err
	}
	out := make([]token, 0, len(toks))
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		switch {
		case t.tt == css.URLToken:
			value := urlTokenValue(t.text)
			quoted := strings.ContainsAny(string(t.text), `"'`)
			if repl, ok := p.replace(s, frag.File, value, quoted); ok {
				t.text = []byte(repl)
			}
		case t.tt == css.FunctionToken && strings.EqualFold(string(t.text), "url("):
			// url( "quoted" ) arrives as function, string, close paren.
			j := i + 1
			for j < len(toks) && toks[j].tt == css.WhitespaceToken {
				j++
			}
			if j >= len(toks) || toks[j].tt != css.StringToken {
				break
			}
			k := j + 1
			for k < len(toks) && toks[k].tt == css.WhitespaceToken {
				k++
			}
			if k >= len(toks) || toks[k].tt != css.RightParenthesisToken {
				break
			}
			if repl, ok := p.replace(s, frag.File, unquote(string(toks[j].text)), true); ok {
				out = append(out, token{tt: css.URLToken, text: []byte(repl)})
				i = k
				continue
			}
		}
		out = append(out, t)
	}
	return join(out), nil
}

// replace returns the new url(...) text for value, or false to keep it.
func (p *urlPlugin) replace(s *Sheet, file, value string, quoted bool) (string, bool) {
	if value == "" || !isLocalURL(value) {
		return "", false
	}
	target, suffix := splitURLSuffix(value)
	abs := filepath.Join(filepath.Dir(file), filepath.FromSlash(target))

	if match, _ := doublestar.Match(p.inlineFilter, path.Clean(target)); match {
		data, err := os.ReadFile(abs)
		if err == nil {
			s.Deps[abs] = fsutil.HashBytes(data)
			return `url("` + dataURI(abs, data) + `")`, true
		}
		p.logger.Warn("Cannot inline url target", logfields.Path(abs), logfields.Error(err))
	}

	if filepath.Dir(file) == filepath.Dir(s.Entry) {
		return "", false
	}
	rel, err := filepath.Rel(filepath.Dir(s.Entry), abs)
	if err != nil {
		return "", false
	}
	rebased := filepath.ToSlash(rel) + suffix
	if quoted {
		return `url("` + rebased + `")`, true
	}
	return "url(" + rebased + ")", true
}

func isLocalURL(value string) bool {
	lower := strings.ToLower(value)
	switch {
	case strings.HasPrefix(lower, "data:"),
		strings.HasPrefix(lower, "#"),
		strings.HasPrefix(lower, "/"),
		strings.Contains(lower, "://"):
		return false
	}
	return true
}

// splitURLSuffix separates a ?query or #fragment from the path.
func splitURLSuffix(value string) (string, string) {
	if i := strings.IndexAny(value, "?#"); i >= 0 {
		return value[:i], value[i:]
	}
	return value, ""
}

var svgSpace = regexp.MustCompile(`\s+`)

var svgEscaper = strings.NewReplacer(
	`"`, `'`,
	"%", "%25",
	"#", "%23",
	"<", "%3C",
	">", "%3E",
	"{", "%7B",
	"}", "%7D",
)

func dataURI(file string, data []byte) string {
	if strings.EqualFold(filepath.Ext(file), ".svg") {
		text := strings.TrimSpace(svgSpace.ReplaceAllString(string(data), " "))
		return "data:image/svg+xml," + svgEscaper.Replace(text)
	}
	typ := mime.TypeByExtension(filepath.Ext(file))
	if typ == "" {
		typ = "application/octet-stream"
	}
	return "data:" + typ + ";base64," + base64.StdEncoding.EncodeToString(data)
}
