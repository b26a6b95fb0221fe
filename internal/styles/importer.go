package styles

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tdewolff/parse/v2/css"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/fsutil"
)

// importPlugin inlines local @import rules recursively. A file imported
// twice is inlined once; an import that leads back into the current chain
// is an error. Remote imports stay in place.
type importPlugin struct {
	root string
}

func (p *importPlugin) Name() string { return "import" }

func (p *importPlugin) Process(_ context.Context, s *Sheet) error {
	if s.Deps == nil {
		s.Deps = map[string]string{}
	}
	ex := &expander{root: p.root, deps: s.Deps, seen: map[string]bool{s.Entry: true}}
	frags, err := ex.expand(s.Entry, nil)
	if err != nil {
		return err
	}
	s.Fragments = frags
	return nil
}

type expander struct {
	root string
	deps map[string]string
	seen map[string]bool
}

func (ex *expander) expand(file string, chain []string) ([]Fragment, error) {
	src, err := os.ReadFile(file)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "read stylesheet").
			WithContext("path", file).Build()
	}
	ex.deps[file] = fsutil.HashBytes(src)

	rules, err := scanAtRules(src)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryTransform, "tokenize stylesheet").
			WithContext("path", file).Build()
	}

	var frags []Fragment
	pos := 0
	chain = append(chain, file)
	for _, rule := range rules {
		if rule.name != "import" || rule.block {
			continue
		}
		target, media := parseImport(rule.prelude(src))
		if target == "" || isRemote(target) {
			continue
		}
		resolved, err := resolveImport(ex.root, file, target)
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryTransform, "unresolved import").
				WithContext("path", file).WithContext("import", target).Build()
		}

		frags = append(frags, Fragment{File: file, CSS: src[pos:rule.start]})
		pos = min(rule.end+1, len(src))

		if slices.Contains(chain, resolved) {
			cycle := append(slices.Clone(chain[slices.Index(chain, resolved):]), resolved)
			return nil, ex.cycleError(cycle)
		}
		if ex.seen[resolved] {
			continue
		}
		ex.seen[resolved] = true

		child, err := ex.expand(resolved, chain)
		if err != nil {
			return nil, err
		}
		if media != "" {
			frags = append(frags, Fragment{File: file, CSS: []byte("@media " + media + " {\n")})
			frags = append(frags, child...)
			frags = append(frags, Fragment{File: file, CSS: []byte("\n}\n")})
		} else {
			frags = append(frags, child...)
		}
	}
	frags = append(frags, Fragment{File: file, CSS: src[pos:]})
	return frags, nil
}

func (ex *expander) cycleError(chain []string) error {
	names := make([]string, len(chain))
	for i, f := range chain {
		names[i] = displayPath(ex.root, f)
	}
	return ferrors.TransformError("import cycle: " + strings.Join(names, " -> ")).
		WithContext("path", chain[0]).Build()
}

// parseImport extracts the target and the trailing media query list from
// an @import prelude.
func parseImport(prelude string) (target, media string) {
	toks, err := tokenize([]byte(prelude))
	if err != nil {
		return "", ""
	}
	i := 0
	for i < len(toks) && toks[i].tt == css.WhitespaceToken {
		i++
	}
	if i == len(toks) {
		return "", ""
	}
	switch t := toks[i]; {
	case t.tt == css.StringToken:
		target = unquote(string(t.text))
		i++
	case t.tt == css.URLToken:
		target = urlTokenValue(t.text)
		i++
	case t.tt == css.FunctionToken && strings.EqualFold(string(t.text), "url("):
		i++
		for i < len(toks) && toks[i].tt != css.RightParenthesisToken {
			if toks[i].tt == css.StringToken {
				target = unquote(string(toks[i].text))
			}
			i++
		}
		i++
	default:
		return "", ""
	}
	if i < len(toks) {
		media = strings.TrimSpace(string(join(toks[i:])))
	}
	return target, media
}

func isRemote(target string) bool {
	lower := strings.ToLower(target)
	return strings.HasPrefix(lower, "//") || strings.Contains(lower, "://")
}

// resolveImport looks for target next to the importing file, then below the styles root.
func resolveImport(root, from, target string) (string, error) {
	rel := filepath.FromSlash(target)
	candidates := []string{filepath.Join(filepath.Dir(from), rel), filepath.Join(root, rel)}
	if filepath.Ext(rel) == "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(from), rel+".css"))
	}
	for _, c := range candidates {
		info, err := os.Stat(c)
		if err == nil && info.Mode().IsRegular() {
			return c, nil
		}
	}
	return "", fs.ErrNotExist
}

// scanImports returns the local files src imports directly. Unresolvable
// imports are ignored here; they fail when the entry is processed.
func scanImports(root, file string) ([]string, error) {
	src, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	rules, err := scanAtRules(src)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, rule := range rules {
		if rule.name != "import" || rule.block {
			continue
		}
		target, _ := parseImport(rule.prelude(src))
		if target == "" || isRemote(target) {
			continue
		}
		resolved, err := resolveImport(root, file, target)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		out = append(out, resolved)
	}
	return out, nil
}

func displayPath(root, file string) string {
	if rel, err := filepath.Rel(root, file); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return file
}
