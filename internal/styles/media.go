package styles

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// customMediaPlugin expands @custom-media aliases inside @media preludes
// and drops the definitions.
type customMediaPlugin struct {
	logger *slog.Logger
}

func (p *customMediaPlugin) Name() string { return "custom-media" }

var customMediaRef = regexp.MustCompile(`\(\s*(--[A-Za-z0-9_-]+)\s*\)`)

func (p *customMediaPlugin) Process(_ context.Context, s *Sheet) error {
	src := s.Join()
	rules, err := scanAtRules(src)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryTransform, "tokenize stylesheet").
			WithContext("path", s.Entry).Build()
	}

	defs := map[string]string{}
	var edits []edit
	for _, r := range rules {
		if r.name != "custom-media" || r.block {
			continue
		}
		name, query, ok := strings.Cut(strings.TrimSpace(r.prelude(src)), " ")
		if !ok || !strings.HasPrefix(name, "--") {
			continue
		}
		defs[name] = strings.TrimSpace(query)
		edits = append(edits, edit{start: r.start, end: min(r.end+1, len(src))})
	}
	if len(defs) == 0 {
		return nil
	}

	// Definitions may reference each other; a bounded number of passes
	// keeps a self-referencing alias from looping.
	for range len(defs) {
		changed := false
		for name, query := range defs {
			expanded := p.expand(query, defs, s.Entry)
			if expanded != query {
				defs[name] = expanded
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	for _, r := range rules {
		if r.name != "media" {
			continue
		}
		prelude := r.prelude(src)
		expanded := p.expand(prelude, defs, s.Entry)
		if expanded != prelude {
			edits = append(edits, edit{start: r.preludeStart, end: r.end, text: expanded})
		}
	}
	sortEdits(edits)
	s.CSS = applyEdits(src, edits)
	return nil
}

func (p *customMediaPlugin) expand(query string, defs map[string]string, entry string) string {
	return customMediaRef.ReplaceAllStringFunc(query, func(m string) string {
		name := customMediaRef.FindStringSubmatch(m)[1]
		if q, ok := defs[name]; ok {
			return q
		}
		p.logger.Warn("Undefined custom media", logfields.Path(entry), slog.String("name", name))
		return m
	})
}

// minmaxPlugin rewrites media feature ranges into min-/max- features:
// (width >= 600px) becomes (min-width: 600px). Strict comparisons shift
// the value by .001 of its unit.
type minmaxPlugin struct{}

func (p *minmaxPlugin) Name() string { return "media-minmax" }

var (
	mediaGroup     = regexp.MustCompile(`\(([^()]*)\)`)
	featureFirst   = regexp.MustCompile(`^\s*([a-z-]+)\s*(<=|>=|<|>|=)\s*([^<>=\s]+)\s*$`)
	valueFirst     = regexp.MustCompile(`^\s*([^<>=\s]+)\s*(<=|>=|<|>|=)\s*([a-z-]+)\s*$`)
	featureBetween = regexp.MustCompile(`^\s*([^<>=\s]+)\s*(<=|<|>=|>)\s*([a-z-]+)\s*(<=|<|>=|>)\s*([^<>=\s]+)\s*$`)
	numberUnit     = regexp.MustCompile(`^(-?\d*\.?\d+)([a-zA-Z%]*)$`)
)

func (p *minmaxPlugin) Process(_ context.Context, s *Sheet) error {
	src := s.Join()
	rules, err := scanAtRules(src)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryTransform, "tokenize stylesheet").
			WithContext("path", s.Entry).Build()
	}
	var edits []edit
	for _, r := range rules {
		if r.name != "media" && r.name != "custom-media" {
			continue
		}
		prelude := r.prelude(src)
		rewritten := rewriteRanges(prelude)
		if rewritten != prelude {
			edits = append(edits, edit{start: r.preludeStart, end: r.end, text: rewritten})
		}
	}
	s.CSS = applyEdits(src, edits)
	return nil
}

func rewriteRanges(prelude string) string {
	return mediaGroup.ReplaceAllStringFunc(prelude, func(group string) string {
		inner := group[1 : len(group)-1]
		if m := featureBetween.FindStringSubmatch(inner); m != nil {
			// 400px <= width <= 700px: both bounds, seen from the feature.
			lower := feature(m[3], flip(m[2]), m[1])
			upper := feature(m[3], m[4], m[5])
			if lower == "" || upper == "" {
				return group
			}
			return lower + " and " + upper
		}
		if m := featureFirst.FindStringSubmatch(inner); m != nil {
			if f := feature(m[1], m[2], m[3]); f != "" {
				return f
			}
			return group
		}
		if m := valueFirst.FindStringSubmatch(inner); m != nil {
			if f := feature(m[3], flip(m[2]), m[1]); f != "" {
				return f
			}
		}
		return group
	})
}

// feature renders "name op value" as a min-/max- media feature.
func feature(name, op, value string) string {
	switch op {
	case "=":
		return "(" + name + ": " + value + ")"
	case ">=":
		return "(min-" + name + ": " + value + ")"
	case "<=":
		return "(max-" + name + ": " + value + ")"
	case ">":
		if v, ok := shift(value, 0.001); ok {
			return "(min-" + name + ": " + v + ")"
		}
	case "<":
		if v, ok := shift(value, -0.001); ok {
			return "(max-" + name + ": " + v + ")"
		}
	}
	return ""
}

func flip(op string) string {
	switch op {
	case "<":
		return ">"
	case ">":
		return "<"
	case "<=":
		return ">="
	case ">=":
		return "<="
	}
	return op
}

func shift(value string, delta float64) (string, bool) {
	m := numberUnit.FindStringSubmatch(value)
	if m == nil {
		return "", false
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return "", false
	}
	n += delta
	prec := 3
	if _, frac, ok := strings.Cut(m[1], "."); ok {
		prec = max(prec, len(frac))
	}
	formatted := strconv.FormatFloat(n, 'f', prec, 64)
	formatted = strings.TrimRight(strings.TrimRight(formatted, "0"), ".")
	return formatted + m[2], true
}
