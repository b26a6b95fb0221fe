package styles

import (
	"context"
	"strings"

	"github.com/tdewolff/parse/v2/css"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// logicalPlugin maps logical properties and values onto their physical
// left-to-right equivalents.
type logicalPlugin struct{}

func (p *logicalPlugin) Name() string { return "logical" }

// Longhands map one-to-one.
var logicalLonghands = map[string]string{
	"margin-inline-start":        "margin-left",
	"margin-inline-end":          "margin-right",
	"margin-block-start":         "margin-top",
	"margin-block-end":           "margin-bottom",
	"padding-inline-start":       "padding-left",
	"padding-inline-end":         "padding-right",
	"padding-block-start":        "padding-top",
	"padding-block-end":          "padding-bottom",
	"inset-inline-start":         "left",
	"inset-inline-end":           "right",
	"inset-block-start":          "top",
	"inset-block-end":            "bottom",
	"border-inline-start":        "border-left",
	"border-inline-end":          "border-right",
	"border-block-start":         "border-top",
	"border-block-end":           "border-bottom",
	"border-inline-start-width":  "border-left-width",
	"border-inline-end-width":    "border-right-width",
	"border-block-start-width":   "border-top-width",
	"border-block-end-width":     "border-bottom-width",
	"border-inline-start-style":  "border-left-style",
	"border-inline-end-style":    "border-right-style",
	"border-block-start-style":   "border-top-style",
	"border-block-end-style":     "border-bottom-style",
	"border-inline-start-color":  "border-left-color",
	"border-inline-end-color":    "border-right-color",
	"border-block-start-color":   "border-top-color",
	"border-block-end-color":     "border-bottom-color",
	"border-start-start-radius":  "border-top-left-radius",
	"border-start-end-radius":    "border-top-right-radius",
	"border-end-start-radius":    "border-bottom-left-radius",
	"border-end-end-radius":      "border-bottom-right-radius",
	"inline-size":                "width",
	"block-size":                 "height",
	"min-inline-size":            "min-width",
	"min-block-size":             "min-height",
	"max-inline-size":            "max-width",
	"max-block-size":             "max-height",
	"overscroll-behavior-inline": "overscroll-behavior-x",
	"overscroll-behavior-block":  "overscroll-behavior-y",
}

// Shorthands take one or two values: start, then end.
var logicalPairs = map[string][2]string{
	"margin-inline":  {"margin-left", "margin-right"},
	"margin-block":   {"margin-top", "margin-bottom"},
	"padding-inline": {"padding-left", "padding-right"},
	"padding-block":  {"padding-top", "padding-bottom"},
	"inset-inline":   {"left", "right"},
	"inset-block":    {"top", "bottom"},
}

// Border shorthands repeat the whole value on both sides.
var logicalBorders = map[string][2]string{
	"border-inline":       {"border-left", "border-right"},
	"border-block":        {"border-top", "border-bottom"},
	"border-inline-width": {"border-left-width", "border-right-width"},
	"border-block-width":  {"border-top-width", "border-bottom-width"},
	"border-inline-style": {"border-left-style", "border-right-style"},
	"border-block-style":  {"border-top-style", "border-bottom-style"},
	"border-inline-color": {"border-left-color", "border-right-color"},
	"border-block-color":  {"border-top-color", "border-bottom-color"},
}

// Properties whose keyword values have logical forms.
var logicalValues = map[string]map[string]string{
	"text-align": {"start": "left", "end": "right"},
	"float":      {"inline-start": "left", "inline-end": "right"},
	"clear":      {"inline-start": "left", "inline-end": "right"},
	"resize":     {"inline": "horizontal", "block": "vertical"},
}

func (p *logicalPlugin) Process(_ context.Context, s *Sheet) error {
	src := s.Join()
	decls, err := declarations(src)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryTransform, "tokenize stylesheet").
			WithContext("path", s.Entry).Build()
	}
	var edits []edit
	for _, d := range decls {
		if text, ok := physical(d.property, d.value); ok {
			edits = append(edits, edit{start: d.start, end: d.end, text: text})
		}
	}
	s.CSS = applyEdits(src, edits)
	return nil
}

// physical returns the replacement declaration text for a logical
// declaration.
func physical(property, value string) (string, bool) {
	prop := strings.ToLower(property)
	value, important := splitImportant(value)
	decl := func(name, v string) string { return name + ": " + v + important }

	if name, ok := logicalLonghands[prop]; ok {
		return decl(name, value), true
	}
	if sides, ok := logicalPairs[prop]; ok {
		parts := splitValues(value)
		switch len(parts) {
		case 1:
			return decl(sides[0], parts[0]) + "; " + decl(sides[1], parts[0]), true
		case 2:
			return decl(sides[0], parts[0]) + "; " + decl(sides[1], parts[1]), true
		}
		return "", false
	}
	if sides, ok := logicalBorders[prop]; ok {
		return decl(sides[0], value) + "; " + decl(sides[1], value), true
	}
	if prop == "inset" {
		parts := splitValues(value)
		var top, right, bottom, left string
		switch len(parts) {
		case 1:
			top, right, bottom, left = parts[0], parts[0], parts[0], parts[0]
		case 2:
			top, right, bottom, left = parts[0], parts[1], parts[0], parts[1]
		case 3:
			top, right, bottom, left = parts[0], parts[1], parts[2], parts[1]
		case 4:
			top, right, bottom, left = parts[0], parts[1], parts[2], parts[3]
		default:
			return "", false
		}
		return strings.Join([]string{
			decl("top", top), decl("right", right), decl("bottom", bottom), decl("left", left),
		}, "; "), true
	}
	if keywords, ok := logicalValues[prop]; ok {
		if v, ok := keywords[strings.ToLower(value)]; ok {
			return decl(property, v), true
		}
	}
	return "", false
}

func splitImportant(value string) (string, string) {
	lower := strings.ToLower(value)
	if i := strings.LastIndex(lower, "!important"); i >= 0 && strings.TrimSpace(lower[i+len("!important"):]) == "" {
		return strings.TrimSpace(value[:i]), " !important"
	}
	return value, ""
}

// splitValues splits a component value list at top-level whitespace.
func splitValues(value string) []string {
	toks, err := tokenize([]byte(value))
	if err != nil {
		return strings.Fields(value)
	}
	var parts []string
	var cur strings.Builder
	depth := 0
	for _, t := range toks {
		switch t.tt {
		case css.FunctionToken, css.LeftParenthesisToken:
			depth++
		case css.RightParenthesisToken:
			depth--
		case css.WhitespaceToken:
			if depth == 0 {
				if cur.Len() > 0 {
					parts = append(parts, cur.String())
					cur.Reset()
				}
				continue
			}
		}
		cur.Write(t.text)
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

// declaration spans "property: value" without the terminating ';' or '}'.
type declaration struct {
	property   string
	value      string
	start, end int
}

// declarations finds property declarations: an identifier and a colon at
// the start of a statement, followed by a value that ends in ';' or '}'.
// Statements that turn out to open a block are selectors and are skipped.
func declarations(src []byte) ([]declaration, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	offsets := make([]int, len(toks)+1)
	for i, t := range toks {
		offsets[i+1] = offsets[i] + len(t.text)
	}

	var decls []declaration
	statementStart := true
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		switch t.tt {
		case css.LeftBraceToken, css.SemicolonToken, css.RightBraceToken:
			statementStart = true
			continue
		case css.WhitespaceToken, css.CommentToken:
			continue
		}
		if !statementStart {
			continue
		}
		statementStart = false
		if t.tt != css.IdentToken && t.tt != css.CustomPropertyNameToken {
			continue
		}
		j := i + 1
		for j < len(toks) && toks[j].tt == css.WhitespaceToken {
			j++
		}
		if j >= len(toks) || toks[j].tt != css.ColonToken {
			continue
		}
		k, depth := j+1, 0
		for ; k < len(toks); k++ {
			tt := toks[k].tt
			if depth == 0 && (tt == css.SemicolonToken || tt == css.RightBraceToken || tt == css.LeftBraceToken) {
				break
			}
			switch tt {
			case css.FunctionToken, css.LeftParenthesisToken, css.LeftBracketToken:
				depth++
			case css.RightParenthesisToken, css.RightBracketToken:
				depth--
			}
		}
		if k < len(toks) && toks[k].tt == css.LeftBraceToken {
			// a:hover { ... } is a nested selector, not a declaration
			i = k - 1
			continue
		}
		end := offsets[k]
		value := strings.TrimSpace(string(src[offsets[j+1]:end]))
		// Trim trailing whitespace from the replaced span.
		for end > offsets[j+1] && isSpace(src[end-1]) {
			end--
		}
		decls = append(decls, declaration{
			property: string(t.text),
			value:    value,
			start:    offsets[i],
			end:      end,
		})
		i = k - 1
	}
	return decls, nil
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f'
}
