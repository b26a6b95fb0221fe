package styles

import (
	"bytes"
	"cmp"
	"errors"
	"io"
	"slices"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

type token struct {
	tt   css.TokenType
	text []byte
}

// tokenize splits src into CSS tokens. Concatenating the token texts
// yields src again, so plugins can rewrite selected tokens in place.
func tokenize(src []byte) ([]token, error) {
	l := css.NewLexer(parse.NewInputBytes(src))
	var toks []token
	for {
		tt, text := l.Next()
		if tt == css.ErrorToken {
			if err := l.Err(); err != nil && !errors.Is(err, io.EOF) {
				return nil, err
			}
			return toks, nil
		}
		toks = append(toks, token{tt: tt, text: bytes.Clone(text)})
	}
}

func join(toks []token) []byte {
	var buf bytes.Buffer
	for _, t := range toks {
		buf.Write(t.text)
	}
	return buf.Bytes()
}

// atRule locates an at-rule head in a source buffer. Offsets are byte
// positions: start is the '@', prelude runs from preludeStart to end, and
// end is the position of the terminating ';' or '{' (or len(src)).
type atRule struct {
	name         string
	start        int
	preludeStart int
	end          int
	block        bool
}

func (r atRule) prelude(src []byte) string {
	return string(src[r.preludeStart:r.end])
}

// scanAtRules finds every at-rule head, nested ones included.
func scanAtRules(src []byte) ([]atRule, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	var rules []atRule
	offset := 0
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.tt != css.AtKeywordToken {
			offset += len(t.text)
			continue
		}
		rule := atRule{
			name:         strings.ToLower(string(t.text[1:])),
			start:        offset,
			preludeStart: offset + len(t.text),
		}
		offset += len(t.text)
		depth := 0
		j := i + 1
		for ; j < len(toks); j++ {
			tt := toks[j].tt
			if depth == 0 && (tt == css.SemicolonToken || tt == css.LeftBraceToken) {
				rule.block = tt == css.LeftBraceToken
				break
			}
			switch tt {
			case css.LeftParenthesisToken, css.FunctionToken:
				depth++
			case css.RightParenthesisToken:
				if depth > 0 {
					depth--
				}
			}
			offset += len(toks[j].text)
		}
		rule.end = offset
		rules = append(rules, rule)
		// Resume at the terminator so nested rules inside blocks are found.
		i = j - 1
	}
	return rules, nil
}

type edit struct {
	start, end int
	text       string
}

func sortEdits(edits []edit) {
	slices.SortFunc(edits, func(a, b edit) int { return cmp.Compare(a.start, b.start) })
}

// applyEdits replaces non-overlapping byte ranges; edits must be sorted by start.
func applyEdits(src []byte, edits []edit) []byte {
	if len(edits) == 0 {
		return src
	}
	var buf bytes.Buffer
	pos := 0
	for _, e := range edits {
		buf.Write(src[pos:e.start])
		buf.WriteString(e.text)
		pos = e.end
	}
	buf.Write(src[pos:])
	return buf.Bytes()
}

// unquote strips CSS string quotes. Escapes are left as written.
func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// urlTokenValue extracts the address of an unquoted url(...) token.
func urlTokenValue(text []byte) string {
	s := string(text)
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return ""
	}
	return unquote(strings.TrimSpace(s[open+1 : len(s)-1]))
}
