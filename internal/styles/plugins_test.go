package styles

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewriteRanges(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"(width >= 600px)", "(min-width: 600px)"},
		{"(width <= 40em)", "(max-width: 40em)"},
		{"(width > 600px)", "(min-width: 600.001px)"},
		{"(width < 600px)", "(max-width: 599.999px)"},
		{"(600px <= width)", "(min-width: 600px)"},
		{"(400px <= width <= 700px)", "(min-width: 400px) and (max-width: 700px)"},
		{"screen and (height >= 10rem)", "screen and (min-height: 10rem)"},
		{"(orientation: landscape)", "(orientation: landscape)"},
		{"(width = 1.5em)", "(width: 1.5em)"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, rewriteRanges(tt.in))
		})
	}
}

func TestCustomMediaExpandsAliases(t *testing.T) {
	s := &Sheet{Entry: "site.css", CSS: []byte(
		"@custom-media --small (max-width: 30em);\n" +
			"@custom-media --small-print print and (--small);\n" +
			"@media (--small) { .a { color: red; } }\n" +
			"@media (--small-print) { .b { color: blue; } }\n" +
			"@media (--unknown) { .c { color: green; } }\n")}

	p := &customMediaPlugin{logger: slog.New(slog.DiscardHandler)}
	require.NoError(t, p.Process(context.Background(), s))

	got := string(s.CSS)
	assert.NotContains(t, got, "@custom-media")
	assert.Contains(t, got, "@media (max-width: 30em) { .a")
	assert.Contains(t, got, "@media print and (max-width: 30em) { .b")
	assert.Contains(t, got, "@media (--unknown)")
}

func TestLogicalProperties(t *testing.T) {
	s := &Sheet{Entry: "site.css", CSS: []byte(
		".a { margin-inline-start: 1px; padding-block: 2px 3px; }\n" +
			".b { inset-inline: 0; text-align: start !important }\n" +
			".c { border-inline: 1px solid red; float: inline-end; }\n" +
			".d:hover { color: red; }\n")}

	require.NoError(t, (&logicalPlugin{}).Process(context.Background(), s))

	got := string(s.CSS)
	assert.Contains(t, got, ".a { margin-left: 1px; padding-top: 2px; padding-bottom: 3px; }")
	assert.Contains(t, got, "left: 0; right: 0;")
	assert.Contains(t, got, "text-align: left !important }")
	assert.Contains(t, got, "border-left: 1px solid red; border-right: 1px solid red;")
	assert.Contains(t, got, "float: right;")
	assert.Contains(t, got, ".d:hover { color: red; }")
}

func TestSplitValuesKeepsFunctions(t *testing.T) {
	assert.Equal(t, []string{"calc(1px + 2px)", "3px"}, splitValues("calc(1px + 2px) 3px"))
}

func TestParseImport(t *testing.T) {
	tests := []struct {
		prelude, target, media string
	}{
		{` "a.css"`, "a.css", ""},
		{` url(a.css)`, "a.css", ""},
		{` url("a.css") screen and (min-width: 10px)`, "a.css", "screen and (min-width: 10px)"},
		{` 'parts/b'`, "parts/b", ""},
	}
	for _, tt := range tests {
		target, media := parseImport(tt.prelude)
		assert.Equal(t, tt.target, target, tt.prelude)
		assert.Equal(t, tt.media, media, tt.prelude)
	}
}

func TestDataURI(t *testing.T) {
	svg := dataURI("icon.svg", []byte("<svg fill=\"#fff\">\n  <path/>\n</svg>"))
	assert.Equal(t, "data:image/svg+xml,%3Csvg fill='%23fff'%3E %3Cpath/%3E %3C/svg%3E", svg)

	png := dataURI("dot.png", []byte{1, 2, 3})
	assert.Equal(t, "data:image/png;base64,AQID", png)
}
