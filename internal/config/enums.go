package config

import (
	"git.home.luguber.info/inful/sitebuilder/internal/foundation/normalization"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

// MarkupMode selects how pages are produced.
type MarkupMode string

const (
	MarkupTemplate    MarkupMode = "template"
	MarkupPassthrough MarkupMode = "passthrough"
)

var markupModeEnum = normalization.NewEnum(map[string]MarkupMode{
	"template":    MarkupTemplate,
	"nunjucks":    MarkupTemplate,
	"passthrough": MarkupPassthrough,
	"html":        MarkupPassthrough,
}, MarkupTemplate)

// StyleOutput selects one output file per entry or a single bundle.
type StyleOutput string

const (
	StyleOutputFiles  StyleOutput = "files"
	StyleOutputBundle StyleOutput = "bundle"
)

var styleOutputEnum = normalization.NewEnum(map[string]StyleOutput{
	"files":  StyleOutputFiles,
	"bundle": StyleOutputBundle,
}, StyleOutputFiles)

// ScriptMode selects bundling entry points or transpiling every file.
type ScriptMode string

const (
	ScriptBundle    ScriptMode = "bundle"
	ScriptTranspile ScriptMode = "transpile"
)

var scriptModeEnum = normalization.NewEnum(map[string]ScriptMode{
	"bundle":    ScriptBundle,
	"transpile": ScriptTranspile,
}, ScriptBundle)

// LogLevel enumerates supported logging levels.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var logLevelEnum = normalization.NewEnum(map[string]LogLevel{
	"debug":   LogLevelDebug,
	"info":    LogLevelInfo,
	"warn":    LogLevelWarn,
	"warning": LogLevelWarn,
	"error":   LogLevelError,
}, LogLevelInfo)

// NormalizeLogLevel maps raw onto a LogLevel, falling back to info.
func NormalizeLogLevel(raw string) LogLevel {
	return logLevelEnum.Normalize(raw)
}

// LogFormat enumerates supported log output formats.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

var logFormatEnum = normalization.NewEnum(map[string]LogFormat{
	"json": LogFormatJSON,
	"text": LogFormatText,
}, LogFormatText)

var modeEnum = normalization.NewEnum(map[string]site.Mode{
	"development": site.Development,
	"dev":         site.Development,
	"production":  site.Production,
	"prod":        site.Production,
}, site.Development)

// scriptTargets are the esbuild language targets accepted for transpile mode.
var scriptTargets = normalization.NewEnum(map[string]string{
	"es2015": "es2015",
	"es2016": "es2016",
	"es2017": "es2017",
	"es2018": "es2018",
	"es2019": "es2019",
	"es2020": "es2020",
	"es2021": "es2021",
	"es2022": "es2022",
	"es2023": "es2023",
	"es2024": "es2024",
	"esnext": "esnext",
}, "es2015")
