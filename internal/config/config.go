package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

// DefaultFile is read when no --config flag is given. A missing default
// file is not an error; the built-in defaults are used.
const DefaultFile = "sitebuild.yaml"

// Config is the complete build configuration.
type Config struct {
	Paths   PathsConfig    `yaml:"paths"`
	Markup  MarkupConfig   `yaml:"markup"`
	Styles  StylesConfig   `yaml:"styles"`
	Scripts ScriptsConfig  `yaml:"scripts"`
	Icons   IconsConfig    `yaml:"icons"`
	Watch   WatchConfig    `yaml:"watch"`
	Server  ServerConfig   `yaml:"server"`
	Metrics MetricsConfig  `yaml:"metrics"`
	History HistoryConfig  `yaml:"history"`
	Notify  NotifyConfig   `yaml:"notify"`
	Logging LoggingConfig  `yaml:"logging"`
	Site    map[string]any `yaml:"site,omitempty"` // handed to templates as `site`

	// Mode is resolved from SITEBUILD_ENV or the --env flag, never from YAML.
	Mode site.Mode `yaml:"-"`
	// File is the config file that was read, empty when defaults were used.
	File string `yaml:"-"`
}

// PathsConfig lists the source roots and the output root. Relative paths
// are resolved against the directory holding the config file.
type PathsConfig struct {
	Static     string   `yaml:"static"`
	Pages      string   `yaml:"pages"`
	Components []string `yaml:"components"`
	Styles     string   `yaml:"styles"`
	Scripts    string   `yaml:"scripts"`
	Icons      string   `yaml:"icons"`
	Output     string   `yaml:"output"`
}

type MarkupConfig struct {
	Mode       MarkupMode `yaml:"mode"`
	Extensions []string   `yaml:"extensions"`
	Markdown   *bool      `yaml:"markdown,omitempty"`
}

// MarkdownEnabled reports whether *.md pages are rendered (default true).
func (m MarkupConfig) MarkdownEnabled() bool { return m.Markdown == nil || *m.Markdown }

type StylesConfig struct {
	Output       StyleOutput `yaml:"output"`
	Bundle       string      `yaml:"bundle"`
	InlineFilter string      `yaml:"inline_filter"`
	Browsers     []string    `yaml:"browsers"`
}

type ScriptsConfig struct {
	Mode   ScriptMode `yaml:"mode"`
	Target string     `yaml:"target"`
}

type IconsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Separator string `yaml:"separator"`
	Sprite    string `yaml:"sprite"`
}

type WatchConfig struct {
	Debounce  time.Duration `yaml:"debounce"`
	QueueSize int           `yaml:"queue_size"`
	// FullRebuildInterval schedules a cache reset and rebuild of every step; 0 disables it.
	FullRebuildInterval time.Duration `yaml:"full_rebuild_interval"`
}

type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	LiveReload     *bool         `yaml:"live_reload,omitempty"`
	ReloadDebounce time.Duration `yaml:"reload_debounce"`
}

// LiveReloadEnabled reports whether the reload script is injected (default true).
func (s ServerConfig) LiveReloadEnabled() bool { return s.LiveReload == nil || *s.LiveReload }

// Addr returns host:port for the listener.
func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type NotifyConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// Load reads configPath, or DefaultFile when configPath is empty, applies
// defaults, resolves paths and validates the result.
func Load(configPath string) (*Config, error) {
	explicit := configPath != ""
	if !explicit {
		configPath = DefaultFile
	}

	baseDir := filepath.Dir(configPath)
	LoadEnvFiles(baseDir)

	cfg := &Config{}
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := decode(data, cfg); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to parse config").
				WithContext("file", configPath).Fatal().Build()
		}
		cfg.File = configPath
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// built-in defaults only
	case errors.Is(err, os.ErrNotExist):
		return nil, ferrors.ConfigError("configuration file not found").WithContext("file", configPath).Build()
	default:
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read config").
			WithContext("file", configPath).Fatal().Build()
	}

	mode, err := ResolveMode("")
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode

	if err := applyDefaults(cfg); err != nil {
		return nil, err
	}
	if err := cfg.resolvePaths(baseDir); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied and paths
// resolved against baseDir.
func Default(baseDir string) (*Config, error) {
	cfg := &Config{Mode: site.Development}
	if err := applyDefaults(cfg); err != nil {
		return nil, err
	}
	if err := cfg.resolvePaths(baseDir); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetMode overrides the mode picked up from the environment.
func (c *Config) SetMode(raw string) error {
	if raw == "" {
		return nil
	}
	mode, err := modeEnum.Parse(raw)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryValidation, "invalid --env").Build()
	}
	c.Mode = mode
	return nil
}

func decode(data []byte, cfg *Config) error {
	expanded := os.ExpandEnv(string(data))
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) resolvePaths(baseDir string) error {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "resolve base directory").Fatal().Build()
	}
	resolve := func(p string) string {
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Join(abs, p)
	}
	c.Paths.Static = resolve(c.Paths.Static)
	c.Paths.Pages = resolve(c.Paths.Pages)
	c.Paths.Styles = resolve(c.Paths.Styles)
	c.Paths.Scripts = resolve(c.Paths.Scripts)
	c.Paths.Icons = resolve(c.Paths.Icons)
	c.Paths.Output = resolve(c.Paths.Output)
	for i, dir := range c.Paths.Components {
		c.Paths.Components[i] = resolve(dir)
	}
	c.History.Path = resolve(c.History.Path)
	return nil
}

// SourceRoots returns every watched source root with its category.
// Component directories belong to the markup category; the icons root is
// only included when the icon step is enabled.
func (c *Config) SourceRoots() map[string]site.Category {
	roots := map[string]site.Category{
		c.Paths.Static:  site.CategoryStatic,
		c.Paths.Pages:   site.CategoryMarkup,
		c.Paths.Styles:  site.CategoryStyles,
		c.Paths.Scripts: site.CategoryScript,
	}
	for _, dir := range c.Paths.Components {
		roots[dir] = site.CategoryMarkup
	}
	if c.Icons.Enabled {
		roots[c.Paths.Icons] = site.CategoryIcons
	}
	return roots
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return ferrors.ValidationError("configuration file already exists (use --force to overwrite)").
			WithContext("file", configPath).Build()
	}

	example := &Config{}
	if err := applyDefaults(example); err != nil {
		return err
	}
	example.Site = map[string]any{"title": "My Site", "base_url": "http://localhost:3000"}

	data, err := yaml.Marshal(example)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to marshal config").Build()
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to write config file").
			WithContext("file", configPath).Build()
	}
	return nil
}
