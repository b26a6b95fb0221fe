package config

import (
	"time"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

const defaultHistoryPath = ".sitebuild/history.db"

// DefaultApplier applies defaults for one configuration section.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

func defaultAppliers() []DefaultApplier {
	return []DefaultApplier{
		pathsDefaults{},
		markupDefaults{},
		stylesDefaults{},
		scriptsDefaults{},
		iconsDefaults{},
		watchDefaults{},
		serverDefaults{},
		historyDefaults{},
		notifyDefaults{},
		loggingDefaults{},
	}
}

func applyDefaults(cfg *Config) error {
	for _, applier := range defaultAppliers() {
		if err := applier.ApplyDefaults(cfg); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryConfig, "invalid configuration").
				WithContext("section", applier.Domain()).Fatal().Build()
		}
	}
	return nil
}

type pathsDefaults struct{}

func (pathsDefaults) Domain() string { return "paths" }

func (pathsDefaults) ApplyDefaults(cfg *Config) error {
	p := &cfg.Paths
	setDefault(&p.Static, "./source/static")
	setDefault(&p.Pages, "./source/pages")
	setDefault(&p.Styles, "./source/styles")
	setDefault(&p.Scripts, "./source/scripts")
	setDefault(&p.Icons, "./source/icons")
	setDefault(&p.Output, "./dist")
	if len(p.Components) == 0 {
		p.Components = []string{"./source/components"}
	}
	return nil
}

type markupDefaults struct{}

func (markupDefaults) Domain() string { return "markup" }

func (markupDefaults) ApplyDefaults(cfg *Config) error {
	mode, err := markupModeEnum.Parse(string(cfg.Markup.Mode))
	if err != nil {
		return err
	}
	cfg.Markup.Mode = mode
	if len(cfg.Markup.Extensions) == 0 {
		if mode == MarkupPassthrough {
			cfg.Markup.Extensions = []string{".html"}
		} else {
			cfg.Markup.Extensions = []string{".njk"}
		}
	}
	return nil
}

type stylesDefaults struct{}

func (stylesDefaults) Domain() string { return "styles" }

func (stylesDefaults) ApplyDefaults(cfg *Config) error {
	out, err := styleOutputEnum.Parse(string(cfg.Styles.Output))
	if err != nil {
		return err
	}
	cfg.Styles.Output = out
	setDefault(&cfg.Styles.Bundle, "bundle.css")
	setDefault(&cfg.Styles.InlineFilter, "**/*.svg")
	if len(cfg.Styles.Browsers) == 0 {
		cfg.Styles.Browsers = []string{"chrome109", "edge109", "firefox115", "safari15.6", "ios15.6"}
	}
	return nil
}

type scriptsDefaults struct{}

func (scriptsDefaults) Domain() string { return "scripts" }

func (scriptsDefaults) ApplyDefaults(cfg *Config) error {
	mode, err := scriptModeEnum.Parse(string(cfg.Scripts.Mode))
	if err != nil {
		return err
	}
	cfg.Scripts.Mode = mode
	target, err := scriptTargets.Parse(cfg.Scripts.Target)
	if err != nil {
		return err
	}
	cfg.Scripts.Target = target
	return nil
}

type iconsDefaults struct{}

func (iconsDefaults) Domain() string { return "icons" }

func (iconsDefaults) ApplyDefaults(cfg *Config) error {
	setDefault(&cfg.Icons.Separator, "-")
	setDefault(&cfg.Icons.Sprite, "sprite.svg")
	return nil
}

type watchDefaults struct{}

func (watchDefaults) Domain() string { return "watch" }

func (watchDefaults) ApplyDefaults(cfg *Config) error {
	if cfg.Watch.Debounce <= 0 {
		cfg.Watch.Debounce = 150 * time.Millisecond
	}
	if cfg.Watch.QueueSize <= 0 {
		cfg.Watch.QueueSize = 256
	}
	if cfg.Watch.FullRebuildInterval < 0 {
		cfg.Watch.FullRebuildInterval = 0
	}
	return nil
}

type serverDefaults struct{}

func (serverDefaults) Domain() string { return "server" }

func (serverDefaults) ApplyDefaults(cfg *Config) error {
	setDefault(&cfg.Server.Host, "localhost")
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.ReloadDebounce <= 0 {
		cfg.Server.ReloadDebounce = 200 * time.Millisecond
	}
	return nil
}

type historyDefaults struct{}

func (historyDefaults) Domain() string { return "history" }

func (historyDefaults) ApplyDefaults(cfg *Config) error {
	setDefault(&cfg.History.Path, defaultHistoryPath)
	return nil
}

type notifyDefaults struct{}

func (notifyDefaults) Domain() string { return "notify" }

func (notifyDefaults) ApplyDefaults(cfg *Config) error {
	setDefault(&cfg.Notify.Subject, "sitebuild.builds")
	return nil
}

type loggingDefaults struct{}

func (loggingDefaults) Domain() string { return "logging" }

func (loggingDefaults) ApplyDefaults(cfg *Config) error {
	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	format, err := logFormatEnum.Parse(string(cfg.Logging.Format))
	if err != nil {
		return err
	}
	cfg.Logging.Format = format
	return nil
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
