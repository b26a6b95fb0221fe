package config

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

const (
	// EnvMode selects development or production transforms.
	EnvMode = "SITEBUILD_ENV"
	// EnvLogLevel overrides the configured log level.
	EnvLogLevel = "SITEBUILD_LOG_LEVEL"
)

// LoadEnvFiles loads .env.local and .env from dir when present. Variables
// already set in the process win, and .env.local wins over .env.
func LoadEnvFiles(dir string) []string {
	var loaded []string
	for _, name := range []string{".env.local", ".env"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			slog.Warn("Failed to load env file", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		loaded = append(loaded, path)
	}
	return loaded
}

// ResolveMode returns override when set, otherwise SITEBUILD_ENV, otherwise development.
func ResolveMode(override string) (site.Mode, error) {
	raw := override
	if raw == "" {
		raw = os.Getenv(EnvMode)
	}
	mode, err := modeEnum.Parse(raw)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryConfig, "invalid build mode").
			WithContext("variable", EnvMode).Build()
	}
	return mode, nil
}
