package config

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

var browserPattern = regexp.MustCompile(`^(chrome|edge|firefox|safari|ios|opera)\d+(\.\d+){0,2}$`)

// Validate checks the resolved configuration. Path checks guard `clean`,
// which removes the output root recursively.
func (c *Config) Validate() error {
	out := c.Paths.Output
	if out == "" || out == filepath.Dir(out) {
		return invalid("paths.output must name a directory below the filesystem root", out)
	}
	if err := c.checkSharedRoots(); err != nil {
		return err
	}
	for root := range c.SourceRoots() {
		if root == out || within(out, root) {
			return invalid("source root lies inside paths.output and would be removed by clean", root)
		}
		if within(root, out) {
			return invalid("paths.output lies inside a source root", out)
		}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return invalid("server.port out of range", c.Server.Addr())
	}
	if !doublestar.ValidatePattern(c.Styles.InlineFilter) {
		return invalid("styles.inline_filter is not a valid glob", c.Styles.InlineFilter)
	}
	for _, b := range c.Styles.Browsers {
		if !browserPattern.MatchString(strings.ToLower(b)) {
			return invalid("styles.browsers entry must look like chrome109 or safari15.6", b)
		}
	}
	if strings.ContainsAny(c.Styles.Bundle, `/\`) {
		return invalid("styles.bundle must be a file name", c.Styles.Bundle)
	}
	if strings.ContainsAny(c.Icons.Sprite, `/\`) {
		return invalid("icons.sprite must be a file name", c.Icons.Sprite)
	}
	return nil
}

// checkSharedRoots rejects one directory configured as the root of two
// categories; the watcher classifies events by root alone.
func (c *Config) checkSharedRoots() error {
	type root struct {
		key string
		cat site.Category
	}
	roots := []root{
		{"paths.static", site.CategoryStatic},
		{"paths.pages", site.CategoryMarkup},
		{"paths.styles", site.CategoryStyles},
		{"paths.scripts", site.CategoryScript},
	}
	dirs := []string{c.Paths.Static, c.Paths.Pages, c.Paths.Styles, c.Paths.Scripts}
	for _, dir := range c.Paths.Components {
		roots = append(roots, root{"paths.components", site.CategoryMarkup})
		dirs = append(dirs, dir)
	}
	if c.Icons.Enabled {
		roots = append(roots, root{"paths.icons", site.CategoryIcons})
		dirs = append(dirs, c.Paths.Icons)
	}

	seen := make(map[string]root, len(dirs))
	for i, dir := range dirs {
		prev, ok := seen[dir]
		if !ok {
			seen[dir] = roots[i]
			continue
		}
		if prev.cat != roots[i].cat {
			return ferrors.ValidationError(prev.key+" and "+roots[i].key+" must name different directories").
				WithContext("value", dir).Build()
		}
	}
	return nil
}

// within reports whether path lies strictly below dir.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func invalid(msg, value string) error {
	return ferrors.ValidationError(msg).WithContext("value", value).Build()
}
