// Package site holds the small vocabulary shared by every build step:
// source categories, watch event kinds, build modes and step reports.
package site

// Category identifies which source root a file belongs to and therefore
// which step owns it.
type Category string

const (
	CategoryStatic Category = "static"
	CategoryMarkup Category = "markup"
	CategoryStyles Category = "styles"
	CategoryScript Category = "scripts"
	CategoryIcons  Category = "icons"
)

// Step returns the CLI/graph name of the step owning the category.
func (c Category) Step() string {
	if c == CategoryStatic {
		return "copy"
	}
	return string(c)
}

// Cached reports whether the category's step keeps a transformation cache.
func (c Category) Cached() bool {
	switch c {
	case CategoryStyles, CategoryScript, CategoryIcons:
		return true
	default:
		return false
	}
}

// CategoryForStep maps a step name back to its category.
func CategoryForStep(step string) (Category, bool) {
	switch step {
	case "copy", string(CategoryStatic):
		return CategoryStatic, true
	case string(CategoryMarkup), string(CategoryStyles), string(CategoryScript), string(CategoryIcons):
		return Category(step), true
	}
	return "", false
}

// EventKind is the kind of a filesystem change after coalescing.
type EventKind string

const (
	Added   EventKind = "added"
	Changed EventKind = "changed"
	Deleted EventKind = "deleted"
)

// Mode selects development or production transforms.
type Mode string

const (
	Development Mode = "development"
	Production  Mode = "production"
)

func (m Mode) Production() bool { return m == Production }

// Report summarizes one step run.
type Report struct {
	Step      string
	Processed int // sources transformed this run
	Cached    int // sources served from the cache
	Written   int // output files created or changed
	Skipped   int // output files already up to date
	Removed   int // orphaned outputs deleted
}
