package version

// Version is overridden at link time:
// go build -ldflags "-X git.home.luguber.info/inful/sitebuilder/internal/version.Version=v0.3.0".
var Version = "dev"

// Build metadata, also set via ldflags.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String returns the version with its build metadata.
func String() string {
	return Version + " (commit " + GitCommit + ", built " + BuildTime + ")"
}
