package build

import "fmt"

// These variables are set at build time via -ldflags.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

// RepoSlug is the GitHub owner/name used by the self-updater.
const RepoSlug = "shaharia-lab/devproxy"

// String returns a single human-readable build info string.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, CommitSHA, BuildDate)
}

// IsRelease reports whether the binary was built from a tagged release.
func IsRelease() bool {
	return Version != "dev" && Version != "unknown" && Version != ""
}
