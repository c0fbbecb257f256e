// Package version holds build-time version information for tia.
package version

import "fmt"

// Build-time variables, overridden via
// -ldflags "-X tia/internal/version.Version=...".
var (
	// Version is the current tia version
	Version = "0.3.0"
	// Commit is the git commit hash the binary was built from
	Commit = "unknown"
	// BuildDate is the build timestamp
	BuildDate = "unknown"
)

// Info returns a short version string for display.
// Includes the commit abbreviated to seven characters when a commit
// longer than seven characters is known.
func Info() string {
	if Commit != "unknown" && len(Commit) > 7 {
		return fmt.Sprintf("%s (%s)", Version, Commit[:7])
	}
	return Version
}

// Full returns the complete multi-line version description.
func Full() string {
	return fmt.Sprintf("tia version %s\nCommit: %s\nBuilt: %s", Version, Commit, BuildDate)
}
