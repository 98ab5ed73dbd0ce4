package version

import "fmt"

// Build metadata, set via -ldflags at release time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String returns a single-line build identifier.
func String() string {
	return fmt.Sprintf("%s (%s, built %s)", Version, Commit, BuildDate)
}
