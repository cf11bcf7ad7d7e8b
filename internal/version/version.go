// Package version carries build metadata set via -ldflags, e.g.
//
//	-X github.com/ManuGH/savesync/internal/version.Commit=$(git rev-parse --short HEAD)
package version

import "fmt"

var (
	Version = "v0.1.0"
	Commit  = "unknown"
	Date    = "unknown"
)

// String formats the build for -version output.
func String() string {
	return fmt.Sprintf("savesyncd %s (commit: %s, built: %s)", Version, Commit, Date)
}
