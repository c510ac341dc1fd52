// Package version carries build identification, stamped at link time via
// -ldflags "-X github.com/banshee-data/camrig/internal/version.Version=...".
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String renders the build identification on one line.
func String() string {
	return fmt.Sprintf("camrig %s (%s, built %s)", Version, GitSHA, BuildTime)
}
