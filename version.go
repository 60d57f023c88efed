package networking

import (
	"fmt"
	"runtime"
)

// Build metadata. GitCommit and BuildDate are set with -ldflags "-X".
var (
	Version   = "v1.4.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// GetVersion describes the library build in one line; the user agent carries
// Version alone.
func GetVersion() string {
	return fmt.Sprintf("PowerAuthNetworking %s (commit %s, built %s, %s)",
		Version, GitCommit, BuildDate, runtime.Version())
}

// GetVersionInfo returns the build metadata as labels of the
// networking_build_info metric.
func GetVersionInfo() map[string]string {
	return map[string]string{
		"version":    Version,
		"commit":     GitCommit,
		"build_date": BuildDate,
		"go_version": runtime.Version(),
	}
}
