// Package buildinfo describes the build of the dtable binary.
package buildinfo

import (
	"fmt"
	"runtime"
)

// BuildInfo holds all sorts of information about the build of an executable artifact.
type BuildInfo struct {
	Version    string
	CommitHash string
	BuildDate  string
}

// String returns the build info as a string.
func (i BuildInfo) String() string {
	return fmt.Sprintf("version %s (%s) built on %s with %s %s/%s", i.Version, i.CommitHash,
		i.BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
