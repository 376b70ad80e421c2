// Package useragent builds the User-Agent header the image puller sends
// to registries.
package useragent

import (
	"fmt"
	"runtime"
)

// Version is the daemon's version string, set at build time via ldflags;
// it defaults to "unknown" for unreleased builds.
var Version = "unknown"

// Get returns the User-Agent string the puller sends on every registry
// request: name/version (os/arch).
func Get() (string, error) {
	return fmt.Sprintf("vimanad/%s (os=%s, arch=%s)", Version, runtime.GOOS, runtime.GOARCH), nil
}
