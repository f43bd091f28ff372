// Package version reports the build identity of the dialectica binary.
package version

import (
	"fmt"
	"runtime/debug"
)

// Set at build time via -ldflags "-X".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns the full version line shown by --version.
func String() string {
	return fmt.Sprintf("dialectica %s (commit: %s, built: %s)", Version, shortCommit(), BuildTime)
}

// Short returns the version advertised to MCP peers, e.g. "dev+a1b2c3d".
func Short() string {
	c := shortCommit()
	if c == "unknown" {
		return Version
	}
	return Version + "+" + c
}

// shortCommit falls back to the VCS revision stamped by the go tool when
// no commit was injected.
func shortCommit() string {
	commit := Commit
	if commit == "unknown" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" && s.Value != "" {
					commit = s.Value
				}
			}
		}
	}
	if len(commit) > 7 {
		return commit[:7]
	}
	return commit
}
