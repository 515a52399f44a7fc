package version

import (
	"runtime/debug"
	"sync"
)

// Version is the current semantic version of findall.
const Version = "0.1.0"

// Set at build time with -ldflags "-X".
var (
	BuildDate = "development"
	GitCommit = "unknown"
)

// FullInfo returns the version with build details.
func FullInfo() string {
	return "findall " + Version + " (commit: " + Commit() + ", built: " + BuildDate + ")"
}

var (
	commit     string
	commitOnce sync.Once
)

// Commit returns the injected commit, falling back to the VCS revision
// the toolchain embedded in the binary.
func Commit() string {
	commitOnce.Do(func() {
		commit = GitCommit
		if commit != "unknown" {
			return
		}
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && len(s.Value) >= 12 {
				commit = s.Value[:12]
			}
		}
	})
	return commit
}
