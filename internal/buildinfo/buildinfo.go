package buildinfo

import (
	"fmt"
	"log/slog"
)

// Stamped at build time with -ldflags "-X sparkrt/internal/buildinfo.Version=...".
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Short returns the version, falling back to the commit for untagged builds.
func Short() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if Commit != "" && Commit != "unknown" {
		return Commit
	}
	return "dev"
}

// Summary is the one-line build description printed by the version command.
func Summary() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Short(), Commit, Date)
}

// Attr groups the build stamp for structured logs.
func Attr() slog.Attr {
	return slog.Group("build", "version", Version, "commit", Commit, "date", Date)
}
