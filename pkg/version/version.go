// Package version provides version metadata for the application.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

// These variables are typically injected at build time using -ldflags
var (
	// Version holds the current version of batchq.
	Version = "dev"
	// Commit holds the current version commit of batchq.
	Commit = "none"
	// BuildDate holds the build date of batchq.
	BuildDate = "unknown"
	// StartDate holds the start date of batchq.
	StartDate = time.Now()
)

// Struct returns version information in a structured format.
type Struct struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// Info returns a formatted version string.
func Info() string {
	v := Get()
	return fmt.Sprintf("batchq %s (commit: %s, date: %s)", v.Version, v.Commit, v.BuildDate)
}

// Get returns version information as a Struct. When the binary was built
// without -ldflags, the commit falls back to the VCS revision recorded by
// the Go toolchain.
func Get() Struct {
	commit := Commit
	if commit == "none" {
		if rev := vcsRevision(); rev != "" {
			commit = rev
		}
	}
	return Struct{
		Version:   Version,
		Commit:    commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return ""
}
