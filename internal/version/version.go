// Package version reports the build version of the aseko-local binaries.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

// Version and Commit are normally injected by the release build:
//
//	go build -ldflags="-X github.com/muurk/aseko-local/internal/version.Version=v1.2.3 \
//	                   -X github.com/muurk/aseko-local/internal/version.Commit=abc123"
//
// Otherwise they are derived from the module and VCS build info.
var (
	Version = ""
	Commit  = ""
)

const shortHash = 7

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		fromBuildInfo(info)
	}
	if Version == "" {
		Version = "dev-" + time.Now().Format("20060102-150405")
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

// fromBuildInfo fills whichever of Version and Commit is still empty.
// A binary installed with "go install ...@v1.2.3" carries the module
// version; a local build only has the VCS stamp.
func fromBuildInfo(info *debug.BuildInfo) {
	vcs := map[string]string{}
	for _, s := range info.Settings {
		if strings.HasPrefix(s.Key, "vcs.") {
			vcs[s.Key] = s.Value
		}
	}

	if Commit == "" {
		if rev := vcs["vcs.revision"]; rev != "" {
			Commit = rev[:min(len(rev), shortHash)]
			if vcs["vcs.modified"] == "true" {
				Commit += "-dirty"
			}
		}
	}

	if Version != "" {
		return
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		Version = v
		return
	}
	if t, err := time.Parse(time.RFC3339, vcs["vcs.time"]); err == nil {
		Version = "dev-" + t.Format("20060102")
	}
}

// Full returns the version with its commit.
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

// UserAgent identifies the bridge to MQTT brokers and stream clients.
func UserAgent() string {
	return "aseko-local/" + Version
}
