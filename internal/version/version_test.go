package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestFull(t *testing.T) {
	got := Full()
	if !strings.Contains(got, Version) || !strings.Contains(got, Commit) {
		t.Errorf("Full() = %q, want version %q and commit %q", got, Version, Commit)
	}
}

func TestUserAgent(t *testing.T) {
	got := UserAgent()
	if !strings.HasPrefix(got, "aseko-local/") {
		t.Errorf("UserAgent() = %q, want aseko-local/ prefix", got)
	}
	if Version == "" {
		t.Error("Version should never be empty after init")
	}
}

func TestFromBuildInfo(t *testing.T) {
	tests := []struct {
		name        string
		info        debug.BuildInfo
		wantVersion string
		wantCommit  string
	}{
		{
			name: "tagged module",
			info: debug.BuildInfo{
				Main:     debug.Module{Version: "v0.3.1"},
				Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "0123456789abcdef"}},
			},
			wantVersion: "v0.3.1",
			wantCommit:  "0123456",
		},
		{
			name: "dirty local build",
			info: debug.BuildInfo{
				Main: debug.Module{Version: "(devel)"},
				Settings: []debug.BuildSetting{
					{Key: "vcs.revision", Value: "abc"},
					{Key: "vcs.modified", Value: "true"},
					{Key: "vcs.time", Value: "2025-06-01T10:00:00Z"},
				},
			},
			wantVersion: "dev-20250601",
			wantCommit:  "abc-dirty",
		},
		{
			name: "no vcs stamp",
			info: debug.BuildInfo{Main: debug.Module{Version: "(devel)"}},
		},
	}

	savedVersion, savedCommit := Version, Commit
	defer func() { Version, Commit = savedVersion, savedCommit }()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Version, Commit = "", ""
			fromBuildInfo(&tt.info)
			if Version != tt.wantVersion {
				t.Errorf("Version = %q, want %q", Version, tt.wantVersion)
			}
			if Commit != tt.wantCommit {
				t.Errorf("Commit = %q, want %q", Commit, tt.wantCommit)
			}
		})
	}
}

func TestFromBuildInfoKeepsLinkerValues(t *testing.T) {
	savedVersion, savedCommit := Version, Commit
	defer func() { Version, Commit = savedVersion, savedCommit }()

	Version, Commit = "v1.0.0", "feedbee"
	fromBuildInfo(&debug.BuildInfo{
		Main:     debug.Module{Version: "v9.9.9"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "0000000000"}},
	})
	if Version != "v1.0.0" || Commit != "feedbee" {
		t.Errorf("got %s/%s, want v1.0.0/feedbee", Version, Commit)
	}
}
