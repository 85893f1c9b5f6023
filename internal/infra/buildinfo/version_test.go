package buildinfo

import (
	"runtime"
	"runtime/debug"
	"strings"
	"testing"
)

func TestResolve_LdflagsWin(t *testing.T) {
	read := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			Main:     debug.Module{Version: "v0.9.0"},
			Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "ffffffffffffffff"}},
		}, true
	}

	got := resolve("v1.0.0", "abc123", "2025-01-01", read)

	if got.Version != "v1.0.0" || got.Commit != "abc123" || got.BuildTime != "2025-01-01" {
		t.Errorf("resolve() = %+v, want ldflags values", got)
	}
	if got.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", got.GoVersion, runtime.Version())
	}
}

func TestResolve_FallsBackToBuildInfo(t *testing.T) {
	read := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			Main: debug.Module{Version: "v0.9.0"},
			Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "0123456789abcdef0123"},
				{Key: "vcs.time", Value: "2025-06-01T10:00:00Z"},
			},
		}, true
	}

	got := resolve("dev", "unknown", "unknown", read)

	if got.Version != "v0.9.0" {
		t.Errorf("Version = %q, want v0.9.0", got.Version)
	}
	if got.Commit != "0123456789ab" {
		t.Errorf("Commit = %q, want truncated revision", got.Commit)
	}
	if got.BuildTime != "2025-06-01T10:00:00Z" {
		t.Errorf("BuildTime = %q", got.BuildTime)
	}
}

func TestResolve_DevelVersionIgnored(t *testing.T) {
	read := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}}, true
	}

	if got := resolve("dev", "unknown", "unknown", read); got.Version != "dev" {
		t.Errorf("Version = %q, want dev", got.Version)
	}
}

func TestResolve_NoBuildInfo(t *testing.T) {
	got := resolve("dev", "unknown", "unknown", func() (*debug.BuildInfo, bool) { return nil, false })

	if got.Version != "dev" || got.Commit != "unknown" {
		t.Errorf("resolve() = %+v", got)
	}
}

func TestString(t *testing.T) {
	s := String()
	if !strings.Contains(s, "built at") || !strings.Contains(s, runtime.Version()) {
		t.Errorf("String() = %q", s)
	}
}
