// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

package buildvars

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestResolve(t *testing.T) {
	defer func(v, c, d string) { Version, GitCommit, BuildDate = v, c, d }(Version, GitCommit, BuildDate)

	Version, GitCommit, BuildDate = "dev", "dev", ""
	info := &debug.BuildInfo{
		Main: debug.Module{Version: "v1.4.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "abc123"},
			{Key: "vcs.time", Value: "2026-05-01T10:00:00Z"},
		},
	}
	v, c, d := Resolve(info)
	if v != "v1.4.0" || c != "abc123" || d != "2026-05-01T10:00:00Z" {
		t.Fatalf("unexpected build info %q %q %q", v, c, d)
	}

	Version = "2.0.0"
	if v, _, _ := Resolve(info); v != "2.0.0" {
		t.Fatalf("linker version must win, got %q", v)
	}

	Version, GitCommit = "dev", "deadbeef"
	if v, _, _ := Resolve(&debug.BuildInfo{Main: debug.Module{Version: "(devel)"}}); v != "deadbeef" {
		t.Fatalf("expected commit fallback, got %q", v)
	}
}

func TestResolve_DependencyVersion(t *testing.T) {
	defer func(v, c string) { Version, GitCommit = v, c }(Version, GitCommit)
	Version, GitCommit = "dev", "dev"

	info := &debug.BuildInfo{Deps: []*debug.Module{{Path: modulePath, Version: "v0.9.1"}}}
	if v, _, _ := Resolve(info); v != "v0.9.1" {
		t.Fatalf("expected dependency version, got %q", v)
	}
}

func TestUserAgent(t *testing.T) {
	if ua := UserAgent(); !strings.HasPrefix(ua, "keysync/") {
		t.Fatalf("unexpected user agent %q", ua)
	}
}
