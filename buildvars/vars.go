// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

// Package buildvars contains variables injected at build time.
package buildvars

import "runtime/debug"

// Set at link time, e.g.
// -ldflags "-X github.com/toeirei/keysync/buildvars.Version=1.2.3".
var (
	Version   = "dev"
	GitCommit = "dev"
	BuildDate = ""
)

const modulePath = "github.com/toeirei/keysync"

// Resolve computes the best-available version, commit and build date for
// the running binary. If info is nil the runtime build info is used.
func Resolve(info *debug.BuildInfo) (version, commit, date string) {
	version, commit, date = Version, GitCommit, BuildDate

	if info == nil {
		if local, ok := debug.ReadBuildInfo(); ok {
			info = local
		}
	}
	if info != nil {
		if info.Main.Version != "" && info.Main.Version != "(devel)" && version == "dev" {
			version = info.Main.Version
		}
		if version == "dev" {
			for _, dep := range info.Deps {
				if dep.Path == modulePath && dep.Version != "" {
					version = dep.Version
					break
				}
			}
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if s.Value != "" && commit == "dev" {
					commit = s.Value
				}
			case "vcs.time":
				if s.Value != "" && date == "" {
					date = s.Value
				}
			}
		}
	}

	if version == "dev" && commit != "dev" && commit != "" {
		version = commit
	}
	return version, commit, date
}

// UserAgent is the HTTP User-Agent sent to GitHub.
func UserAgent() string {
	v, _, _ := Resolve(nil)
	return "keysync/" + v
}
