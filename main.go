// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

// Command-line entrypoint for keysync.
//
// Usage:
//
//	keysync sync [REGISTRY] [--validate | --dry-run]
//	keysync add GITHUB_USER PATH_TO_PUBLIC_KEY
//
// See --help for all commands and options.
package main

import (
	"os"

	"github.com/toeirei/keysync/ui/cli"
)

func main() {
	os.Exit(cli.ExitCode(cli.Execute()))
}
