//go:build !windows
// +build !windows

// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

package accounts

import (
	"net"
	"os"

	"golang.org/x/crypto/ssh/agent"
)

// getSSHAgent connects to the agent behind SSH_AUTH_SOCK, if any.
func getSSHAgent() agent.Agent {
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			return agent.NewClient(conn)
		}
	}
	return nil
}
