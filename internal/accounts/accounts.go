// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

// package accounts resolves, provisions and rewrites the authorized_keys
// state of operating system accounts, either on the local machine or on a
// single remote host reached over SSH.
package accounts // import "github.com/toeirei/keysync/internal/accounts"

import (
	"context"
	"fmt"
	"path"
)

// DefaultShell is the login shell given to provisioned accounts.
const DefaultShell = "/bin/bash"

// Handle locates one existing account.
type Handle struct {
	Name               string
	UID                int
	GID                int
	HomeDir            string
	AuthorizedKeysPath string
}

// Directory is the account store reconciled against the registry.
type Directory interface {
	// Resolve returns nil, nil when the account does not exist.
	Resolve(ctx context.Context, name string) (*Handle, error)
	// Provision creates the account with a home directory and default shell.
	Provision(ctx context.Context, name string) (*Handle, error)
	// ReadAuthorization returns the current authorized_keys content. A
	// missing file reads as empty.
	ReadAuthorization(ctx context.Context, h *Handle) ([]byte, error)
	// WriteAuthorization atomically replaces the authorized_keys content.
	// An empty content revokes all access.
	WriteAuthorization(ctx context.Context, h *Handle, content string) error
}

// ProvisionError reports a failed account creation.
type ProvisionError struct {
	Account string
	Stderr  string
	Err     error
}

func (e *ProvisionError) Error() string {
	msg := fmt.Sprintf("provision account %s: %v", e.Account, e.Err)
	if e.Stderr != "" {
		msg += " (stderr: " + e.Stderr + ")"
	}
	return msg
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// authorizedKeysPath is where sshd looks up keys for an account by default.
func authorizedKeysPath(home string) string {
	return path.Join(home, ".ssh", "authorized_keys")
}

// useraddArgs builds the provisioning command line.
func useraddArgs(name, shell string) []string {
	if shell == "" {
		shell = DefaultShell
	}
	return []string{name, "--create-home", "--shell", shell}
}
