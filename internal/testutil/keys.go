// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

// package testutil contains test doubles and fixtures shared across the
// keysync packages. Nothing here is used by production code paths.
package testutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"
)

// TestKey is a freshly generated ed25519 public key.
type TestKey struct {
	// Line is the authorized_keys representation without trailing newline.
	Line string
	// Fingerprint is the SHA256 fingerprint, as emitted by ssh-keygen -l.
	Fingerprint string
}

// NewTestKey generates a key and optionally appends a comment to its line.
func NewTestKey(t *testing.T, comment string) TestKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("convert ed25519 key: %v", err)
	}
	line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub)))
	if comment != "" {
		line += " " + comment
	}
	return TestKey{Line: line, Fingerprint: ssh.FingerprintSHA256(sshPub)}
}
