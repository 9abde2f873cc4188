// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

// package fingerprint turns raw public key material into the fingerprint
// token used as the identity of a key throughout keysync.
package fingerprint // import "github.com/toeirei/keysync/internal/fingerprint"

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"golang.org/x/crypto/ssh"
)

// Oracle computes the fingerprint of one serialized public key.
type Oracle interface {
	Fingerprint(ctx context.Context, key []byte) (string, error)
}

// OracleError reports malformed key material or a failing fingerprint tool.
type OracleError struct {
	Op     string
	Stderr string
	Err    error
}

func (e *OracleError) Error() string {
	msg := "fingerprint: " + e.Op
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += " (stderr: " + e.Stderr + ")"
	}
	return msg
}

func (e *OracleError) Unwrap() error { return e.Err }

// DefaultKeygenPath is the ssh-keygen binary looked up on PATH.
const DefaultKeygenPath = "ssh-keygen"

// KeygenOracle delegates to `ssh-keygen -lf -`, feeding the key on stdin.
type KeygenOracle struct {
	// Path of the ssh-keygen binary. Empty means DefaultKeygenPath.
	Path string
}

// NewKeygenOracle returns an oracle running the given ssh-keygen binary.
func NewKeygenOracle(path string) *KeygenOracle {
	if path == "" {
		path = DefaultKeygenPath
	}
	return &KeygenOracle{Path: path}
}

// Fingerprint runs ssh-keygen and extracts the fingerprint token.
func (o *KeygenOracle) Fingerprint(ctx context.Context, key []byte) (string, error) {
	if len(bytes.TrimSpace(key)) == 0 {
		return "", &OracleError{Op: "empty key material"}
	}
	path := o.Path
	if path == "" {
		path = DefaultKeygenPath
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "-lf-")
	cmd.Stdin = bytes.NewReader(key)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", &OracleError{Op: "run " + path, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return ParseKeygenOutput(stdout.String())
}

// ParseKeygenOutput extracts the fingerprint from ssh-keygen -l output,
// which is formatted as "<bits> <fingerprint> <comment> (<type>)".
func ParseKeygenOutput(out string) (string, error) {
	fields := strings.Fields(out)
	if len(fields) < 2 {
		return "", &OracleError{Op: fmt.Sprintf("unexpected ssh-keygen output %q", strings.TrimSpace(out))}
	}
	return fields[1], nil
}

// NativeOracle computes SHA256 fingerprints in-process with x/crypto/ssh. The
// token matches ssh-keygen's default output ("SHA256:<base64>").
type NativeOracle struct{}

// Fingerprint parses the key in authorized_keys format and hashes it.
func (NativeOracle) Fingerprint(_ context.Context, key []byte) (string, error) {
	if len(bytes.TrimSpace(key)) == 0 {
		return "", &OracleError{Op: "empty key material"}
	}
	parsed, _, _, _, err := ssh.ParseAuthorizedKey(key)
	if err != nil {
		return "", &OracleError{Op: "parse public key", Err: err}
	}
	return ssh.FingerprintSHA256(parsed), nil
}

// New returns the oracle selected by name: "ssh-keygen" (default) or "native".
func New(name, keygenPath string) (Oracle, error) {
	switch name {
	case "", "ssh-keygen":
		return NewKeygenOracle(keygenPath), nil
	case "native":
		return NativeOracle{}, nil
	default:
		return nil, fmt.Errorf("unknown fingerprint oracle %q (supported: ssh-keygen, native)", name)
	}
}
