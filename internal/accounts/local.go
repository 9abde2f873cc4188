// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

package accounts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/toeirei/keysync/internal/atomicfile"
	"github.com/toeirei/keysync/internal/logging"
)

// DefaultUseraddPath is the provisioning binary looked up on PATH.
const DefaultUseraddPath = "useradd"

// LookupFunc resolves an account by name in the OS user database.
type LookupFunc func(name string) (*user.User, error)

// Local manages accounts of the machine keysync runs on.
type Local struct {
	Shell       string
	UseraddPath string
	// Lookup defaults to user.Lookup.
	Lookup LookupFunc
	// ChownKeys hands .ssh and authorized_keys to the account's uid/gid. It
	// only has an effect when running as root.
	ChownKeys bool
}

// NewLocal returns a Local directory with the given shell and useradd binary.
func NewLocal(shell, useraddPath string) *Local {
	return &Local{Shell: shell, UseraddPath: useraddPath, Lookup: user.Lookup, ChownKeys: true}
}

// Resolve looks the account up without side effects.
func (l *Local) Resolve(_ context.Context, name string) (*Handle, error) {
	lookup := l.Lookup
	if lookup == nil {
		lookup = user.Lookup
	}
	u, err := lookup(name)
	if err != nil {
		var unknown user.UnknownUserError
		if errors.As(err, &unknown) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup account %s: %w", name, err)
	}
	h := &Handle{Name: name, UID: -1, GID: -1, HomeDir: u.HomeDir, AuthorizedKeysPath: filepath.Join(u.HomeDir, ".ssh", "authorized_keys")}
	if uid, err := strconv.Atoi(u.Uid); err == nil {
		h.UID = uid
	}
	if gid, err := strconv.Atoi(u.Gid); err == nil {
		h.GID = gid
	}
	return h, nil
}

// Provision runs useradd and returns the new account's handle.
func (l *Local) Provision(ctx context.Context, name string) (*Handle, error) {
	bin := l.UseraddPath
	if bin == "" {
		bin = DefaultUseraddPath
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, useraddArgs(name, l.Shell)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &ProvisionError{Account: name, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	logging.Infof("accounts: created account %s", name)

	h, err := l.Resolve(ctx, name)
	if err != nil {
		return nil, &ProvisionError{Account: name, Err: err}
	}
	if h == nil {
		return nil, &ProvisionError{Account: name, Err: errors.New("account not found after useradd")}
	}
	return h, nil
}

// ReadAuthorization returns the current authorized_keys content.
func (l *Local) ReadAuthorization(_ context.Context, h *Handle) ([]byte, error) {
	data, err := os.ReadFile(h.AuthorizedKeysPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", h.AuthorizedKeysPath, err)
	}
	return data, nil
}

// WriteAuthorization replaces authorized_keys via temp file and rename.
func (l *Local) WriteAuthorization(_ context.Context, h *Handle, content string) error {
	sshDir := filepath.Dir(h.AuthorizedKeysPath)
	if err := os.MkdirAll(sshDir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", sshDir, err)
	}

	opts := atomicfile.Options{Perm: 0o600}
	if l.shouldChown(h) {
		if err := os.Chown(sshDir, h.UID, h.GID); err != nil {
			return fmt.Errorf("chown %s: %w", sshDir, err)
		}
		opts.Chown = func(f *os.File) error { return f.Chown(h.UID, h.GID) }
	}
	if err := atomicfile.Write(h.AuthorizedKeysPath, []byte(content), opts); err != nil {
		return fmt.Errorf("write authorized_keys for %s: %w", h.Name, err)
	}
	return nil
}

func (l *Local) shouldChown(h *Handle) bool {
	return l.ChownKeys && os.Geteuid() == 0 && h.UID >= 0 && h.GID >= 0
}
