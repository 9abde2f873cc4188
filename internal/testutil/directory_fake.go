// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

package testutil

import (
	"context"
	"fmt"
	"path"
	"sync"

	"github.com/toeirei/keysync/internal/accounts"
)

// FakeDirectory is an in-memory accounts.Directory. Accounts listed in
// Existing resolve; Provision adds them; authorized_keys content lives in Keys.
type FakeDirectory struct {
	mu sync.Mutex

	Existing map[string]bool
	Keys     map[string]string

	// ProvisionErr, if set, is returned by Provision.
	ProvisionErr error
	// WriteErr, if set, is returned by WriteAuthorization.
	WriteErr error

	Provisioned []string
	Writes      int
}

// NewFakeDirectory returns a directory where the named accounts exist with
// no authorized keys.
func NewFakeDirectory(existing ...string) *FakeDirectory {
	d := &FakeDirectory{Existing: map[string]bool{}, Keys: map[string]string{}}
	for _, name := range existing {
		d.Existing[name] = true
	}
	return d
}

func (d *FakeDirectory) handle(name string) *accounts.Handle {
	home := path.Join("/home", name)
	return &accounts.Handle{Name: name, HomeDir: home, AuthorizedKeysPath: path.Join(home, ".ssh", "authorized_keys")}
}

func (d *FakeDirectory) Resolve(_ context.Context, name string) (*accounts.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.Existing[name] {
		return nil, nil
	}
	return d.handle(name), nil
}

func (d *FakeDirectory) Provision(_ context.Context, name string) (*accounts.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ProvisionErr != nil {
		return nil, &accounts.ProvisionError{Account: name, Err: d.ProvisionErr}
	}
	if d.Existing[name] {
		return nil, &accounts.ProvisionError{Account: name, Err: fmt.Errorf("user %q already exists", name)}
	}
	d.Existing[name] = true
	d.Provisioned = append(d.Provisioned, name)
	return d.handle(name), nil
}

func (d *FakeDirectory) ReadAuthorization(_ context.Context, h *accounts.Handle) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return []byte(d.Keys[h.Name]), nil
}

func (d *FakeDirectory) WriteAuthorization(_ context.Context, h *accounts.Handle, content string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.WriteErr != nil {
		return d.WriteErr
	}
	d.Keys[h.Name] = content
	d.Writes++
	return nil
}
