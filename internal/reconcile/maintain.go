// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

package reconcile

import (
	"context"
	"fmt"
	"os"

	"github.com/toeirei/keysync/internal/fingerprint"
	"github.com/toeirei/keysync/internal/registry"
)

// NotRegisteredError means GitHub does not currently serve the candidate key
// for the account.
type NotRegisteredError struct {
	Account     string
	KeyPath     string
	Fingerprint string
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("%s (%s) is not registered for GitHub user %s", e.KeyPath, e.Fingerprint, e.Account)
}

// Maintainer admits candidate keys into the registry.
type Maintainer struct {
	Oracle fingerprint.Oracle
	Lookup KeyLookup
	// Upsert defaults to registry.Upsert.
	Upsert func(path, account, fingerprint string, opts registry.UpsertOptions) error
}

// AddKey fingerprints the public key at keyPath, confirms GitHub serves that
// exact key for account, and then atomically records it in the registry. It
// returns the stored fingerprint.
func (m *Maintainer) AddKey(ctx context.Context, registryPath, account, keyPath string) (string, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return "", fmt.Errorf("read public key: %w", err)
	}
	fp, err := m.Oracle.Fingerprint(ctx, key)
	if err != nil {
		return "", err
	}

	_, found, err := m.Lookup.LookupMatchingKey(ctx, account, fp)
	if err != nil {
		return "", err
	}
	if !found {
		return "", &NotRegisteredError{Account: account, KeyPath: keyPath, Fingerprint: fp}
	}

	upsert := m.Upsert
	if upsert == nil {
		upsert = registry.Upsert
	}
	if err := upsert(registryPath, account, fp, registry.UpsertOptions{}); err != nil {
		return "", err
	}
	return fp, nil
}
