// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

// package model defines the core data structures shared by the registry,
// the reconciliation engine and the reporting layers.
package model // import "github.com/toeirei/keysync/internal/model"

import "fmt"

// RegistryEntry binds a local account name to the fingerprint of the one
// GitHub-published key it is trusted to authenticate with.
type RegistryEntry struct {
	Account     string
	Fingerprint string
}

// String returns the registry line representation (account:fingerprint).
func (e RegistryEntry) String() string {
	return fmt.Sprintf("%s:%s", e.Account, e.Fingerprint)
}

// Mode selects how an entry is reconciled.
type Mode string

const (
	// ModeManage converges the account's authorization state.
	ModeManage Mode = "manage"
	// ModeValidate only reports drift and never mutates system state.
	ModeValidate Mode = "validate"
	// ModeDryRun evaluates manage mode without applying any change.
	ModeDryRun Mode = "dry-run"
)

// Outcome is the per-account result of a reconciliation pass.
type Outcome string

const (
	OutcomeProvisioned  Outcome = "provisioned"
	OutcomeKeyInstalled Outcome = "key_installed"
	OutcomeKeysRevoked  Outcome = "keys_revoked"
	OutcomeNoValidKey   Outcome = "no_valid_key"
	OutcomeValid        Outcome = "valid"
	OutcomeInvalid      Outcome = "invalid"
	OutcomeError        Outcome = "error"
)

// Result records what happened to a single registry entry.
type Result struct {
	Account string
	Outcome Outcome
	// Detail is a short operator-facing explanation, e.g. "exists but not expected".
	Detail string
	// Err is set when Outcome is OutcomeError.
	Err error
}

// Failed reports whether the result should make the run exit non-zero.
func (r Result) Failed() bool {
	return r.Outcome == OutcomeError || r.Outcome == OutcomeInvalid
}

// ErrorText returns the error message or an empty string.
func (r Result) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
