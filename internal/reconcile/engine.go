// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

// package reconcile converges account authorization state with the
// registry, reports drift in validate mode, and admits new keys into the
// registry after checking them against GitHub.
package reconcile // import "github.com/toeirei/keysync/internal/reconcile"

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/toeirei/keysync/internal/accounts"
	"github.com/toeirei/keysync/internal/fingerprint"
	"github.com/toeirei/keysync/internal/i18n"
	"github.com/toeirei/keysync/internal/model"
)

// KeyLookup finds the GitHub-published key of account matching fp.
type KeyLookup interface {
	LookupMatchingKey(ctx context.Context, account, fp string) (key string, found bool, err error)
}

// Engine reconciles one registry entry at a time.
type Engine struct {
	Oracle    fingerprint.Oracle
	Lookup    KeyLookup
	Directory accounts.Directory
}

// NewEngine wires the engine's collaborators.
func NewEngine(oracle fingerprint.Oracle, lookup KeyLookup, dir accounts.Directory) *Engine {
	return &Engine{Oracle: oracle, Lookup: lookup, Directory: dir}
}

// Reconcile dispatches on mode.
func (e *Engine) Reconcile(ctx context.Context, entry model.RegistryEntry, mode model.Mode) (model.Result, error) {
	switch mode {
	case model.ModeManage, "":
		return e.Manage(ctx, entry)
	case model.ModeValidate:
		return e.Validate(ctx, entry)
	case model.ModeDryRun:
		return e.plan(ctx, entry, false)
	default:
		return model.Result{}, fmt.Errorf("unknown reconciliation mode %q", mode)
	}
}

// Manage makes the account's authorized_keys contain exactly the matching
// GitHub key, provisioning the account if needed, or revokes all access when
// GitHub no longer serves the trusted key. Running it twice against unchanged
// state writes identical content.
func (e *Engine) Manage(ctx context.Context, entry model.RegistryEntry) (model.Result, error) {
	return e.plan(ctx, entry, true)
}

func (e *Engine) plan(ctx context.Context, entry model.RegistryEntry, apply bool) (model.Result, error) {
	res := model.Result{Account: entry.Account}

	handle, err := e.Directory.Resolve(ctx, entry.Account)
	if err != nil {
		return res, err
	}
	key, found, err := e.Lookup.LookupMatchingKey(ctx, entry.Account, entry.Fingerprint)
	if err != nil {
		return res, err
	}

	switch {
	case found:
		res.Outcome = model.OutcomeKeyInstalled
		if handle == nil {
			res.Outcome = model.OutcomeProvisioned
		}
		if !apply {
			res.Detail = plannedDetail(res.Outcome)
			return res, nil
		}
		if handle == nil {
			if handle, err = e.Directory.Provision(ctx, entry.Account); err != nil {
				return res, err
			}
		}
		if err := e.Directory.WriteAuthorization(ctx, handle, key+"\n"); err != nil {
			return res, err
		}
		res.Detail = entry.Fingerprint
	case handle != nil:
		res.Outcome = model.OutcomeKeysRevoked
		if !apply {
			res.Detail = plannedDetail(res.Outcome)
			return res, nil
		}
		if err := e.Directory.WriteAuthorization(ctx, handle, ""); err != nil {
			return res, err
		}
		res.Detail = i18n.T("detail.no_match", entry.Fingerprint)
	default:
		res.Outcome = model.OutcomeNoValidKey
		res.Detail = i18n.T("detail.no_match", entry.Fingerprint)
	}
	return res, nil
}

func plannedDetail(o model.Outcome) string {
	switch o {
	case model.OutcomeProvisioned:
		return i18n.T("detail.would_provision")
	case model.OutcomeKeyInstalled:
		return i18n.T("detail.would_install")
	case model.OutcomeKeysRevoked:
		return i18n.T("detail.would_revoke")
	}
	return string(o)
}

// Validate reports whether the account's current state matches the registry
// without changing anything.
func (e *Engine) Validate(ctx context.Context, entry model.RegistryEntry) (model.Result, error) {
	res := model.Result{Account: entry.Account}

	handle, err := e.Directory.Resolve(ctx, entry.Account)
	if err != nil {
		return res, err
	}
	_, found, err := e.Lookup.LookupMatchingKey(ctx, entry.Account, entry.Fingerprint)
	if err != nil {
		return res, err
	}

	switch {
	case handle != nil && found:
		current, err := e.Directory.ReadAuthorization(ctx, handle)
		if err != nil {
			return res, err
		}
		res.Outcome = model.OutcomeInvalid
		lines := keyLines(current)
		if len(lines) != 1 {
			res.Detail = i18n.T("detail.key_count", len(lines))
			if len(lines) == 0 {
				res.Detail = i18n.T("detail.no_readable_key")
			}
			return res, nil
		}
		fp, err := e.Oracle.Fingerprint(ctx, []byte(lines[0]))
		if ctxErr := ctx.Err(); err != nil && ctxErr != nil {
			return res, ctxErr
		}
		var oe *fingerprint.OracleError
		switch {
		case errors.As(err, &oe):
			res.Detail = i18n.T("detail.no_readable_key")
		case err != nil:
			return res, err
		case fp == entry.Fingerprint:
			res.Outcome = model.OutcomeValid
			res.Detail = i18n.T("detail.valid")
		default:
			res.Detail = i18n.T("detail.fingerprint_mismatch", fp, entry.Fingerprint)
		}
	case handle != nil:
		res.Outcome = model.OutcomeInvalid
		res.Detail = i18n.T("detail.unexpected_account")
	case found:
		res.Outcome = model.OutcomeInvalid
		res.Detail = i18n.T("detail.missing_account")
	default:
		res.Outcome = model.OutcomeValid
		res.Detail = i18n.T("detail.absent")
	}
	return res, nil
}

// keyLines returns the key lines of authorized_keys content, skipping blank
// lines and comments.
func keyLines(content []byte) []string {
	var out []string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
