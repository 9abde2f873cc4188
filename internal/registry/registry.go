// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

// package registry reads and atomically updates the account registry, a
// text file with one "account:fingerprint" entry per line.
//
// Blank lines and lines starting with '#' are comments. Each other line is
// split on its first ':'. Malformed lines are reported and skipped; they never
// fail a load.
package registry // import "github.com/toeirei/keysync/internal/registry"

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/toeirei/keysync/internal/model"
)

// FormatError describes one malformed registry line.
type FormatError struct {
	Line   int
	Text   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("registry line %d: %s: %q", e.Line, e.Reason, e.Text)
}

// line is one physical line of the registry file. Comments and malformed
// lines are kept so that an upsert rewrites the file without losing them.
type line struct {
	raw     string
	account string // empty for comments and malformed lines
}

// Registry is an ordered account -> entry mapping. Iteration follows the
// file order of each account's first appearance; accounts added later are
// appended.
type Registry struct {
	lines   []line
	entries map[string]model.RegistryEntry
	order   []string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: map[string]model.RegistryEntry{}}
}

// Len returns the number of entries.
func (r *Registry) Len() int { return len(r.order) }

// Get returns the entry for account.
func (r *Registry) Get(account string) (model.RegistryEntry, bool) {
	e, ok := r.entries[account]
	return e, ok
}

// Entries returns all entries in registry order.
func (r *Registry) Entries() []model.RegistryEntry {
	out := make([]model.RegistryEntry, 0, len(r.order))
	for _, a := range r.order {
		out = append(out, r.entries[a])
	}
	return out
}

// Set replaces the entry for account or appends a new one.
func (r *Registry) Set(account, fingerprint string) {
	entry := model.RegistryEntry{Account: account, Fingerprint: fingerprint}
	if _, ok := r.entries[account]; !ok {
		r.order = append(r.order, account)
		r.lines = append(r.lines, line{raw: entry.String(), account: account})
	}
	r.entries[account] = entry
}

// Parse reads registry text. The returned diagnostics list every skipped line.
// A duplicate account keeps its first position and takes the last value.
func Parse(rd io.Reader) (*Registry, []*FormatError, error) {
	reg := New()
	var diags []*FormatError

	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	n := 0
	for sc.Scan() {
		n++
		raw := sc.Text()
		if raw == "" || raw[0] == '#' {
			reg.lines = append(reg.lines, line{raw: raw})
			continue
		}

		account, fp, found := strings.Cut(raw, ":")
		var reason string
		switch {
		case !found:
			reason = "missing ':' separator"
		case account == "":
			reason = "empty account"
		case fp == "":
			reason = "empty fingerprint"
		}
		if reason != "" {
			diags = append(diags, &FormatError{Line: n, Text: raw, Reason: reason})
			reg.lines = append(reg.lines, line{raw: raw})
			continue
		}

		if _, dup := reg.entries[account]; dup {
			diags = append(diags, &FormatError{Line: n, Text: raw, Reason: "duplicate account " + account + ", last entry wins"})
			// The earlier line renders the winning value; this one is dropped.
			reg.entries[account] = model.RegistryEntry{Account: account, Fingerprint: fp}
			continue
		}
		reg.entries[account] = model.RegistryEntry{Account: account, Fingerprint: fp}
		reg.order = append(reg.order, account)
		reg.lines = append(reg.lines, line{raw: raw, account: account})
	}
	if err := sc.Err(); err != nil {
		return nil, diags, fmt.Errorf("read registry: %w", err)
	}
	return reg, diags, nil
}

// Serialize writes the canonical form: one "account:fingerprint" line per
// entry, in registry order, without comments.
func (r *Registry) Serialize(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, e := range r.Entries() {
		if _, err := fmt.Fprintln(bw, e.String()); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Bytes renders the registry as it should be written back to disk: every
// original line in place, replaced entries updated, new entries appended.
func (r *Registry) Bytes() []byte {
	var b bytes.Buffer
	for _, l := range r.lines {
		if l.account != "" {
			b.WriteString(r.entries[l.account].String())
		} else {
			b.WriteString(l.raw)
		}
		b.WriteByte('\n')
	}
	return b.Bytes()
}
