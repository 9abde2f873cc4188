// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/toeirei/keysync/internal/atomicfile"
	"github.com/toeirei/keysync/internal/logging"
)

// maxRemoteSize bounds a registry fetched over HTTPS.
const maxRemoteSize = 4 << 20

// WriteError reports a failed registry update. The target file is unchanged.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("update registry %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// IsURL reports whether location names a remote registry.
func IsURL(location string) bool {
	return strings.HasPrefix(location, "https://") || strings.HasPrefix(location, "http://")
}

// Load reads the registry file at path and logs every skipped line.
func Load(path string) (*Registry, []*FormatError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open registry: %w", err)
	}
	defer func() { _ = f.Close() }()

	reg, diags, err := Parse(f)
	logDiagnostics(path, diags)
	return reg, diags, err
}

// Fetch downloads a read-only registry. Non-2xx responses are errors.
func Fetch(ctx context.Context, client *http.Client, url string) (*Registry, []*FormatError, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch registry: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch registry %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, fmt.Errorf("fetch registry %s: unexpected status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteSize+1))
	if err != nil {
		return nil, nil, fmt.Errorf("fetch registry %s: %w", url, err)
	}
	if len(body) > maxRemoteSize {
		return nil, nil, fmt.Errorf("fetch registry %s: body exceeds %d bytes", url, maxRemoteSize)
	}

	reg, diags, err := Parse(bytes.NewReader(body))
	logDiagnostics(url, diags)
	return reg, diags, err
}

// Open loads the registry from a file path or an http(s) URL.
func Open(ctx context.Context, client *http.Client, location string) (*Registry, []*FormatError, error) {
	if IsURL(location) {
		return Fetch(ctx, client, location)
	}
	return Load(location)
}

func logDiagnostics(source string, diags []*FormatError) {
	for _, d := range diags {
		logging.Warnf("registry %s: skipping %v", source, d)
	}
}

// UpsertOptions tune Upsert. The zero value is the production behaviour.
type UpsertOptions struct {
	// Rename replaces os.Rename when publishing the new file.
	Rename func(oldpath, newpath string) error
}

// Upsert sets account's fingerprint in the registry at path and publishes
// the whole new file with a single rename. Concurrent upserts on the same
// path are serialized with an exclusive lock on "<path>.lock". A missing
// registry file is treated as empty.
func Upsert(path, account, fingerprint string, opts UpsertOptions) error {
	if IsURL(path) {
		return &WriteError{Path: path, Err: errors.New("remote registries are read-only")}
	}
	if account == "" || strings.Contains(account, ":") || strings.ContainsAny(account+fingerprint, "\r\n") || fingerprint == "" {
		return &WriteError{Path: path, Err: fmt.Errorf("invalid entry %q", account+":"+fingerprint)}
	}

	unlock, err := lockFile(path + ".lock")
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	defer unlock()

	reg := New()
	if _, statErr := os.Stat(path); statErr == nil {
		reg, _, err = Load(path)
		if err != nil {
			return &WriteError{Path: path, Err: err}
		}
	} else if !errors.Is(statErr, os.ErrNotExist) {
		return &WriteError{Path: path, Err: statErr}
	}

	perm := os.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		perm = fi.Mode().Perm()
	}

	reg.Set(account, fingerprint)
	if err := atomicfile.Write(path, reg.Bytes(), atomicfile.Options{Perm: perm, Rename: opts.Rename}); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	logging.Infof("registry %s: stored %s", path, account)
	return nil
}
