// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

// package atomicfile replaces files so that readers only ever observe the
// old or the new content. The new content is written to a temporary file in
// the target's directory and renamed over the target.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// Options tune a single Write call.
type Options struct {
	// Perm is applied to the temporary file before the rename. Zero means 0o600.
	Perm os.FileMode
	// Chown, when non-nil, is called with the open temporary file before it is
	// renamed into place.
	Chown func(f *os.File) error
	// Rename replaces os.Rename. Tests use it to simulate an interruption
	// between writing and publishing.
	Rename func(oldpath, newpath string) error
}

// Write atomically replaces path with data. The temporary file is removed on
// every path where the rename did not happen.
func Write(path string, data []byte, opts Options) (err error) {
	perm := opts.Perm
	if perm == 0 {
		perm = 0o600
	}
	rename := opts.Rename
	if rename == nil {
		rename = os.Rename
	}

	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temporary file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	renamed := false
	defer func() {
		if !renamed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temporary file %s: %w", tmpName, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temporary file %s: %w", tmpName, err)
	}
	if opts.Chown != nil {
		if err := opts.Chown(tmp); err != nil {
			return fmt.Errorf("chown temporary file %s: %w", tmpName, err)
		}
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temporary file %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temporary file %s: %w", tmpName, err)
	}
	if err := rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s onto %s: %w", tmpName, path, err)
	}
	renamed = true
	return nil
}
