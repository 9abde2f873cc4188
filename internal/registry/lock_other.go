//go:build !unix

// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

package registry

// lockFile is a no-op where flock is unavailable; concurrent maintenance
// calls must then be serialized by the operator.
func lockFile(string) (func(), error) {
	return func() {}, nil
}
