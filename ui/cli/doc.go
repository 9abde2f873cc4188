// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.
//
// Package cli implements the keysync command-line interface using Cobra.
// It loads configuration, wires the fingerprint oracle, GitHub client,
// account directory and audit store, and delegates the actual work to the
// reconcile package.
package cli
