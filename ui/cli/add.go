// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/toeirei/keysync/internal/i18n"
	"github.com/toeirei/keysync/internal/reconcile"
)

func newAddCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add GITHUB_USER PATH_TO_PUBLIC_KEY",
		Short: "Trust a public key for an account after confirming GitHub serves it",
		Long: `Fingerprints PATH_TO_PUBLIC_KEY, checks that GitHub currently publishes the
same key for GITHUB_USER, and records account:fingerprint in the registry.
An existing entry for the account is replaced.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, keyPath := args[0], args[1]

			oracle, err := a.oracle()
			if err != nil {
				return err
			}
			lookup, err := a.githubClient(oracle)
			if err != nil {
				return err
			}
			m := &reconcile.Maintainer{Oracle: oracle, Lookup: lookup}

			fp, err := m.AddKey(cmd.Context(), a.cfg.Registry.Path, user, keyPath)
			var nre *reconcile.NotRegisteredError
			if errors.As(err, &nre) {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), i18n.T("cli.add.not_registered", keyPath, user))
				return &ExitError{Code: 1}
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), i18n.T("cli.add.success", fp, user, a.cfg.Registry.Path))
			return nil
		},
	}
	cmd.Flags().String("registry", "", "registry file to update (default: registry.path)")
	return cmd
}
