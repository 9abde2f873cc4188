// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/toeirei/keysync/internal/audit"
	"github.com/toeirei/keysync/internal/i18n"
)

func newAuditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the trail of past sync runs",
	}
	cmd.AddCommand(newAuditListCmd(a), newAuditExportCmd(a))
	return cmd
}

func (a *app) auditStore() (*audit.Store, error) {
	if !a.cfg.Audit.Enabled {
		return nil, errors.New(i18n.T("cli.audit.disabled"))
	}
	return a.openAudit(a.cfg.Audit.Database)
}

func newAuditListCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sync runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.auditStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			runs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				_, _ = fmt.Fprintln(out, i18n.T("cli.audit.none"))
				return nil
			}
			_, _ = fmt.Fprintln(out, i18n.T("cli.audit.header"))
			for _, r := range runs {
				_, _ = fmt.Fprintf(out, "%-37s %-21s %-10s %6d %7d %5d\n",
					r.ID, r.StartedAt.Local().Format(time.DateTime), r.Mode, r.Total, r.Failed, r.ExitCode)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show (0 for all)")
	return cmd
}

func newAuditExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export [FILE]",
		Short: "Write the whole audit trail as zstd-compressed JSON (stdout by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.auditStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var w io.Writer = cmd.OutOrStdout()
			target := "stdout"
			if len(args) == 1 {
				target = args[0]
				f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
				if err != nil {
					return fmt.Errorf("could not create export file: %w", err)
				}
				defer func() { _ = f.Close() }()
				w = f
			}

			if err := store.Export(cmd.Context(), w); err != nil {
				return err
			}
			runs, err := store.Recent(cmd.Context(), 0)
			if err == nil {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), i18n.T("cli.audit.exported", len(runs), target))
			}
			return nil
		},
	}
}
