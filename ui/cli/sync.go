// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"github.com/spf13/cobra"
	"github.com/toeirei/keysync/internal/audit"
	"github.com/toeirei/keysync/internal/i18n"
	"github.com/toeirei/keysync/internal/logging"
	"github.com/toeirei/keysync/internal/model"
	"github.com/toeirei/keysync/internal/reconcile"
	"github.com/toeirei/keysync/internal/registry"
	"github.com/toeirei/keysync/internal/report"
)

func newSyncCmd(a *app) *cobra.Command {
	var validate, dryRun bool

	cmd := &cobra.Command{
		Use:   "sync [REGISTRY]",
		Short: "Reconcile every registry entry, or validate with --validate",
		Long: `Reads the registry (a local file or an https:// URL, default from
registry.path) and reconciles each account against GitHub.

Manage mode provisions missing accounts, installs the matching key as the only
authorized key and revokes access when GitHub no longer serves it. --validate
reports drift and exits non-zero on any mismatch. --dry-run shows what manage
mode would do.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := model.ModeManage
			switch {
			case validate:
				mode = model.ModeValidate
			case dryRun:
				mode = model.ModeDryRun
			}
			location := a.cfg.Registry.Path
			if len(args) == 1 {
				location = args[0]
			}
			return a.runSync(cmd, location, mode)
		},
	}
	cmd.Flags().BoolVar(&validate, "validate", false, "report drift without changing anything")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what manage mode would change")
	cmd.MarkFlagsMutuallyExclusive("validate", "dry-run")
	return cmd
}

func (a *app) runSync(cmd *cobra.Command, location string, mode model.Mode) error {
	ctx := cmd.Context()

	rc, err := a.registryClient()
	if err != nil {
		return err
	}
	reg, diags, err := registry.Open(ctx, rc, location)
	if err != nil {
		return err
	}
	logging.L.Info(i18n.T("cli.sync.loaded", reg.Len(), location))
	if len(diags) > 0 {
		logging.L.Warn(i18n.T("cli.sync.skipped_lines", len(diags)))
	}

	oracle, err := a.oracle()
	if err != nil {
		return err
	}
	lookup, err := a.githubClient(oracle)
	if err != nil {
		return err
	}
	dir, closeDir, err := a.openDirectory(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer closeDir()

	renderer := report.New(cmd.OutOrStdout(), a.color(cmd.OutOrStdout()))
	reporters := []reconcile.Reporter{renderer}

	var rec *audit.Recorder
	if a.cfg.Audit.Enabled {
		store, err := a.openAudit(a.cfg.Audit.Database)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		if rec, err = store.Begin(ctx, mode, location); err != nil {
			return err
		}
		reporters = append(reporters, rec)
	}

	rep := reconcile.NewController(reconcile.NewEngine(oracle, lookup, dir), reporters...).Run(ctx, reg.Entries(), mode)
	renderer.Summary(rep)

	if rec != nil {
		if err := rec.Finish(rep); err != nil {
			logging.L.Warn("audit trail incomplete", "run", rec.RunID(), "err", err)
		}
	}
	if ctx.Err() != nil {
		logging.L.Warn(i18n.T("cli.sync.interrupted"))
	}
	if code := rep.ExitCode(); code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}
