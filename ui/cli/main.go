// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the keysync command-line interface using Cobra: the root
// command, its persistent flags, configuration loading and the entry point.

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/toeirei/keysync/buildvars"
	"github.com/toeirei/keysync/internal/config"
	"github.com/toeirei/keysync/internal/i18n"
	"github.com/toeirei/keysync/internal/logging"
)

// ExitError carries a non-zero exit status that is not a failure of the
// command itself, e.g. a validate run that found drift.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit status %d", e.Code) }

// ExitCode maps the error returned by Execute to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return 1
}

// Execute runs the CLI with a context that is cancelled on SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	var ee *ExitError
	if err != nil && !errors.As(err, &ee) {
		logging.Errorf("%v", err)
	}
	return err
}

// NewRootCmd creates the root command. Each call returns an independent
// command tree, which keeps tests isolated.
func NewRootCmd() *cobra.Command {
	return newRootCmd(newApp())
}

func newRootCmd(a *app) *cobra.Command {
	v, c, d := buildvars.Resolve(nil)
	version := v
	if c != "" && c != "dev" && c != v {
		version += " (" + c + ")"
	}
	if d != "" {
		version += " built: " + d
	}

	cmd := &cobra.Command{
		Use:   "keysync",
		Short: "Reconcile local SSH accounts with keys published on GitHub",
		Long: `keysync keeps local accounts in step with a registry that binds each
account name to the fingerprint of exactly one GitHub-published SSH key.

Each sync provisions missing accounts, installs the trusted key as the only
entry in authorized_keys, and revokes access entirely once GitHub stops
serving that key. --validate reports drift without changing anything.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: keysync.yaml in the user config dir, /etc/keysync or .)")
	cmd.PersistentFlags().String("lang", "", `language for operator messages ("en", "de")`)
	cmd.PersistentFlags().String("log-level", "", `log level ("debug", "info", "warn", "error")`)
	cmd.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "disable coloured output")

	cmd.AddCommand(
		newSyncCmd(a),
		newAddCmd(a),
		newAuditCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return cmd
}

// load resolves configuration and initialises logging and i18n for cmd.
func (a *app) load(cmd *cobra.Command) error {
	logging.SetOutput(cmd.ErrOrStderr())

	cfg, err := config.LoadConfig[config.Config](cmd, config.Defaults(), a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := logging.SetLevel(cfg.Log.Level); err != nil {
		return err
	}
	i18n.Init(cfg.Language)
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		// Skips configuration loading.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			v, c, d := buildvars.Resolve(nil)
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "version: %s\n", v)
			_, _ = fmt.Fprintf(out, "commit: %s\n", c)
			if d != "" {
				_, _ = fmt.Fprintf(out, "built: %s\n", d)
			}
		},
	}
}
