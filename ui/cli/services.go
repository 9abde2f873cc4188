// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/toeirei/keysync/buildvars"
	"github.com/toeirei/keysync/internal/accounts"
	"github.com/toeirei/keysync/internal/audit"
	"github.com/toeirei/keysync/internal/config"
	"github.com/toeirei/keysync/internal/fingerprint"
	"github.com/toeirei/keysync/internal/github"
	"github.com/toeirei/keysync/internal/report"
)

// app holds the resolved configuration and the constructors commands use to
// reach the outside world. Tests replace the constructors.
type app struct {
	cfgFile string
	noColor bool
	cfg     config.Config

	openDirectory func(ctx context.Context, cfg config.Config) (accounts.Directory, func(), error)
	openAudit     func(cfg config.DatabaseConfig) (*audit.Store, error)
}

func newApp() *app {
	return &app{
		openDirectory: openDirectory,
		openAudit: func(db config.DatabaseConfig) (*audit.Store, error) {
			return audit.Open(db.Type, db.Dsn)
		},
	}
}

// oracle builds the configured fingerprint oracle.
func (a *app) oracle() (fingerprint.Oracle, error) {
	return fingerprint.New(a.cfg.Fingerprint.Oracle, a.cfg.Fingerprint.KeygenPath)
}

// githubClient builds the GitHub key lookup with the configured timeout and
// optional SPKI pins.
func (a *app) githubClient(oracle fingerprint.Oracle) (*github.Client, error) {
	hc, err := github.NewHTTPClient(a.cfg.GitHub.Timeout, a.cfg.GitHub.PinnedSPKI)
	if err != nil {
		return nil, err
	}
	return github.NewClient(hc, oracle,
		github.WithBaseURL(a.cfg.GitHub.BaseURL),
		github.WithUserAgent(buildvars.UserAgent()),
	), nil
}

// registryClient fetches remote registries. GitHub pins do not apply to it.
func (a *app) registryClient() (*http.Client, error) {
	return github.NewHTTPClient(a.cfg.GitHub.Timeout, nil)
}

func (a *app) color(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return report.ColorEnabled(f, a.noColor)
}

func openDirectory(_ context.Context, cfg config.Config) (accounts.Directory, func(), error) {
	ac := cfg.Accounts
	switch ac.Target {
	case "", "local":
		return accounts.NewLocal(ac.Shell, ac.UseraddPath), func() {}, nil
	case "ssh":
		r, err := accounts.DialRemote(accounts.RemoteConfig{
			Host:                  ac.SSH.Host,
			User:                  ac.SSH.User,
			PrivateKeyFile:        ac.SSH.PrivateKeyFile,
			KnownHostsFile:        ac.SSH.KnownHostsFile,
			InsecureIgnoreHostKey: ac.SSH.InsecureIgnoreHostKey,
			Shell:                 ac.Shell,
			UseraddPath:           ac.UseraddPath,
			Sudo:                  ac.SSH.Sudo,
			Timeout:               ac.SSH.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown accounts.target %q (supported: local, ssh)", ac.Target)
	}
}
