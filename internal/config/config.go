// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

// package config loads keysync settings from defaults, keysync.yaml,
// KEYSYNC_* environment variables and command-line flags, in increasing
// order of precedence.
package config // import "github.com/toeirei/keysync/internal/config"

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the full keysync configuration.
type Config struct {
	Registry    RegistryConfig    `mapstructure:"registry" yaml:"registry"`
	GitHub      GitHubConfig      `mapstructure:"github" yaml:"github"`
	Fingerprint FingerprintConfig `mapstructure:"fingerprint" yaml:"fingerprint"`
	Accounts    AccountsConfig    `mapstructure:"accounts" yaml:"accounts"`
	Audit       AuditConfig       `mapstructure:"audit" yaml:"audit"`
	Language    string            `mapstructure:"language" yaml:"language"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
}

type RegistryConfig struct {
	// Path is a local file or an https:// URL.
	Path string `mapstructure:"path" yaml:"path"`
}

type GitHubConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// PinnedSPKI lists base64 SHA-256 hashes of accepted public keys.
	PinnedSPKI []string `mapstructure:"pinned_spki" yaml:"pinned_spki"`
}

type FingerprintConfig struct {
	Oracle     string `mapstructure:"oracle" yaml:"oracle"`
	KeygenPath string `mapstructure:"keygen_path" yaml:"keygen_path"`
}

type AccountsConfig struct {
	// Target is "local" or "ssh".
	Target      string    `mapstructure:"target" yaml:"target"`
	Shell       string    `mapstructure:"shell" yaml:"shell"`
	UseraddPath string    `mapstructure:"useradd_path" yaml:"useradd_path"`
	SSH         SSHConfig `mapstructure:"ssh" yaml:"ssh"`
}

type SSHConfig struct {
	Host                  string        `mapstructure:"host" yaml:"host"`
	User                  string        `mapstructure:"user" yaml:"user"`
	PrivateKeyFile        string        `mapstructure:"private_key_file" yaml:"private_key_file"`
	KnownHostsFile        string        `mapstructure:"known_hosts_file" yaml:"known_hosts_file"`
	InsecureIgnoreHostKey bool          `mapstructure:"insecure_ignore_host_key" yaml:"insecure_ignore_host_key"`
	Sudo                  bool          `mapstructure:"sudo" yaml:"sudo"`
	Timeout               time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type AuditConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
}

type DatabaseConfig struct {
	Type string `mapstructure:"type" yaml:"type"`
	Dsn  string `mapstructure:"dsn" yaml:"dsn"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// Defaults returns the default value of every configuration key.
func Defaults() map[string]any {
	return map[string]any{
		"registry.path":                         "passwd",
		"github.base_url":                       "https://github.com",
		"github.timeout":                        "10s",
		"github.pinned_spki":                    []string{},
		"fingerprint.oracle":                    "ssh-keygen",
		"fingerprint.keygen_path":               "ssh-keygen",
		"accounts.target":                       "local",
		"accounts.shell":                        "/bin/bash",
		"accounts.useradd_path":                 "useradd",
		"accounts.ssh.host":                     "",
		"accounts.ssh.user":                     "root",
		"accounts.ssh.private_key_file":         "",
		"accounts.ssh.known_hosts_file":         defaultKnownHosts(),
		"accounts.ssh.insecure_ignore_host_key": false,
		"accounts.ssh.sudo":                     false,
		"accounts.ssh.timeout":                  "15s",
		"audit.enabled":                         false,
		"audit.database.type":                   "sqlite",
		"audit.database.dsn":                    "keysync-audit.db",
		"language":                              "en",
		"log.level":                             "info",
	}
}

func defaultKnownHosts() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh", "known_hosts")
}

// flagKeys maps command-line flag names to the configuration keys they set.
// Flags not listed bind under their own name.
var flagKeys = map[string]string{
	"registry":  "registry.path",
	"lang":      "language",
	"log-level": "log.level",
}

// GetConfigPath returns the user or system-wide configuration file path.
func GetConfigPath(system bool) (string, error) {
	var configDir string
	if system {
		switch runtime.GOOS {
		case "windows":
			configDir = filepath.Join(os.Getenv("ProgramData"), "keysync")
		default:
			configDir = "/etc/keysync"
		}
	} else {
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		configDir = filepath.Join(dir, "keysync")
	}
	return filepath.Join(configDir, "keysync.yaml"), nil
}

// LoadConfig resolves configuration into T. explicitPath, when non-empty,
// must name a readable file; otherwise keysync.yaml is searched in the user
// config dir, the system config dir and the working directory, and a missing
// file is not an error.
func LoadConfig[T any](cmd *cobra.Command, defaults map[string]any, explicitPath string) (T, error) {
	var c T
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("keysync")
	v.SetConfigType("yaml")
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		if p, err := GetConfigPath(false); err == nil {
			v.AddConfigPath(filepath.Dir(p))
		}
		if p, err := GetConfigPath(true); err == nil {
			v.AddConfigPath(filepath.Dir(p))
		}
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicitPath != "" || !errors.As(err, &notFound) {
			return c, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("keysync")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cmd != nil {
		var bindErr error
		bind := func(f *pflag.Flag) {
			key := f.Name
			if k, ok := flagKeys[f.Name]; ok {
				key = k
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		}
		cmd.Flags().VisitAll(bind)
		cmd.InheritedFlags().VisitAll(bind)
		if bindErr != nil {
			return c, bindErr
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	return c, nil
}

// WriteConfigFile serialises c as YAML to the user or system configuration
// path and returns that path. An existing file is never overwritten.
func WriteConfigFile[T any](c *T, system bool) (string, error) {
	path, err := GetConfigPath(system)
	if err != nil {
		return "", err
	}
	return path, WriteConfigFileTo(c, path)
}

// ErrConfigExists is returned by WriteConfigFileTo when path already exists.
var ErrConfigExists = errors.New("config file already exists")

// WriteConfigFileTo serialises c as YAML to path.
func WriteConfigFileTo[T any](c *T, path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("could not create config directory %s: %w", dir, err)
		}
	}
	// 0600: the file may carry a database DSN with credentials.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s: %w", path, ErrConfigExists)
		}
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Default returns the configuration produced by Defaults alone, ignoring
// files, environment and flags.
func Default() (Config, error) {
	var c Config
	v := viper.New()
	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	return c, nil
}
