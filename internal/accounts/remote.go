// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

package accounts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"github.com/toeirei/keysync/internal/logging"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultConnectTimeout bounds the SSH handshake with the remote host.
const DefaultConnectTimeout = 10 * time.Second

// getentNotFound is getent's exit status when the key is not in the database.
const getentNotFound = 2

var accountNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}\$?$`)

// RemoteConfig describes how to reach the managed host.
type RemoteConfig struct {
	Host string
	// User must be able to create accounts and write every account's home,
	// which in practice means root.
	User           string
	PrivateKeyFile string
	KnownHostsFile string
	// InsecureIgnoreHostKey skips host key verification. Only for lab setups.
	InsecureIgnoreHostKey bool
	Shell                 string
	// UseraddPath is the provisioning binary on the remote host. Empty means
	// DefaultUseraddPath.
	UseraddPath string
	// Sudo runs useradd through "sudo -n" for logins that may not create
	// accounts themselves.
	Sudo    bool
	Timeout time.Duration
}

// commandRunner executes one shell command on the remote host.
type commandRunner interface {
	Run(ctx context.Context, cmd string) (stdout, stderr string, exitCode int, err error)
}

// remoteFS is the subset of SFTP operations the directory needs.
type remoteFS interface {
	ReadFile(p string) ([]byte, error)
	WriteFile(p string, data []byte) error
	MkdirAll(p string) error
	Chmod(p string, mode os.FileMode) error
	Chown(p string, uid, gid int) error
	Rename(oldpath, newpath string) error
	Remove(p string) error
}

// Remote manages accounts on one host over SSH, using shell commands for
// lookup/provisioning and SFTP for authorized_keys.
type Remote struct {
	runner  commandRunner
	fs      remoteFS
	shell   string
	useradd string
	sudo    bool
	closer  func() error
}

// DialRemote connects to the host described by cfg.
func DialRemote(cfg RemoteConfig) (*Remote, error) {
	if cfg.Host == "" {
		return nil, errors.New("remote: host is required")
	}
	user := cfg.User
	if user == "" {
		user = "root"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	hostKeyCallback, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, err
	}
	auth, err := authMethods(cfg)
	if err != nil {
		return nil, err
	}

	addr := cfg.Host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "22")
	}
	client, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("remote: connect to %s: %w", addr, err)
	}
	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("remote: start sftp on %s: %w", addr, err)
	}
	logging.Debugf("remote: connected to %s as %s", addr, user)

	return &Remote{
		runner: &sshRunner{client: client},
		fs:     &sftpFS{c: sftpClient},
		shell:   cfg.Shell,
		useradd: cfg.UseraddPath,
		sudo:    cfg.Sudo,
		closer: func() error {
			_ = sftpClient.Close()
			return client.Close()
		},
	}, nil
}

// Close tears down the SFTP and SSH clients.
func (r *Remote) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}

func hostKeyCallback(cfg RemoteConfig) (ssh.HostKeyCallback, error) {
	if cfg.InsecureIgnoreHostKey {
		logging.Warnf("remote: host key verification for %s is disabled", cfg.Host)
		return ssh.InsecureIgnoreHostKey(), nil
	}
	file := cfg.KnownHostsFile
	if file == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("remote: locate known_hosts: %w", err)
		}
		file = path.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(file)
	if err != nil {
		return nil, fmt.Errorf("remote: load known_hosts %s: %w", file, err)
	}
	return cb, nil
}

func authMethods(cfg RemoteConfig) ([]ssh.AuthMethod, error) {
	if cfg.PrivateKeyFile != "" {
		pemBytes, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("remote: read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pemBytes)
		if err != nil {
			return nil, fmt.Errorf("remote: unable to parse private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	agentClient := getSSHAgent()
	if agentClient == nil {
		return nil, errors.New("remote: no authentication method available (no private key configured and no ssh agent found)")
	}
	return []ssh.AuthMethod{ssh.PublicKeysCallback(agentClient.Signers)}, nil
}

// Resolve runs getent passwd on the remote host.
func (r *Remote) Resolve(ctx context.Context, name string) (*Handle, error) {
	if !accountNamePattern.MatchString(name) {
		return nil, fmt.Errorf("remote: refusing unsafe account name %q", name)
	}
	stdout, stderr, code, err := r.runner.Run(ctx, "getent passwd "+shellQuote(name))
	if err != nil {
		return nil, fmt.Errorf("remote: lookup account %s: %w", name, err)
	}
	if code == getentNotFound {
		return nil, nil
	}
	if code != 0 {
		return nil, fmt.Errorf("remote: lookup account %s: getent exited %d: %s", name, code, strings.TrimSpace(stderr))
	}
	return parsePasswdLine(name, stdout)
}

// Provision runs useradd on the remote host.
func (r *Remote) Provision(ctx context.Context, name string) (*Handle, error) {
	if !accountNamePattern.MatchString(name) {
		return nil, &ProvisionError{Account: name, Err: errors.New("unsafe account name")}
	}
	_, stderr, code, err := r.runner.Run(ctx, r.useraddCommand(name))
	if err != nil {
		return nil, &ProvisionError{Account: name, Err: err}
	}
	if code != 0 {
		return nil, &ProvisionError{Account: name, Stderr: strings.TrimSpace(stderr), Err: fmt.Errorf("useradd exited %d", code)}
	}
	h, err := r.Resolve(ctx, name)
	if err != nil {
		return nil, &ProvisionError{Account: name, Err: err}
	}
	if h == nil {
		return nil, &ProvisionError{Account: name, Err: errors.New("account not found after useradd")}
	}
	return h, nil
}

// useraddCommand renders the remote provisioning command line.
func (r *Remote) useraddCommand(name string) string {
	bin := r.useradd
	if bin == "" {
		bin = DefaultUseraddPath
	}
	args := useraddArgs(name, r.shell)
	quoted := make([]string, 0, len(args)+3)
	if r.sudo {
		quoted = append(quoted, "sudo", "-n")
	}
	quoted = append(quoted, bin)
	for _, a := range args {
		quoted = append(quoted, shellQuote(a))
	}
	return strings.Join(quoted, " ")
}

// ReadAuthorization fetches authorized_keys over SFTP.
func (r *Remote) ReadAuthorization(_ context.Context, h *Handle) ([]byte, error) {
	data, err := r.fs.ReadFile(h.AuthorizedKeysPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("remote: read %s: %w", h.AuthorizedKeysPath, err)
	}
	return data, nil
}

// WriteAuthorization uploads to a temporary file inside .ssh and renames it
// into place, so sshd never reads a partial file.
func (r *Remote) WriteAuthorization(_ context.Context, h *Handle, content string) error {
	sshDir := path.Dir(h.AuthorizedKeysPath)
	if err := r.fs.MkdirAll(sshDir); err != nil {
		return fmt.Errorf("remote: create %s: %w", sshDir, err)
	}
	if err := r.fs.Chmod(sshDir, 0o700); err != nil {
		return fmt.Errorf("remote: chmod %s: %w", sshDir, err)
	}
	if err := r.fs.Chown(sshDir, h.UID, h.GID); err != nil {
		return fmt.Errorf("remote: chown %s: %w", sshDir, err)
	}

	tmpPath := path.Join(sshDir, fmt.Sprintf(".authorized_keys.keysync.%d", time.Now().UnixNano()))
	if err := r.fs.WriteFile(tmpPath, []byte(content)); err != nil {
		_ = r.fs.Remove(tmpPath)
		return fmt.Errorf("remote: write temporary file: %w", err)
	}
	if err := r.fs.Chmod(tmpPath, 0o600); err != nil {
		_ = r.fs.Remove(tmpPath)
		return fmt.Errorf("remote: chmod temporary file: %w", err)
	}
	if err := r.fs.Chown(tmpPath, h.UID, h.GID); err != nil {
		_ = r.fs.Remove(tmpPath)
		return fmt.Errorf("remote: chown temporary file: %w", err)
	}
	if err := r.fs.Rename(tmpPath, h.AuthorizedKeysPath); err != nil {
		_ = r.fs.Remove(tmpPath)
		return fmt.Errorf("remote: rename authorized_keys into place: %w", err)
	}
	return nil
}

// parsePasswdLine parses "name:pw:uid:gid:gecos:home:shell".
func parsePasswdLine(name, out string) (*Handle, error) {
	line := strings.TrimSpace(strings.SplitN(out, "\n", 2)[0])
	fields := strings.Split(line, ":")
	if len(fields) != 7 || fields[0] != name {
		return nil, fmt.Errorf("remote: unexpected passwd entry %q", line)
	}
	uid, err := strconv.Atoi(fields[2])
	if err != nil {
		return nil, fmt.Errorf("remote: invalid uid in passwd entry %q", line)
	}
	gid, err := strconv.Atoi(fields[3])
	if err != nil {
		return nil, fmt.Errorf("remote: invalid gid in passwd entry %q", line)
	}
	home := fields[5]
	if home == "" {
		return nil, fmt.Errorf("remote: account %s has no home directory", name)
	}
	return &Handle{Name: name, UID: uid, GID: gid, HomeDir: home, AuthorizedKeysPath: authorizedKeysPath(home)}, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

type sshRunner struct {
	client *ssh.Client
}

func (r *sshRunner) Run(ctx context.Context, cmd string) (string, string, int, error) {
	session, err := r.client.NewSession()
	if err != nil {
		return "", "", -1, fmt.Errorf("open session: %w", err)
	}
	defer func() { _ = session.Close() }()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = session.Close()
		case <-done:
		}
	}()

	err = session.Run(cmd)
	var exitErr *ssh.ExitError
	switch {
	case err == nil:
		return stdout.String(), stderr.String(), 0, nil
	case errors.As(err, &exitErr):
		return stdout.String(), stderr.String(), exitErr.ExitStatus(), nil
	case ctx.Err() != nil:
		return "", "", -1, ctx.Err()
	default:
		return "", "", -1, err
	}
}

type sftpFS struct {
	c *sftp.Client
}

func (s *sftpFS) ReadFile(p string) ([]byte, error) {
	f, err := s.c.Open(p)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *sftpFS) WriteFile(p string, data []byte) error {
	f, err := s.c.Create(p)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (s *sftpFS) MkdirAll(p string) error                { return s.c.MkdirAll(p) }
func (s *sftpFS) Chmod(p string, mode os.FileMode) error { return s.c.Chmod(p, mode) }
func (s *sftpFS) Chown(p string, uid, gid int) error     { return s.c.Chown(p, uid, gid) }
func (s *sftpFS) Rename(oldpath, newpath string) error   { return s.c.PosixRename(oldpath, newpath) }
func (s *sftpFS) Remove(p string) error                  { return s.c.Remove(p) }
