package birdc

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHConfig describes how to reach a remote host running BIRD.
type SSHConfig struct {
	Host     string // host or host:port
	User     string
	Password string
	KeyFile  string
	// KnownHosts is an OpenSSH known_hosts file used to verify the host key.
	KnownHosts string
	// Insecure skips host key verification. Lab use only.
	Insecure bool
}

// SSHRunner runs birdc on a remote host over one SSH connection, opening a
// session per command.
type SSHRunner struct {
	client *ssh.Client
}

// DialSSH connects to cfg.Host.
func DialSSH(cfg SSHConfig) (*SSHRunner, error) {
	config, err := clientConfig(cfg)
	if err != nil {
		return nil, err
	}
	addr := cfg.Host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "22")
	}
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("SSH dial %s: %w", addr, err)
	}
	return &SSHRunner{client: client}, nil
}

func clientConfig(cfg SSHConfig) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if cfg.KeyFile != "" {
		pem, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading SSH key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parsing SSH key %s: %w", cfg.KeyFile, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("SSH to %s: no password or key file configured", cfg.Host)
	}

	var hostKey ssh.HostKeyCallback
	switch {
	case cfg.Insecure:
		hostKey = ssh.InsecureIgnoreHostKey()
	case cfg.KnownHosts != "":
		cb, err := knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("loading known hosts: %w", err)
		}
		hostKey = cb
	default:
		return nil, fmt.Errorf("SSH to %s: known_hosts file required unless insecure is set", cfg.Host)
	}

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
	}, nil
}

// Run executes args as one remote command line. The session is closed when
// ctx is done, which aborts the command.
func (r *SSHRunner) Run(ctx context.Context, args ...string) (string, error) {
	session, err := r.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("SSH session: %w", err)
	}
	defer session.Close()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	cmd := shellJoin(args)
	go func() {
		out, err := session.CombinedOutput(cmd)
		done <- result{out, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return string(res.out), fmt.Errorf("SSH exec '%s': %w", cmd, res.err)
		}
		return string(res.out), nil
	case <-ctx.Done():
		session.Close()
		return "", fmt.Errorf("SSH exec '%s': %w", cmd, ctx.Err())
	}
}

// Close closes the SSH connection.
func (r *SSHRunner) Close() error {
	return r.client.Close()
}

// shellJoin quotes arguments for the remote shell.
func shellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if a != "" && strings.IndexFunc(a, needsQuote) < 0 {
			quoted[i] = a
			continue
		}
		quoted[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
	}
	return strings.Join(quoted, " ")
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./:=@", r)
}
