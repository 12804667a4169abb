package source

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/fleetwatch/fleetwatch/internal/config"
	"github.com/fleetwatch/fleetwatch/internal/fleet"
	"github.com/fleetwatch/fleetwatch/internal/normalize"
)

const sshDialTimeout = 10 * time.Second

// sshClient reads a collector's device-stats table over SFTP.
type sshClient struct {
	src     config.Source
	addr    string
	hostKey ssh.HostKeyCallback
	signer  ssh.Signer // non-nil when key_file auth is configured
}

// newSSHClient validates the source's connection material up front so a bad
// key file or known-hosts file fails at startup rather than mid-cycle.
func newSSHClient(src config.Source) (*sshClient, error) {
	c := &sshClient{src: src, addr: withDefaultPort(src.Address, "22")}

	if src.KnownHostsFile != "" {
		cb, err := knownhosts.New(src.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("source %q: load known hosts: %w", src.ID, err)
		}
		c.hostKey = cb
	} else {
		// No known-hosts file configured — accept whatever key the
		// collector presents. Appropriate only on trusted management
		// networks.
		c.hostKey = ssh.InsecureIgnoreHostKey() //nolint:gosec // user-configured
	}

	if src.KeyFile != "" {
		pem, err := os.ReadFile(src.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("source %q: read key file: %w", src.ID, err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("source %q: parse private key: %w", src.ID, err)
		}
		c.signer = signer
	}
	return c, nil
}

func (c *sshClient) ID() string { return c.src.ID }

// Fetch connects to the collector, reads the stats file over SFTP, and
// normalizes it into readings.
func (c *sshClient) Fetch(ctx context.Context) ([]fleet.Reading, error) {
	client, err := c.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("source %q: ssh dial %s: %w", c.src.ID, c.addr, err)
	}
	defer client.Close()

	ftp, err := sftp.NewClient(client)
	if err != nil {
		return nil, fmt.Errorf("source %q: open sftp: %w", c.src.ID, err)
	}
	defer ftp.Close()

	f, err := ftp.Open(c.src.StatsPath)
	if err != nil {
		return nil, fmt.Errorf("source %q: open %s: %w", c.src.ID, c.src.StatsPath, err)
	}
	defer f.Close()

	readings, skipped, err := normalize.Readings(f, c.src.ID)
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", c.src.ID, err)
	}
	if skipped > 0 {
		slog.Warn("source: skipped malformed rows",
			"source", c.src.ID, "skipped", skipped, "kept", len(readings))
	}
	return readings, nil
}

// dial opens the TCP connection under ctx and completes the SSH handshake.
// ssh.Dial has no context support, so the two steps are split.
func (c *sshClient) dial(ctx context.Context) (*ssh.Client, error) {
	var auth []ssh.AuthMethod
	if c.signer != nil {
		auth = append(auth, ssh.PublicKeys(c.signer))
	}
	if c.src.PasswordEnv != "" {
		auth = append(auth, ssh.Password(c.src.Password()))
	}

	cfg := &ssh.ClientConfig{
		User:            c.src.Username,
		Auth:            auth,
		HostKeyCallback: c.hostKey,
		Timeout:         sshDialTimeout,
	}

	d := net.Dialer{Timeout: sshDialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, err
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, c.addr, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// withDefaultPort appends port when addr does not already carry one.
func withDefaultPort(addr, port string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, port)
}
