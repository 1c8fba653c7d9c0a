/*
Copyright 2024 The hypervisor-builder Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/crypto/ssh"
)

// ErrNoAuth is returned when neither a password nor a private key file
// is configured.
var ErrNoAuth = errors.New("either a password or a private key file is required")

const (
	defaultPort    = 22
	defaultTimeout = 30 * time.Minute
)

// Auth selects the authentication material for a connection. Exactly one
// of Password or PrivateKeyPath must be set.
type Auth struct {
	Password       string
	PrivateKeyPath string
}

// Client implements Runner and Transferer for real SSH connections.
// Every call dials a fresh connection, so a Client carries no state
// beyond its configuration and is safe to share.
type Client struct {
	Host string
	User string
	Port int

	password string
	signer   ssh.Signer
	timeout  time.Duration
	log      logr.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithPort overrides the SSH port.
func WithPort(port int) Option {
	return func(c *Client) { c.Port = port }
}

// WithTimeout bounds both the dial and the remote command execution.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.timeout = timeout }
}

// WithLogger injects the logger used for command tracing.
func WithLogger(log logr.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient creates an SSH client for the given host. Password and
// key-file auth are mutually exclusive; configuring neither (or both) is
// an error.
func NewClient(host, user string, auth Auth, opts ...Option) (*Client, error) {
	if (auth.Password == "") == (auth.PrivateKeyPath == "") {
		return nil, ErrNoAuth
	}

	c := &Client{
		Host:     host,
		User:     user,
		Port:     defaultPort,
		password: auth.Password,
		timeout:  defaultTimeout,
		log:      logr.Discard(),
	}

	if auth.PrivateKeyPath != "" {
		key, err := os.ReadFile(auth.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("unable to parse private key: %w", err)
		}
		c.signer = signer
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Run executes a command on the remote host. The exit code of the remote
// command is data, not an error: a non-zero exit returns (code, output,
// nil). The returned text is stderr when the command wrote any, stdout
// otherwise.
func (c *Client) Run(ctx context.Context, cmd string) (int, string, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return 0, "", err
	}
	defer closeAndLogErr(c.log, conn.Close)

	session, err := conn.NewSession()
	if err != nil {
		return 0, "", fmt.Errorf("unable to create SSH session: %w", err)
	}
	defer closeAndLogErr(c.log, session.Close)

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	c.log.V(1).Info("running remote command", "host", c.Host, "cmd", cmd)

	exitCode := 0
	if err := session.Run(cmd); err != nil {
		var exitErr *ssh.ExitError
		if !errors.As(err, &exitErr) {
			return 0, "", fmt.Errorf("remote command failed: %w", err)
		}
		exitCode = exitErr.ExitStatus()
	}

	output := stdout.String()
	if stderr.Len() > 0 {
		output = stderr.String()
	}

	return exitCode, output, nil
}

// dial opens an SSH connection honoring the context for the TCP dial.
func (c *Client) dial(ctx context.Context) (*ssh.Client, error) {
	config := &ssh.ClientConfig{
		User:            c.User,
		Auth:            c.authMethods(),
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // test hosts are ephemeral
		Timeout:         c.timeout,
	}

	addr := net.JoinHostPort(c.Host, strconv.Itoa(c.Port))

	var d net.Dialer
	tcpConn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, config)
	if err != nil {
		_ = tcpConn.Close()
		return nil, fmt.Errorf("SSH handshake with %s failed: %w", addr, err)
	}

	return ssh.NewClient(sshConn, chans, reqs), nil
}

func (c *Client) authMethods() []ssh.AuthMethod {
	if c.signer != nil {
		return []ssh.AuthMethod{ssh.PublicKeys(c.signer)}
	}
	return []ssh.AuthMethod{ssh.Password(c.password)}
}

func closeAndLogErr(log logr.Logger, f func() error) {
	if err := f(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.V(1).Info("error closing ssh session or connection", "err", err.Error())
	}
}
