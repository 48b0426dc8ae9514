package sshexec

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/juju/errors"
	"github.com/warriorguo/taskgraph/types"
	"golang.org/x/crypto/ssh"
)

var (
	_ types.Executor = &Executor{}
)

// Config describes the SSH target of a provisioning run.
type Config struct {
	Host string
	Port int
	User string

	// one of Password or PrivateKeyPEM is required
	Password      string
	PrivateKeyPEM []byte

	/**
	 * HostKeyCallback defaults to InsecureIgnoreHostKey, matching how the
	 * provisioning scripts talk to freshly booted instances whose host key
	 * is not known yet. Set a real callback for long-lived targets.
	 */
	HostKeyCallback ssh.HostKeyCallback

	ConnectTimeout time.Duration
}

func (c *Config) addr() string {
	port := c.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", port))
}

func (c *Config) clientConfig() (*ssh.ClientConfig, error) {
	if c.Host == "" {
		return nil, errors.New("host cannot be empty")
	}
	if c.User == "" {
		return nil, errors.New("user cannot be empty")
	}

	auth := make([]ssh.AuthMethod, 0, 2)
	if len(c.PrivateKeyPEM) > 0 {
		signer, err := ssh.ParsePrivateKey(c.PrivateKeyPEM)
		if err != nil {
			return nil, errors.Annotatef(err, "parse private key")
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if c.Password != "" {
		auth = append(auth, ssh.Password(c.Password))
	}
	if len(auth) == 0 {
		return nil, errors.New("no authentication method configured")
	}

	hostKey := c.HostKeyCallback
	if hostKey == nil {
		hostKey = ssh.InsecureIgnoreHostKey()
	}

	timeout := c.ConnectTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}, nil
}

/**
 * Executor runs commands on the remote target over one SSH connection,
 * opening a dedicated session per Execute call. Sessions are independent,
 * so concurrent calls from different tasks are safe; the connection-level
 * multiplexing is owned by the ssh client, not the scheduler.
 */
type Executor struct {
	client *ssh.Client
}

func Dial(config *Config) (*Executor, error) {
	clientConfig, err := config.clientConfig()
	if err != nil {
		return nil, errors.Trace(err)
	}

	client, err := ssh.Dial("tcp", config.addr(), clientConfig)
	if err != nil {
		return nil, errors.Annotatef(err, "dial %s", config.addr())
	}
	return &Executor{client: client}, nil
}

// NewWithClient wraps an established connection, useful for tests and for
// callers that manage their own dialing.
func NewWithClient(client *ssh.Client) *Executor {
	return &Executor{client: client}
}

type sessionResult struct {
	result *types.ExecResult
	err    error
}

func (e *Executor) Execute(ctx context.Context, command string, timeout time.Duration) (*types.ExecResult, error) {
	session, err := e.client.NewSession()
	if err != nil {
		return nil, errors.Annotatef(err, "open ssh session")
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan sessionResult, 1)
	go func() {
		runErr := session.Run(command)

		result := &types.ExecResult{
			Stdout: stdout.String(),
			Stderr: stderr.String(),
		}
		if runErr != nil {
			exitErr, ok := runErr.(*ssh.ExitError)
			if !ok {
				done <- sessionResult{err: errors.Annotatef(runErr, "run %q", command)}
				return
			}
			result.ExitCode = exitErr.ExitStatus()
		}
		done <- sessionResult{result: result}
	}()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case r := <-done:
		return r.result, errors.Trace(r.err)
	case <-timeoutCh:
		// closing the session tears the remote command down
		session.Close()
		return nil, types.NewTimeoutError(command, timeout)
	case <-ctx.Done():
		session.Close()
		return nil, errors.Trace(ctx.Err())
	}
}

func (e *Executor) Close() error {
	return e.client.Close()
}
