package localexec

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/juju/errors"
	"github.com/warriorguo/taskgraph/types"
)

const (
	// DefaultMaxCapture bounds the output retained for the run report.
	// Streaming (if configured) is unaffected.
	DefaultMaxCapture = 1 << 20
)

var (
	_ types.Executor = &Executor{}
)

/**
 * Executor runs commands as local subprocesses through /bin/sh. It exists
 * for testing and for provisioning the machine the scheduler itself runs
 * on. Safe for concurrent use: every Execute spawns its own process.
 */
type Executor struct {
	// Shell defaults to /bin/sh.
	Shell string
	// MaxCapture limits captured stdout/stderr; 0 means DefaultMaxCapture.
	MaxCapture int
}

func New() *Executor {
	return &Executor{}
}

func (e *Executor) Execute(ctx context.Context, command string, timeout time.Duration) (*types.ExecResult, error) {
	shell := e.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, shell, "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return nil, types.NewTimeoutError(command, timeout)
	}
	if ctx.Err() != nil {
		return nil, errors.Trace(ctx.Err())
	}

	result := &types.ExecResult{
		Stdout: e.capture(stdout.Bytes()),
		Stderr: e.capture(stderr.Bytes()),
	}
	result.Truncated = result.Stdout != stdout.String() || result.Stderr != stderr.String()

	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			// the process never ran: treat as a backend failure
			return nil, errors.Annotatef(err, "spawn %q", command)
		}
		result.ExitCode = exitErr.ExitCode()
	}
	return result, nil
}

func (e *Executor) capture(b []byte) string {
	limit := e.MaxCapture
	if limit <= 0 {
		limit = DefaultMaxCapture
	}
	if len(b) > limit {
		b = b[:limit]
	}
	return string(b)
}
