package types

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/mcuadros/go-defaults"
)

// TaskHandler is an in-process action body. It receives the run parameters
// and returns the data to record as the task output.
type TaskHandler func(ctx Context, params Data) (Data, error)

/**
 * Action is the unit the scheduler invokes for a task. Both remote shell
 * commands and in-process callables implement it, so the scheduler never
 * branches on the concrete kind.
 */
type Action interface {
	Describe() string
	Run(ctx Context, backend Executor, timeout time.Duration, params Data) (*ExecResult, Data, error)
}

type Task struct {
	Name         string
	Action       Action
	Dependencies []string
	Description  string

	/**
	 * Retries is the maximum number of attempts, including the first one.
	 */
	Retries int `default:"3"`
	/**
	 * Timeout is the wall-clock budget of a single attempt.
	 */
	Timeout time.Duration `default:"10m"`
}

func NewTask(name string, action Action, options ...TaskOption) *Task {
	t := &Task{Name: name, Action: action}
	defaults.SetDefaults(t)
	for _, opt := range options {
		opt(t)
	}
	return t
}

type TaskOption func(*Task)

func WithDependencies(deps ...string) TaskOption {
	return func(t *Task) {
		t.Dependencies = append(t.Dependencies, deps...)
	}
}

func WithRetries(retries int) TaskOption {
	return func(t *Task) {
		t.Retries = retries
	}
}

func WithTimeout(timeout time.Duration) TaskOption {
	return func(t *Task) {
		t.Timeout = timeout
	}
}

func WithDescription(description string) TaskOption {
	return func(t *Task) {
		t.Description = description
	}
}

var (
	_ Action = &CommandAction{}
	_ Action = &CallableAction{}
)

/**
 * CommandAction runs a shell command on the target machine through the
 * Executor backend. Env, WorkDir and Sudo compose the same wrapper the
 * provisioning scripts use: bash -lc with set -euo pipefail.
 */
type CommandAction struct {
	Command string
	Env     map[string]string
	WorkDir string
	Sudo    bool
}

func Command(command string) *CommandAction {
	return &CommandAction{Command: command}
}

func (a *CommandAction) Describe() string {
	return a.Command
}

func (a *CommandAction) shell() string {
	parts := make([]string, 0, 3)
	if len(a.Env) > 0 {
		keys := make([]string, 0, len(a.Env))
		for k := range a.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		exports := make([]string, 0, len(keys))
		for _, k := range keys {
			exports = append(exports, fmt.Sprintf("export %s=%q;", k, a.Env[k]))
		}
		parts = append(parts, strings.Join(exports, " "))
	}
	if a.WorkDir != "" {
		parts = append(parts, fmt.Sprintf("cd %q", a.WorkDir))
	}
	parts = append(parts, a.Command)
	shell := "set -euo pipefail; " + strings.Join(parts, " && ")

	quoted := "'" + strings.ReplaceAll(shell, "'", `'\''`) + "'"
	line := "/bin/bash -lc " + quoted
	if a.Sudo {
		line = "sudo " + line
	}
	return line
}

func (a *CommandAction) Run(ctx Context, backend Executor, timeout time.Duration, params Data) (*ExecResult, Data, error) {
	if backend == nil {
		return nil, nil, errors.BadRequestf("task %s: no executor backend", ctx.GetTaskName())
	}
	result, err := backend.Execute(ctx, a.shell(), timeout)
	return result, nil, errors.Trace(err)
}

/**
 * CallableAction runs an in-process handler under the same timeout contract
 * as a remote command. The handler runs in its own goroutine; exceeding the
 * timeout yields a *TimeoutError while the handler is left to drain.
 */
type CallableAction struct {
	Handler TaskHandler
	Label   string
}

func Call(label string, handler TaskHandler) *CallableAction {
	return &CallableAction{Handler: handler, Label: label}
}

func (a *CallableAction) Describe() string {
	if a.Label != "" {
		return a.Label
	}
	return "callable"
}

type callableResult struct {
	output Data
	err    error
}

func (a *CallableAction) Run(ctx Context, backend Executor, timeout time.Duration, params Data) (*ExecResult, Data, error) {
	if a.Handler == nil {
		return nil, nil, errors.BadRequestf("task %s: callable handler is nil", ctx.GetTaskName())
	}

	done := make(chan callableResult, 1)
	go func() {
		output, err := runRecovered(a.Handler, ctx, params)
		done <- callableResult{output: output, err: err}
	}()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case r := <-done:
		if r.err != nil {
			return nil, nil, errors.Trace(r.err)
		}
		return &ExecResult{ExitCode: 0}, r.output, nil
	case <-timeoutCh:
		return nil, nil, NewTimeoutError(a.Describe(), timeout)
	case <-ctx.Done():
		return nil, nil, errors.Trace(ctx.Err())
	}
}

func runRecovered(handler TaskHandler, ctx Context, params Data) (output Data, retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = errors.Errorf("panic in task %s: %v", ctx.GetTaskName(), r)
		}
	}()
	return handler(ctx, params)
}
