package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/juju/errors"
)

var (
	_ error = &CycleError{}
	_ error = &UnknownDependencyError{}
	_ error = &DuplicateTaskError{}
	_ error = &TimeoutError{}
	_ error = &InternalError{}
)

/**
 * Structural errors (cycle, unknown dependency, duplicate task) are caller
 * bugs: they are detected before any task executes and are never retried.
 * TimeoutError is the distinguishable per-attempt timeout condition, kept
 * apart from a plain non-zero exit so callers can apply different policy.
 * InternalError marks scheduler invariant violations, not provisioning
 * failures.
 */

// CycleError reports a dependency cycle. Cycle holds the participants in
// order, first repeated last: A -> B -> A.
type CycleError struct {
	Cycle []string
}

func NewCycleError(cycle []string) error {
	return &CycleError{Cycle: cycle}
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Cycle, " -> "))
}

type UnknownDependencyError struct {
	Task       string
	Dependency string
}

func NewUnknownDependencyError(task, dependency string) error {
	return &UnknownDependencyError{Task: task, Dependency: dependency}
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("task %q depends on unknown task %q", e.Task, e.Dependency)
}

type DuplicateTaskError struct {
	Name string
}

func NewDuplicateTaskError(name string) error {
	return &DuplicateTaskError{Name: name}
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("task %q already registered", e.Name)
}

type TimeoutError struct {
	Command string
	Timeout time.Duration
}

func NewTimeoutError(command string, timeout time.Duration) error {
	return &TimeoutError{Command: command, Timeout: timeout}
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command timed out after %v: %s", e.Timeout, e.Command)
}

type InternalError struct {
	Reason string
}

func NewInternalErrorf(format string, args ...interface{}) error {
	return &InternalError{Reason: fmt.Sprintf(format, args...)}
}

func (e *InternalError) Error() string {
	return "scheduler internal error: " + e.Reason
}

func IsStructural(err error) bool {
	switch errors.Cause(err).(type) {
	case *CycleError, *UnknownDependencyError, *DuplicateTaskError:
		return true
	}
	return false
}

func IsTimeout(err error) bool {
	_, ok := errors.Cause(err).(*TimeoutError)
	return ok
}

func IsInternal(err error) bool {
	_, ok := errors.Cause(err).(*InternalError)
	return ok
}
