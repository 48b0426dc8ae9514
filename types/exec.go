package types

import (
	"context"
	"time"
)

/**
 * Executor is the remote command execution backend the scheduler drives.
 * Implementations run against one target machine (SSH session, HTTP exec
 * endpoint, local subprocess) and must be safe for concurrent calls from
 * independent tasks.
 *
 * Contract:
 *   - non-zero exit code: return the ExecResult with the code and a nil error
 *   - per-attempt timeout exceeded: return a *TimeoutError
 *   - transport/connectivity failure: return any other error
 */
type Executor interface {
	Execute(ctx context.Context, command string, timeout time.Duration) (*ExecResult, error)
}

type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	/**
	 * Truncated indicates the captured output was elided by the backend.
	 * The streamed copy (if any) is complete, the report copy is not.
	 */
	Truncated bool
}

func (r *ExecResult) Succeeded() bool {
	return r != nil && r.ExitCode == 0
}

type EventType int32

const (
	EventTaskStarted   EventType = 1
	EventTaskCompleted EventType = 2
	EventTaskRetrying  EventType = 3
	EventTaskFailed    EventType = 4
	EventTaskBlocked   EventType = 5
)

func (e EventType) String() string {
	switch e {
	case EventTaskStarted:
		return "started"
	case EventTaskCompleted:
		return "completed"
	case EventTaskRetrying:
		return "retrying"
	case EventTaskFailed:
		return "failed"
	case EventTaskBlocked:
		return "blocked"
	}
	return "unknown"
}

type Event struct {
	Type    EventType
	RunID   string
	Task    string
	Attempt int
	Elapsed time.Duration
	Backoff time.Duration
	Err     error
}

/**
 * EventHandler receives per-event notifications ("task X starting",
 * "task X failed, retrying"). The scheduler shields itself from the
 * handler: a panicking or slow handler never affects scheduling.
 */
type EventHandler func(event Event)
