package types

import (
	"context"
)

type StatusType int32

const (
	None      StatusType = 0
	Pending   StatusType = 1
	Running   StatusType = 2
	Retrying  StatusType = 4
	Failed    StatusType = 5
	Completed StatusType = 10
)

func (s StatusType) String() string {
	switch s {
	case None:
		return "none"
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Retrying:
		return "retrying"
	case Failed:
		return "failed"
	case Completed:
		return "completed"
	}
	return "unknown"
}

// Terminal reports whether a task in this status will never run again.
func (s StatusType) Terminal() bool {
	return s == Failed || s == Completed
}

type Context interface {
	context.Context

	GetRunID() string
	GetTaskName() string
	// GetAttempt returns the 1-based attempt number of the current execution.
	GetAttempt() int
}
