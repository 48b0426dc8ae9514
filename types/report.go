package types

import (
	"sort"
	"time"
)

/**
 * TaskResult is the terminal record of one task in a run. A blocked task
 * (dependency failed) carries Attempts == 0 and the blocking dependency in
 * BlockedBy, so a reader can tell "this failed" from "this never ran".
 */
type TaskResult struct {
	Name         string
	Status       StatusType
	Attempts     int
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
	ExitCode     int
	Stdout       string
	Stderr       string
	Output       Data   `json:",omitempty"`
	Error        string `json:",omitempty"`
	BlockedBy    string `json:",omitempty"`
	Dependencies []string
}

func (r *TaskResult) Blocked() bool {
	return r.BlockedBy != ""
}

// RunReport is the scheduler output: every task with its final status plus
// the overall verdict. Read-only once returned.
type RunReport struct {
	RunID        string
	GraphName    string
	StartTime    time.Time
	EndTime      time.Time
	AllSucceeded bool
	Tasks        map[string]*TaskResult
}

func NewRunReport(runID, graphName string) *RunReport {
	return &RunReport{
		RunID:     runID,
		GraphName: graphName,
		Tasks:     make(map[string]*TaskResult),
	}
}

func (r *RunReport) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Failed returns the names of failed tasks, blocked ones included, sorted.
func (r *RunReport) Failed() []string {
	failed := make([]string, 0)
	for name, tr := range r.Tasks {
		if tr.Status == Failed {
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)
	return failed
}

/**
 * TaskTraceRecord captures one execution attempt for post-mortem
 * inspection. Records are persisted per attempt, so a retried task leaves
 * one record per try.
 */
type TaskTraceRecord struct {
	Task      string
	Attempt   int
	StartTime time.Time
	EndTime   time.Time
	ExitCode  int
	Stdout    string `json:",omitempty"`
	Stderr    string `json:",omitempty"`
	Error     string `json:",omitempty"`
}
