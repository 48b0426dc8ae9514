package runtime

import (
	"context"
	"fmt"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"github.com/warriorguo/taskgraph/types"
	"github.com/warriorguo/taskgraph/utils"
)

const (
	ReportPath       = "/report/"
	RecordPathPrefix = "/record/"
)

var (
	_ types.Context = &runContext{}
)

func recordSavePath(runID string) string {
	return RecordPathPrefix + runID
}

func recordKey(task string, attempt int) string {
	return fmt.Sprintf("%s#%03d", task, attempt)
}

/**
 * runContext is the execution context handed to actions: a context.Context
 * carrying run identity, plus the per-attempt trace record. Trace records
 * are persisted on a best-effort basis; a store failure is logged and never
 * affects scheduling.
 */
type runContext struct {
	context.Context

	engine *engine

	runID    string
	taskName string
	attempt  int

	record *types.TaskTraceRecord
	entry  *logrus.Entry
}

func newRunContext(ctx context.Context, e *engine, runID, taskName string, attempt int) *runContext {
	return &runContext{
		Context:  ctx,
		engine:   e,
		runID:    runID,
		taskName: taskName,
		attempt:  attempt,
		entry: e.log.WithFields(logrus.Fields{
			"run_id":  runID,
			"task":    taskName,
			"attempt": attempt,
		}),
	}
}

func (rc *runContext) GetRunID() string {
	return rc.runID
}

func (rc *runContext) GetTaskName() string {
	return rc.taskName
}

func (rc *runContext) GetAttempt() int {
	return rc.attempt
}

func (rc *runContext) startRecord() {
	rc.entry.Debug("attempt starting")

	rc.record = &types.TaskTraceRecord{
		Task:      rc.taskName,
		Attempt:   rc.attempt,
		StartTime: rc.engine.clock.Now(),
	}
}

func (rc *runContext) endRecord(result *types.ExecResult, err error) {
	rc.record.EndTime = rc.engine.clock.Now()
	if result != nil {
		rc.record.ExitCode = result.ExitCode
		rc.record.Stdout = result.Stdout
		rc.record.Stderr = result.Stderr
	}
	if err != nil {
		rc.record.Error = errors.ErrorStack(err)
	}
	if saveErr := rc.saveRecord(); saveErr != nil {
		rc.entry.Errorf("failed to save trace record: %v", saveErr)
	}
}

func (rc *runContext) saveRecord() error {
	b, err := utils.Serialize(rc.record)
	if err != nil {
		return errors.Trace(err)
	}
	key := recordKey(rc.taskName, rc.attempt)
	return errors.Trace(rc.engine.store.Set(rc.Context, recordSavePath(rc.runID), key, b))
}
