package runtime

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"github.com/juju/errors"
	"github.com/warriorguo/taskgraph/types"
)

type taskOutcome struct {
	name    string
	success bool
	result  *types.TaskResult
}

/**
 * taskRuntime owns one task for the duration of a run: the attempt loop,
 * the retry budget and the backoff between attempts. It runs inside the
 * task's own concurrency slot, so a retrying task never blocks the
 * progress of unrelated tasks.
 */
type taskRuntime struct {
	engine  *engine
	task    *types.Task
	backend types.Executor
	params  types.Data
	runID   string
}

func newTaskRuntime(e *engine, runID string, task *types.Task, backend types.Executor, params types.Data) *taskRuntime {
	return &taskRuntime{
		engine:  e,
		task:    task,
		backend: backend,
		params:  params,
		runID:   runID,
	}
}

func (rt *taskRuntime) newBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = rt.engine.opts.RetryBaseDelay
	bo.MaxInterval = rt.engine.opts.RetryMaxDelay
	bo.Multiplier = 2
	// deterministic delays: base*2^n capped at MaxInterval
	bo.RandomizationFactor = 0
	// the retry budget, not elapsed time, bounds the attempts
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

func (rt *taskRuntime) run(ctx context.Context) *taskOutcome {
	task := rt.task
	result := &types.TaskResult{
		Name:         task.Name,
		Status:       types.Running,
		StartTime:    rt.engine.clock.Now(),
		Dependencies: append([]string(nil), task.Dependencies...),
	}

	bo := rt.newBackoff()
	attempt := 0
	for {
		attempt++
		result.Attempts = attempt

		rc := newRunContext(ctx, rt.engine, rt.runID, task.Name, attempt)
		rt.engine.emit(types.Event{
			Type:    types.EventTaskStarted,
			RunID:   rt.runID,
			Task:    task.Name,
			Attempt: attempt,
		})

		rc.startRecord()
		execResult, output, err := task.Action.Run(rc, rt.backend, task.Timeout, rt.params)
		rc.endRecord(execResult, err)

		if execResult != nil {
			result.ExitCode = execResult.ExitCode
			result.Stdout = execResult.Stdout
			result.Stderr = execResult.Stderr
		}
		result.Output = output

		if err == nil && execResult.Succeeded() {
			return rt.finish(result, types.Completed, nil)
		}

		if err == nil {
			err = errors.Errorf("command failed with exit code %d", execResult.ExitCode)
		}

		if attempt >= task.Retries {
			// retry budget exhausted, keep the last error verbatim
			return rt.finish(result, types.Failed, err)
		}

		delay := bo.NextBackOff()
		result.Status = types.Retrying
		rc.entry.Warnf("attempt %d/%d failed, retrying in %v: %v", attempt, task.Retries, delay, err)
		rt.engine.emit(types.Event{
			Type:    types.EventTaskRetrying,
			RunID:   rt.runID,
			Task:    task.Name,
			Attempt: attempt,
			Backoff: delay,
			Err:     err,
		})

		timer := rt.engine.clock.Timer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return rt.finish(result, types.Failed, errors.Annotatef(ctx.Err(), "run cancelled during retry backoff"))
		}
	}
}

func (rt *taskRuntime) finish(result *types.TaskResult, status types.StatusType, err error) *taskOutcome {
	result.Status = status
	result.EndTime = rt.engine.clock.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	if err != nil {
		result.Error = err.Error()
	}

	return &taskOutcome{
		name:    result.Name,
		success: status == types.Completed,
		result:  result,
	}
}
