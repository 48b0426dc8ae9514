package runtime

import (
	"context"
	"fmt"

	"github.com/gammazero/workerpool"
	"github.com/juju/errors"
	"github.com/warriorguo/taskgraph/types"
)

/**
 * executeGraph drives one run to resolution. The three disjoint name sets
 * completed/inProgress/failed are only touched from this goroutine; task
 * runtimes communicate finished attempts back over doneCh, so the loop
 * blocks on completions instead of polling.
 */
func (e *engine) executeGraph(ctx context.Context, g *graphEntity, runID string, backend types.Executor, params types.Data) (*types.RunReport, error) {
	report := types.NewRunReport(runID, g.name)
	report.StartTime = e.clock.Now()

	total := g.Len()
	completed := make(map[string]bool, total)
	inProgress := make(map[string]bool)
	failed := make(map[string]bool)

	doneCh := make(chan *taskOutcome, total)

	/**
	 * Tasks observe runCtx, which dies with the caller's context or with
	 * the engine on Close. Cancelling it is what lets the worker pool
	 * drain promptly on shutdown.
	 */
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	go func() {
		select {
		case <-e.ctx.Done():
			cancelRun()
		case <-runCtx.Done():
		}
	}()

	var wp *workerpool.WorkerPool
	if e.opts.TaskRunAsync {
		wp = workerpool.New(e.opts.MaxTaskConcurrency)
		defer wp.Stop()
	}

	entry := e.log.WithField("run_id", runID)
	entry.Infof("starting run of graph %s: %d tasks, concurrency %d", g.name, total, e.opts.MaxTaskConcurrency)

	for len(completed)+len(failed) < total {
		ready := g.ready(completed, inProgress, failed)

		// fast-fail: a task whose dependency failed never executes and
		// never consumes its retry budget
		blockedAny := false
		launchable := ready[:0]
		for _, task := range ready {
			if dep := firstFailedDep(task, failed); dep != "" {
				failed[task.Name] = true
				report.Tasks[task.Name] = e.blockedResult(task, dep)
				blockedAny = true

				entry.Warnf("task %s blocked by failed dependency %s", task.Name, dep)
				e.emit(types.Event{
					Type:  types.EventTaskBlocked,
					RunID: runID,
					Task:  task.Name,
					Err:   errors.Errorf("blocked by failed dependency %q", dep),
				})
				continue
			}
			launchable = append(launchable, task)
		}
		if blockedAny {
			// new failures may block further dependents, re-evaluate
			continue
		}

		if !e.opts.TaskRunAsync {
			// debug mode: one ready task at a time, in name order
			if len(launchable) > 0 {
				task := launchable[0]
				inProgress[task.Name] = true
				outcome := newTaskRuntime(e, runID, task, backend, params).run(runCtx)
				e.applyOutcome(report, outcome, completed, inProgress, failed)
				continue
			}
		} else {
			for _, task := range launchable {
				if len(inProgress) >= e.opts.MaxTaskConcurrency {
					break
				}
				inProgress[task.Name] = true
				rt := newTaskRuntime(e, runID, task, backend, params)
				wp.Submit(func() {
					doneCh <- rt.run(runCtx)
				})
			}

			if len(inProgress) > 0 {
				select {
				case outcome := <-doneCh:
					e.applyOutcome(report, outcome, completed, inProgress, failed)
				case <-runCtx.Done():
					report.EndTime = e.clock.Now()
					return report, e.cancellation(ctx, runID)
				}
				continue
			}
		}

		/**
		 * Nothing ready, nothing in flight, tasks still pending: the
		 * graph mutated concurrently or validation was skipped. This is
		 * a scheduler bug, not a provisioning failure.
		 */
		report.EndTime = e.clock.Now()
		return report, types.NewInternalErrorf(
			"deadlock in run %s: %d of %d tasks terminal, none ready or in progress",
			runID, len(completed)+len(failed), total)
	}

	report.EndTime = e.clock.Now()
	if runCtx.Err() != nil {
		// every task reached a terminal state, but only because they were
		// cut short: report the cancellation, not a regular finish
		return report, e.cancellation(ctx, runID)
	}
	report.AllSucceeded = len(failed) == 0

	if report.AllSucceeded {
		entry.Infof("run finished: all %d tasks completed in %v", total, report.Duration())
	} else {
		entry.Errorf("run finished with failures: %v", report.Failed())
	}
	return report, nil
}

func (e *engine) cancellation(ctx context.Context, runID string) error {
	if e.ctx.Err() != nil && ctx.Err() == nil {
		return errors.Annotatef(e.ctx.Err(), "scheduler closed during run %s", runID)
	}
	return errors.Annotatef(ctx.Err(), "run %s cancelled", runID)
}

func (e *engine) applyOutcome(report *types.RunReport, outcome *taskOutcome,
	completed, inProgress, failed map[string]bool) {
	delete(inProgress, outcome.name)
	report.Tasks[outcome.name] = outcome.result

	event := types.Event{
		RunID:   report.RunID,
		Task:    outcome.name,
		Attempt: outcome.result.Attempts,
		Elapsed: outcome.result.Duration,
	}
	if outcome.success {
		completed[outcome.name] = true
		event.Type = types.EventTaskCompleted
		e.log.WithField("run_id", report.RunID).Infof("task %s completed in %v (attempt %d)",
			outcome.name, outcome.result.Duration, outcome.result.Attempts)
	} else {
		failed[outcome.name] = true
		event.Type = types.EventTaskFailed
		event.Err = errors.New(outcome.result.Error)
		e.log.WithField("run_id", report.RunID).Errorf("task %s failed after %d attempts: %s",
			outcome.name, outcome.result.Attempts, outcome.result.Error)
	}
	e.emit(event)
}

func (e *engine) blockedResult(task *types.Task, dep string) *types.TaskResult {
	now := e.clock.Now()
	return &types.TaskResult{
		Name:         task.Name,
		Status:       types.Failed,
		Attempts:     0,
		StartTime:    now,
		EndTime:      now,
		BlockedBy:    dep,
		Error:        fmt.Sprintf("blocked by failed dependency %q", dep),
		Dependencies: append([]string(nil), task.Dependencies...),
	}
}

// firstFailedDep returns the lexicographically first failed dependency so
// blocked-task reporting is deterministic.
func firstFailedDep(task *types.Task, failed map[string]bool) string {
	found := ""
	for _, dep := range task.Dependencies {
		if failed[dep] && (found == "" || dep < found) {
			found = dep
		}
	}
	return found
}
