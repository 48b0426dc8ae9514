package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warriorguo/taskgraph/types"
)

func TestFailedDependencyBlocksDependents(t *testing.T) {
	recorder := &eventRecorder{}
	opts := newSyncOptions()
	opts.EventHandler = recorder.handle

	e := newTestEngine(opts)
	backend := newFakeBackend()
	backend.failAlways("task-node")

	assert.Nil(t, e.RegisterGraph("provision", provisionGraph))

	report, err := e.Run(context.Background(), "provision", "run-blocked", backend, nil)
	assert.Nil(t, err)
	assert.False(t, report.AllSucceeded)

	// siblings of the failure still make progress
	assert.Equal(t, types.Completed, report.Tasks["apt"].Status)
	assert.Equal(t, types.Completed, report.Tasks["bun"].Status)

	node := report.Tasks["node"]
	assert.Equal(t, types.Failed, node.Status)
	assert.Equal(t, 3, node.Attempts)
	assert.Contains(t, node.Error, "exit code 1")

	// build never reaches the backend and spends no retry budget
	build := report.Tasks["build"]
	assert.Equal(t, types.Failed, build.Status)
	assert.True(t, build.Blocked())
	assert.Equal(t, 0, build.Attempts)
	assert.Equal(t, "node", build.BlockedBy)
	assert.Contains(t, build.Error, `blocked by failed dependency "node"`)
	assert.Equal(t, 0, backend.callCount("task-build"))

	assert.Equal(t, []string{"build", "node"}, report.Failed())

	blocked := recorder.ofType(types.EventTaskBlocked)
	assert.Equal(t, 1, len(blocked))
	assert.Equal(t, "build", blocked[0].Task)
}

func TestBlockedFailurePropagatesTransitively(t *testing.T) {
	e := newTestEngine(newSyncOptions())
	backend := newFakeBackend()
	backend.failAlways("task-root")

	assert.Nil(t, e.RegisterGraph("chain", func(g types.Graph) error {
		if err := g.Command("root", "echo task-root", types.WithRetries(1)); err != nil {
			return err
		}
		if err := g.Command("mid", "echo task-mid", types.WithDependencies("root")); err != nil {
			return err
		}
		return g.Command("leaf", "echo task-leaf", types.WithDependencies("mid"))
	}))

	report, err := e.Run(context.Background(), "chain", "", backend, nil)
	assert.Nil(t, err)
	assert.False(t, report.AllSucceeded)

	assert.Equal(t, 0, report.Tasks["mid"].Attempts)
	assert.Equal(t, "root", report.Tasks["mid"].BlockedBy)
	assert.Equal(t, 0, report.Tasks["leaf"].Attempts)
	assert.Equal(t, "mid", report.Tasks["leaf"].BlockedBy)

	// only the root ever executed
	assert.Equal(t, 1, backend.totalCalls())
}

func TestRetrySucceedsWithinBudget(t *testing.T) {
	recorder := &eventRecorder{}
	opts := newSyncOptions()
	opts.EventHandler = recorder.handle

	e := newTestEngine(opts)
	backend := newFakeBackend()
	backend.failTimes("task-flaky", 2)

	assert.Nil(t, e.RegisterGraph("flaky", func(g types.Graph) error {
		return g.Command("flaky", "echo task-flaky")
	}))

	report, err := e.Run(context.Background(), "flaky", "", backend, nil)
	assert.Nil(t, err)
	assert.True(t, report.AllSucceeded)

	result := report.Tasks["flaky"]
	assert.Equal(t, types.Completed, result.Status)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, backend.callCount("task-flaky"))
	// success clears the error from the earlier attempts
	assert.Equal(t, "", result.Error)

	retries := recorder.ofType(types.EventTaskRetrying)
	assert.Equal(t, 2, len(retries))
	assert.Equal(t, time.Millisecond, retries[0].Backoff)
	assert.Equal(t, 2*time.Millisecond, retries[1].Backoff)
}

func TestRetryBackoffDoubleCapped(t *testing.T) {
	recorder := &eventRecorder{}
	opts := newSyncOptions()
	opts.EventHandler = recorder.handle

	e := newTestEngine(opts)
	backend := newFakeBackend()
	backend.failAlways("task-doomed")

	assert.Nil(t, e.RegisterGraph("doomed", func(g types.Graph) error {
		return g.Command("doomed", "echo task-doomed", types.WithRetries(5))
	}))

	report, err := e.Run(context.Background(), "doomed", "", backend, nil)
	assert.Nil(t, err)
	assert.False(t, report.AllSucceeded)
	assert.Equal(t, 5, report.Tasks["doomed"].Attempts)
	assert.Equal(t, 5, backend.callCount("task-doomed"))

	// base 1ms doubling per attempt, capped at 4ms
	retries := recorder.ofType(types.EventTaskRetrying)
	assert.Equal(t, 4, len(retries))
	wantBackoff := []time.Duration{
		time.Millisecond,
		2 * time.Millisecond,
		4 * time.Millisecond,
		4 * time.Millisecond,
	}
	for i, ev := range retries {
		assert.Equal(t, wantBackoff[i], ev.Backoff, "retry %d", i)
		assert.NotNil(t, ev.Err)
	}
}

func TestCycleRejectedAtRegistration(t *testing.T) {
	e := newTestEngine(newSyncOptions())

	err := e.RegisterGraph("cyclic", func(g types.Graph) error {
		if err := g.Command("alpha", "echo task-alpha", types.WithDependencies("beta")); err != nil {
			return err
		}
		return g.Command("beta", "echo task-beta", types.WithDependencies("alpha"))
	})
	assert.NotNil(t, err)
	assert.True(t, types.IsStructural(err))
	assert.Contains(t, err.Error(), "dependency cycle")
	assert.Contains(t, err.Error(), "alpha")
	assert.Contains(t, err.Error(), "beta")

	// the graph was never registered, so nothing can run it
	_, exists := e.GetGraph("cyclic")
	assert.False(t, exists)
}

func TestSelfDependencyRejected(t *testing.T) {
	e := newTestEngine(newSyncOptions())

	err := e.RegisterGraph("selfish", func(g types.Graph) error {
		return g.Command("loop", "echo task-loop", types.WithDependencies("loop"))
	})
	assert.True(t, types.IsStructural(err))
	assert.Contains(t, err.Error(), "loop -> loop")
}

func TestUnknownDependencyRejected(t *testing.T) {
	e := newTestEngine(newSyncOptions())

	err := e.RegisterGraph("dangling", func(g types.Graph) error {
		return g.Command("web", "echo task-web", types.WithDependencies("ghost"))
	})
	assert.True(t, types.IsStructural(err))
	assert.Contains(t, err.Error(), `"web"`)
	assert.Contains(t, err.Error(), `"ghost"`)
}

func TestTimeoutIsRetriedLikeAnyFailure(t *testing.T) {
	e := newTestEngine(newSyncOptions())
	backend := newFakeBackend()
	backend.failAlways("task-slow")
	backend.timeouts["task-slow"] = true

	assert.Nil(t, e.RegisterGraph("slow", func(g types.Graph) error {
		return g.Command("slow", "echo task-slow",
			types.WithRetries(2), types.WithTimeout(time.Second))
	}))

	report, err := e.Run(context.Background(), "slow", "", backend, nil)
	assert.Nil(t, err)
	assert.False(t, report.AllSucceeded)

	result := report.Tasks["slow"]
	assert.Equal(t, types.Failed, result.Status)
	assert.Equal(t, 2, result.Attempts)
	assert.Contains(t, result.Error, "timed out after 1s")
}

func TestCallablePanicBecomesTaskFailure(t *testing.T) {
	e := newTestEngine(newSyncOptions())

	assert.Nil(t, e.RegisterGraph("panicky", func(g types.Graph) error {
		return g.Call("boom", func(c types.Context, params types.Data) (types.Data, error) {
			panic("unexpected state")
		}, types.WithRetries(1))
	}))

	report, err := e.Run(context.Background(), "panicky", "", newFakeBackend(), nil)
	assert.Nil(t, err)
	assert.False(t, report.AllSucceeded)
	assert.Contains(t, report.Tasks["boom"].Error, "panic in task boom")
}

func TestRunCancelledDuringBackoff(t *testing.T) {
	opts := newSyncOptions()
	opts.RetryBaseDelay = time.Minute
	opts.RetryMaxDelay = time.Minute

	e := newTestEngine(opts)
	backend := newFakeBackend()
	backend.failAlways("task-stuck")

	assert.Nil(t, e.RegisterGraph("stuck", func(g types.Graph) error {
		return g.Command("stuck", "echo task-stuck")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	report, err := e.Run(ctx, "stuck", "", backend, nil)
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "cancelled")
	assert.Contains(t, report.Tasks["stuck"].Error, "run cancelled during retry backoff")
	// the minute-long backoff was abandoned
	assert.True(t, time.Since(start) < 10*time.Second)
}
