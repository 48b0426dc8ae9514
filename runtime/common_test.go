package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/warriorguo/taskgraph/store/mem"
	"github.com/warriorguo/taskgraph/types"
)

func newSyncOptions() *types.RunOptions {
	opts := types.NewRunOptions()
	opts.MemStore = true
	opts.TaskRunAsync = false
	opts.RetryBaseDelay = time.Millisecond
	opts.RetryMaxDelay = 4 * time.Millisecond
	return opts
}

func newAsyncOptions(concurrency int) *types.RunOptions {
	opts := newSyncOptions()
	opts.TaskRunAsync = true
	opts.MaxTaskConcurrency = concurrency
	return opts
}

func newTestEngine(opts *types.RunOptions) *engine {
	return newEngine(mem.NewMemStore(), opts)
}

/**
 * fakeBackend matches commands by substring (the scheduler hands it the
 * full bash -lc wrapper) and records start order, completion order and the
 * peak number of concurrent calls.
 */
type fakeBackend struct {
	mu sync.Mutex

	delay time.Duration

	calls         []string
	completions   []string
	concurrent    int
	maxConcurrent int

	// needle -> remaining failures before the command starts succeeding
	failures map[string]int
	// needle -> fail with a timeout instead of exit code 1
	timeouts map[string]bool
	// needle -> needles that must have completed before it starts
	mustFollow map[string][]string
	violations []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		failures:   make(map[string]int),
		timeouts:   make(map[string]bool),
		mustFollow: make(map[string][]string),
	}
}

func (b *fakeBackend) failTimes(needle string, times int) {
	b.failures[needle] = times
}

func (b *fakeBackend) failAlways(needle string) {
	b.failures[needle] = 1 << 30
}

func (b *fakeBackend) requireOrder(needle string, after ...string) {
	b.mustFollow[needle] = after
}

func (b *fakeBackend) Execute(ctx context.Context, command string, timeout time.Duration) (*types.ExecResult, error) {
	b.mu.Lock()
	b.calls = append(b.calls, command)
	b.concurrent++
	if b.concurrent > b.maxConcurrent {
		b.maxConcurrent = b.concurrent
	}
	for needle, after := range b.mustFollow {
		if !strings.Contains(command, needle) {
			continue
		}
		for _, dep := range after {
			if !b.completedLocked(dep) {
				b.violations = append(b.violations,
					fmt.Sprintf("%s started before %s completed", needle, dep))
			}
		}
	}
	delay := b.delay
	b.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			b.release(command)
			return nil, errors.Trace(ctx.Err())
		}
	}

	b.mu.Lock()
	var failNeedle string
	for needle, remaining := range b.failures {
		if strings.Contains(command, needle) && remaining > 0 {
			b.failures[needle] = remaining - 1
			failNeedle = needle
			break
		}
	}
	b.mu.Unlock()
	b.release(command)

	if failNeedle != "" {
		if b.timeouts[failNeedle] {
			return nil, types.NewTimeoutError(command, timeout)
		}
		return &types.ExecResult{ExitCode: 1, Stderr: "boom"}, nil
	}
	return &types.ExecResult{ExitCode: 0, Stdout: "ok"}, nil
}

func (b *fakeBackend) release(command string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.concurrent--
	b.completions = append(b.completions, command)
}

func (b *fakeBackend) completedLocked(needle string) bool {
	for _, c := range b.completions {
		if strings.Contains(c, needle) {
			return true
		}
	}
	return false
}

func (b *fakeBackend) callCount(needle string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := 0
	for _, c := range b.calls {
		if strings.Contains(c, needle) {
			count++
		}
	}
	return count
}

func (b *fakeBackend) totalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

// eventRecorder is a thread-safe EventHandler sink.
type eventRecorder struct {
	mu     sync.Mutex
	events []types.Event
}

func (r *eventRecorder) handle(event types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) ofType(t types.EventType) []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := make([]types.Event, 0)
	for _, ev := range r.events {
		if ev.Type == t {
			matched = append(matched, ev)
		}
	}
	return matched
}

// provisionGraph is the canonical fixture: apt alone first, node and bun
// in parallel, build last.
func provisionGraph(g types.Graph) error {
	if err := g.Command("apt", "echo task-apt"); err != nil {
		return errors.Trace(err)
	}
	if err := g.Command("node", "echo task-node", types.WithDependencies("apt")); err != nil {
		return errors.Trace(err)
	}
	if err := g.Command("bun", "echo task-bun", types.WithDependencies("apt")); err != nil {
		return errors.Trace(err)
	}
	if err := g.Command("build", "echo task-build", types.WithDependencies("node", "bun")); err != nil {
		return errors.Trace(err)
	}
	return nil
}
