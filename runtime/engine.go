package runtime

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"github.com/warriorguo/taskgraph/store"
	"github.com/warriorguo/taskgraph/types"
)

func NewScheduler(store store.Store, opts *types.RunOptions) types.Scheduler {
	return newEngine(store, opts)
}

type engine struct {
	ctx    context.Context
	cancel context.CancelFunc

	opts  *types.RunOptions
	store store.Store
	log   *logrus.Logger
	clock clock.Clock

	mu      sync.Mutex
	running bool
	graphs  map[string]*graphEntity

	runWG sync.WaitGroup
}

func newEngine(s store.Store, opts *types.RunOptions) *engine {
	e := &engine{
		opts:   opts,
		store:  s,
		log:    opts.Logger,
		clock:  opts.Clock,
		graphs: make(map[string]*graphEntity),
	}
	if e.log == nil {
		e.log = logrus.StandardLogger()
	}
	if e.clock == nil {
		e.clock = clock.New()
	}
	if e.opts.MaxTaskConcurrency < 1 {
		e.opts.MaxTaskConcurrency = 1
	}
	e.ctx, e.cancel = context.WithCancel(opts.Ctx)
	e.running = true
	return e
}

func (e *engine) RegisterGraph(name string, handler types.GraphHandler) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return errors.MethodNotAllowedf("scheduler is closed")
	}
	if _, exists := e.graphs[name]; exists {
		e.mu.Unlock()
		return errors.AlreadyExistsf("graph: %s", name)
	}
	e.mu.Unlock()

	g := newGraphEntity(name)
	if err := handler(g); err != nil {
		return errors.Trace(err)
	}
	// structural errors surface here, before anything can execute
	if err := g.Validate(); err != nil {
		return errors.Trace(err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.graphs[name]; exists {
		return errors.AlreadyExistsf("graph: %s", name)
	}
	e.graphs[name] = g
	return nil
}

func (e *engine) GetGraph(name string) (types.Graph, bool) {
	g, exists := e.getGraph(name)
	return g, exists
}

func (e *engine) getGraph(name string) (*graphEntity, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, exists := e.graphs[name]
	return g, exists
}

func (e *engine) ListGraphNames() ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	names := make([]string, 0, len(e.graphs))
	for name := range e.graphs {
		names = append(names, name)
	}
	return names, nil
}

func (e *engine) Run(ctx context.Context, graphName, runID string, backend types.Executor, params types.Data) (*types.RunReport, error) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil, errors.MethodNotAllowedf("scheduler is closed")
	}
	e.runWG.Add(1)
	e.mu.Unlock()
	defer e.runWG.Done()

	g, exists := e.getGraph(graphName)
	if !exists {
		return nil, errors.NotFoundf("graph: %s", graphName)
	}

	g.freeze()
	if err := g.Validate(); err != nil {
		return nil, errors.Trace(err)
	}

	if runID == "" {
		runID = uuid.NewString()
	}
	if purgeErr := e.purgeRun(ctx, runID); purgeErr != nil {
		e.log.WithField("run_id", runID).Warnf("failed to purge stale run data: %v", purgeErr)
	}

	report, err := e.executeGraph(ctx, g, runID, backend, params)
	if err != nil {
		return report, errors.Trace(err)
	}
	if saveErr := e.saveReport(ctx, report); saveErr != nil {
		e.log.WithField("run_id", runID).Errorf("failed to persist run report: %v", saveErr)
	}
	return report, nil
}

func (e *engine) GetRunReport(ctx context.Context, runID string) (*types.RunReport, error) {
	return e.loadReport(ctx, runID)
}

func (e *engine) ListTraceRecords(ctx context.Context, runID string) ([]*types.TaskTraceRecord, error) {
	return e.loadTraceRecords(ctx, runID)
}

func (e *engine) RenderGraph(name string) (string, error) {
	g, exists := e.getGraph(name)
	if !exists {
		return "", errors.NotFoundf("graph: %s", name)
	}
	return newGraphRenderer().renderTasks(name, g.snapshot()), nil
}

func (e *engine) RenderRunReport(ctx context.Context, runID string) (string, error) {
	report, err := e.loadReport(ctx, runID)
	if err != nil {
		return "", errors.Trace(err)
	}
	return newGraphRenderer().renderReport(report), nil
}

func (e *engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.mu.Unlock()

	e.cancel()

	done := make(chan struct{})
	go func() {
		e.runWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Annotatef(ctx.Err(), "waiting for in-flight runs")
	}
}

/**
 * emit delivers an event to the optional observer. Observability must
 * never affect scheduling correctness, so handler panics are swallowed.
 */
func (e *engine) emit(event types.Event) {
	handler := e.opts.EventHandler
	if handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.Errorf("event handler panicked on %v/%s: %v", event.Type, event.Task, r)
		}
	}()
	handler(event)
}
