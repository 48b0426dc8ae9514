package runtime

import (
	"sort"
	"sync"

	"github.com/juju/errors"
	"github.com/warriorguo/taskgraph/types"
	"github.com/warriorguo/taskgraph/utils"
)

var (
	_ types.Graph = &graphEntity{}
)

/**
 * graphEntity is the in-memory task registry for one graph. It is built
 * through the GraphHandler callback, validated at registration, and frozen
 * before the first run; after that it is shared read-only among the
 * concurrently running tasks.
 */
type graphEntity struct {
	mu sync.Mutex

	name   string
	frozen bool
	tasks  map[string]*types.Task
}

func newGraphEntity(name string) *graphEntity {
	return &graphEntity{
		name:  name,
		tasks: make(map[string]*types.Task),
	}
}

func (g *graphEntity) Task(task *types.Task) error {
	if task == nil || task.Name == "" {
		return errors.BadRequestf("task must have a name")
	}
	if task.Action == nil {
		return errors.BadRequestf("task %s action is nil", task.Name)
	}
	if task.Retries < 1 {
		return errors.BadRequestf("task %s retries must be >= 1", task.Name)
	}
	for _, dep := range task.Dependencies {
		if dep == task.Name {
			return types.NewCycleError([]string{task.Name, task.Name})
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.frozen {
		return errors.MethodNotAllowedf("graph %s is frozen", g.name)
	}
	if _, exists := g.tasks[task.Name]; exists {
		return types.NewDuplicateTaskError(task.Name)
	}

	task.Dependencies = utils.UniqueSlice(task.Dependencies)
	g.tasks[task.Name] = task
	return nil
}

func (g *graphEntity) Command(name, command string, options ...types.TaskOption) error {
	return g.Task(types.NewTask(name, types.Command(command), options...))
}

func (g *graphEntity) Call(name string, handler types.TaskHandler, options ...types.TaskOption) error {
	if handler == nil {
		return errors.BadRequestf("task %s handler is nil", name)
	}
	return g.Task(types.NewTask(name, types.Call(name, handler), options...))
}

func (g *graphEntity) Validate() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	return errors.Trace(validateGraph(g.tasks))
}

func (g *graphEntity) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.tasks)
}

func (g *graphEntity) TaskNames() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return utils.SortedKeys(g.tasks)
}

func (g *graphEntity) get(name string) *types.Task {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.tasks[name]
}

func (g *graphEntity) freeze() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.frozen = true
}

func (g *graphEntity) snapshot() map[string]*types.Task {
	g.mu.Lock()
	defer g.mu.Unlock()

	return utils.CloneMap(g.tasks)
}

/**
 * ready returns the tasks whose dependency set is covered by completed and
 * that are neither running nor terminal, sorted by name so scheduling and
 * logs stay reproducible.
 */
func (g *graphEntity) ready(completed, inProgress, failed map[string]bool) []*types.Task {
	g.mu.Lock()
	defer g.mu.Unlock()

	ready := make([]*types.Task, 0)
	for name, task := range g.tasks {
		if completed[name] || inProgress[name] || failed[name] {
			continue
		}

		satisfied := true
		for _, dep := range task.Dependencies {
			if !completed[dep] && !failed[dep] {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, task)
		}
	}

	sort.Slice(ready, func(i, j int) bool {
		return ready[i].Name < ready[j].Name
	})
	return ready
}
