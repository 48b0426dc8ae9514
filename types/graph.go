package types

// Graph is the registry of tasks for one provisioning run. Passive data:
// the scheduler is the only component that mutates task status.
type Graph interface {
	// Task registers a fully built task.
	Task(task *Task) error
	// Command registers a shell-command task.
	Command(name, command string, options ...TaskOption) error
	// Call registers an in-process callable task.
	Call(name string, handler TaskHandler, options ...TaskOption) error
	/**
	 * Validate checks referential integrity and the absence of cycles.
	 * It fails with UnknownDependencyError or CycleError; the cycle error
	 * names at least one concrete cycle (A -> B -> A).
	 */
	Validate() error
	Len() int
	// TaskNames returns registered task names sorted.
	TaskNames() []string
}

type GraphHandler func(g Graph) error
