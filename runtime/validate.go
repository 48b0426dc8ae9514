package runtime

import (
	"github.com/juju/errors"
	"github.com/warriorguo/taskgraph/types"
	"github.com/warriorguo/taskgraph/utils"
)

const (
	colorWhite = 0 // unvisited
	colorGray  = 1 // on the recursion stack
	colorBlack = 2 // fully explored
)

/**
 * validateGraph checks that every declared dependency exists and that the
 * dependency relation forms a DAG. Cycles are found with a DFS over an
 * explicit recursion stack so the error can name one concrete cycle,
 * e.g. A -> B -> A.
 */
func validateGraph(tasks map[string]*types.Task) error {
	names := utils.SortedKeys(tasks)

	for _, name := range names {
		for _, dep := range tasks[name].Dependencies {
			if _, exists := tasks[dep]; !exists {
				return types.NewUnknownDependencyError(name, dep)
			}
		}
	}

	colors := make(map[string]int, len(tasks))
	stack := make([]string, 0, len(tasks))

	var visit func(name string) error
	visit = func(name string) error {
		colors[name] = colorGray
		stack = append(stack, name)

		for _, dep := range tasks[name].Dependencies {
			switch colors[dep] {
			case colorWhite:
				if err := visit(dep); err != nil {
					return errors.Trace(err)
				}
			case colorGray:
				return types.NewCycleError(cutCycle(stack, dep))
			}
		}

		stack = stack[:len(stack)-1]
		colors[name] = colorBlack
		return nil
	}

	for _, name := range names {
		if colors[name] == colorWhite {
			if err := visit(name); err != nil {
				return errors.Trace(err)
			}
		}
	}
	return nil
}

// cutCycle trims the recursion stack to the participants of the detected
// cycle and closes it by repeating the entry vertex.
func cutCycle(stack []string, entry string) []string {
	start := 0
	for i, name := range stack {
		if name == entry {
			start = i
			break
		}
	}
	cycle := make([]string, 0, len(stack)-start+1)
	cycle = append(cycle, stack[start:]...)
	return append(cycle, entry)
}
