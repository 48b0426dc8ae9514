package runtime

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/warriorguo/taskgraph/types"
	"github.com/warriorguo/taskgraph/utils"
)

func newGraphRenderer() *graphRenderer {
	return &graphRenderer{sb: &strings.Builder{}}
}

// graphRenderer emits a GraphViz DOT document of the dependency graph,
// optionally colored by the task results of a finished run.
type graphRenderer struct {
	sb *strings.Builder
}

func (d *graphRenderer) renderTasks(graphName string, tasks map[string]*types.Task) string {
	d.write("digraph D {")
	for _, name := range utils.SortedKeys(tasks) {
		d.drawTask(name, tasks[name].Description, nil)
	}
	for _, name := range utils.SortedKeys(tasks) {
		d.drawEdges(name, tasks[name].Dependencies)
	}
	d.write("label=%s", quoteString(graphName))
	d.write("}")
	return d.sb.String()
}

func (d *graphRenderer) renderReport(report *types.RunReport) string {
	d.write("digraph D {")
	for _, name := range utils.SortedKeys(report.Tasks) {
		result := report.Tasks[name]
		d.drawTask(name, "", result)
	}
	for _, name := range utils.SortedKeys(report.Tasks) {
		d.drawEdges(name, report.Tasks[name].Dependencies)
	}
	d.write("label=%s", quoteString(report.GraphName+" / "+report.RunID))
	d.write("}")
	return d.sb.String()
}

func (d *graphRenderer) drawTask(name, description string, result *types.TaskResult) {
	label := name
	if description != "" {
		label = fmt.Sprintf("%s\\n%s", name, description)
	}
	d.write("%s [label=%s shape=\"record\"%s]", idString(name), quoteString(label), calcAttr(result))
}

func (d *graphRenderer) drawEdges(name string, deps []string) {
	for _, dep := range deps {
		d.write("%s -> %s", idString(dep), idString(name))
	}
}

func (d *graphRenderer) write(format string, s ...any) {
	d.sb.WriteString(fmt.Sprintf(format+"\n", s...))
}

func calcAttr(result *types.TaskResult) string {
	if result == nil {
		return ""
	}

	color := ""
	switch result.Status {
	case types.Running, types.Retrying:
		color = "yellow"
	case types.Failed:
		color = "red"
	case types.Completed:
		color = "green"
	default:
		color = "white"
	}
	return fmt.Sprintf(" style=\"filled\" color=\"%s\" comment=\"%s\"", color, packToComment(result))
}

func packToComment(r *types.TaskResult) string {
	s, _ := json.Marshal(r)
	return formatNL(addSlashes(string(s)))
}

var (
	slashesToken = []string{"\\", "\"", "'", " "}
)

func addSlashes(s string) string {
	for _, token := range slashesToken {
		s = strings.ReplaceAll(s, token, "\\"+token)
	}
	return s
}

func formatNL(s string) string {
	return strings.ReplaceAll(s, "\n", "\\n")
}

func quoteString(s string) string {
	return "\"" + strings.ReplaceAll(s, "\"", "\\\"") + "\""
}

var idleChars = []string{" ", "'", "\"", "(", ")", "*", "&", "^", "%", "$", "#", "@", "!", "?", "<", ">", "[", "]", "{", "}", ".", "-"}

func idString(s string) string {
	for _, ch := range idleChars {
		s = strings.ReplaceAll(s, ch, "_")
	}
	return s
}
