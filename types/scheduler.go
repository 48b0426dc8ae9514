package types

import "context"

type Scheduler interface {
	RegisterGraph(name string, handler GraphHandler) error
	GetGraph(name string) (Graph, bool)
	ListGraphNames() ([]string, error)
	/**
	 * RenderGraph returns the DOT string generated for the registered graph.
	 * The name is the same as the RegisterGraph parameter.
	 */
	RenderGraph(name string) (string, error)

	/**
	 * Run drives the named graph against the backend until every task is
	 * terminal or the run is cancelled. Synchronous from the caller's point
	 * of view. Task failures do not produce an error: they are recorded in
	 * the report with AllSucceeded=false. An error is returned only for
	 * structural graph faults, internal invariant violations, or context
	 * cancellation. An empty runID gets a generated one.
	 */
	Run(ctx context.Context, graphName, runID string, backend Executor, params Data) (*RunReport, error)

	GetRunReport(ctx context.Context, runID string) (*RunReport, error)
	ListTraceRecords(ctx context.Context, runID string) ([]*TaskTraceRecord, error)
	RenderRunReport(ctx context.Context, runID string) (string, error)

	/**
	 * Close stops accepting new runs and interrupts the launch loop of
	 * in-flight runs; already started attempts drain.
	 */
	Close(ctx context.Context) error
}
