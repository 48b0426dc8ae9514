package runtime

import (
	"context"

	"github.com/juju/errors"
	"github.com/warriorguo/taskgraph/types"
	"github.com/warriorguo/taskgraph/utils"
)

func (e *engine) saveReport(ctx context.Context, report *types.RunReport) error {
	b, err := utils.Serialize(report)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(e.store.Set(ctx, ReportPath, report.RunID, b))
}

func (e *engine) loadReport(ctx context.Context, runID string) (*types.RunReport, error) {
	b, err := e.store.Get(ctx, ReportPath, runID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if b == nil {
		return nil, errors.NotFoundf("run report: %s", runID)
	}

	report := &types.RunReport{}
	if err := utils.Unserialize(b, report); err != nil {
		return nil, errors.Trace(err)
	}
	return report, nil
}

/**
 * purgeRun drops any report and trace records left by a previous run that
 * reused the same run ID, so the persisted trail always describes the
 * latest run.
 */
func (e *engine) purgeRun(ctx context.Context, runID string) error {
	recordPath := recordSavePath(runID)
	staleKeys := make([]string, 0)
	if err := e.store.List(ctx, recordPath, func(key string) bool {
		staleKeys = append(staleKeys, key)
		return true
	}); err != nil {
		return errors.Trace(err)
	}
	for _, key := range staleKeys {
		if err := e.store.Remove(ctx, recordPath, key); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(e.store.Remove(ctx, ReportPath, runID))
}

// loadTraceRecords returns every persisted attempt of a run, ordered by
// task name then attempt number.
func (e *engine) loadTraceRecords(ctx context.Context, runID string) ([]*types.TaskTraceRecord, error) {
	records := make([]*types.TaskTraceRecord, 0)
	recordPath := recordSavePath(runID)
	err := e.store.List(ctx, recordPath, func(key string) bool {
		b, err := e.store.Get(ctx, recordPath, key)
		if err != nil {
			e.log.Errorf("load %s %s from store failed: %v", recordPath, key, err)
			return true
		}
		record := &types.TaskTraceRecord{}
		if err := utils.Unserialize(b, record); err != nil {
			e.log.Errorf("unserialize %s %s from store:%s failed: %v", recordPath, key, string(b), err)
			return true
		}
		records = append(records, record)
		return true
	})
	return records, errors.Trace(err)
}
