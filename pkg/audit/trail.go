package audit

import (
	"context"

	"github.com/runbookd/runbookd/pkg/models"
)

// Trail combines the persisted audit log with the in-memory collector so a
// single recorder feeds both. Collector updates happen even when the write
// fails; the caller logs the error and the transition stands.
type Trail struct {
	Log     *Logger
	Metrics *Collector
}

// NewTrail creates a trail over the given logger and collector.
func NewTrail(log *Logger, metrics *Collector) *Trail {
	return &Trail{Log: log, Metrics: metrics}
}

func (t *Trail) RecordRun(ctx context.Context, run *models.Run) error {
	if t.Metrics != nil && run.Status.Terminal() {
		t.Metrics.ObserveRunFinished(run.DefinitionName, run.Status)
	}
	if t.Log == nil {
		return nil
	}

	return t.Log.RecordRun(ctx, run)
}

func (t *Trail) RecordStep(ctx context.Context, run *models.Run, result models.StepResult) error {
	if t.Metrics != nil {
		t.Metrics.ObserveStep(run.DefinitionName, result.Status)
	}
	if t.Log == nil {
		return nil
	}

	return t.Log.RecordStep(ctx, run, result)
}

func (t *Trail) RecordApproval(ctx context.Context, run *models.Run, approval models.ApprovalRecord, byTimeout bool) error {
	if t.Metrics != nil {
		t.Metrics.ObserveApproval(run.DefinitionName, byTimeout)
	}
	if t.Log == nil {
		return nil
	}

	return t.Log.RecordApproval(ctx, run, approval, byTimeout)
}
