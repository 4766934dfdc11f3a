package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runbookd/runbookd/pkg/models"
	"github.com/runbookd/runbookd/pkg/persistence/memory"
)

func TestTrail_FeedsLogAndMetrics(t *testing.T) {
	logger := NewLogger(memory.NewStore(), nil)
	metrics := NewCollector()
	trail := NewTrail(logger, metrics)

	run := testRun("run-1")
	require.NoError(t, trail.RecordRun(t.Context(), run))

	// Non-terminal snapshots are persisted but not counted.
	assert.Equal(t, Counters{}, metrics.Global())

	require.NoError(t, trail.RecordStep(t.Context(), run, models.StepResult{
		StepNumber: 1,
		Status:     models.StepStatusCompleted,
		Timestamp:  time.Now().UTC(),
	}))

	require.NoError(t, trail.RecordApproval(t.Context(), run, models.ApprovalRecord{
		StepNumber: 2,
		Actor:      "alice",
		Timestamp:  time.Now().UTC(),
	}, false))

	run.Status = models.RunStatusCompleted
	require.NoError(t, trail.RecordRun(t.Context(), run))

	global := metrics.Global()
	assert.Equal(t, uint64(1), global.RunsCompleted)
	assert.Equal(t, uint64(1), global.StepsExecuted)
	assert.Equal(t, uint64(1), global.HumanApprovals)

	loaded, err := logger.GetRun(t.Context(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, loaded.Status)

	steps, err := logger.StepResults(t.Context(), "run-1")
	require.NoError(t, err)
	assert.Len(t, steps, 1)
}

func TestTrail_EndToEndAuditShape(t *testing.T) {
	store := memory.NewStore()
	trail := NewTrail(NewLogger(store, nil), NewCollector())

	run := testRun("run-e2e")
	run.TotalSteps = 2

	require.NoError(t, trail.RecordRun(t.Context(), run))
	require.NoError(t, trail.RecordStep(t.Context(), run, models.StepResult{StepNumber: 1, Status: models.StepStatusCompleted}))
	require.NoError(t, trail.RecordStep(t.Context(), run, models.StepResult{StepNumber: 2, Status: models.StepStatusCompleted}))

	run.Status = models.RunStatusCompleted
	require.NoError(t, trail.RecordRun(t.Context(), run))

	// One snapshot, one entry per step; the final snapshot overwrote the
	// first.
	keys, err := store.ListKeys(t.Context(), "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"run_run-e2e",
		"step_run-e2e_1",
		"step_run-e2e_2",
	}, keys)
}
