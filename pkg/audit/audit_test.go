package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runbookd/runbookd/pkg/models"
	"github.com/runbookd/runbookd/pkg/persistence"
	"github.com/runbookd/runbookd/pkg/persistence/memory"
)

func testRun(id string) *models.Run {
	return &models.Run{
		RunID:          id,
		DefinitionName: "restart-db",
		Status:         models.RunStatusPending,
		CurrentStep:    1,
		TotalSteps:     3,
		StartedAt:      time.Now().UTC(),
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "run_run-1", RunKey("run-1"))
	assert.Equal(t, "step_run-1_2", StepKey("run-1", 2))
	assert.Equal(t, "approval_run-1_2", ApprovalKey("run-1", 2))
	assert.Equal(t, "timeout_approval_run-1_2", TimeoutApprovalKey("run-1", 2))
}

type downStore struct {
	persistence.Store
}

func (downStore) HealthCheck(context.Context) error {
	return errors.New("store offline")
}

func TestLogger_HealthCheckReportsStore(t *testing.T) {
	healthy := NewLogger(memory.NewStore(), nil)
	require.NoError(t, healthy.HealthCheck(t.Context()))

	down := NewLogger(downStore{memory.NewStore()}, nil)
	require.Error(t, down.HealthCheck(t.Context()))
}

func TestLogger_RunRoundTrip(t *testing.T) {
	logger := NewLogger(memory.NewStore(), nil)

	run := testRun("run-1")
	require.NoError(t, logger.RecordRun(t.Context(), run))

	loaded, err := logger.GetRun(t.Context(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.RunID, loaded.RunID)
	assert.Equal(t, run.DefinitionName, loaded.DefinitionName)
	assert.Equal(t, run.Status, loaded.Status)

	// A later snapshot replaces the earlier one.
	run.Status = models.RunStatusCompleted
	require.NoError(t, logger.RecordRun(t.Context(), run))

	loaded, err = logger.GetRun(t.Context(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, loaded.Status)
}

func TestLogger_ListAndLoadRuns(t *testing.T) {
	logger := NewLogger(memory.NewStore(), nil)

	for _, id := range []string{"run-a", "run-b"} {
		require.NoError(t, logger.RecordRun(t.Context(), testRun(id)))
	}

	ids, err := logger.ListRunIDs(t.Context())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"run-a", "run-b"}, ids)

	runs, err := logger.LoadRuns(t.Context())
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestLogger_StepResultsSorted(t *testing.T) {
	logger := NewLogger(memory.NewStore(), nil)
	run := testRun("run-1")

	// Recorded out of order; reads come back ascending.
	for _, n := range []int{3, 1, 2} {
		result := models.StepResult{
			StepNumber: n,
			Status:     models.StepStatusCompleted,
			Output:     "ok",
			Timestamp:  time.Now().UTC(),
		}
		require.NoError(t, logger.RecordStep(t.Context(), run, result))
	}

	results, err := logger.StepResults(t.Context(), "run-1")
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, result := range results {
		assert.Equal(t, i+1, result.StepNumber)
	}
}

func TestLogger_StepResultsScopedToRun(t *testing.T) {
	logger := NewLogger(memory.NewStore(), nil)

	require.NoError(t, logger.RecordStep(t.Context(), testRun("run-1"),
		models.StepResult{StepNumber: 1, Status: models.StepStatusCompleted}))
	require.NoError(t, logger.RecordStep(t.Context(), testRun("run-2"),
		models.StepResult{StepNumber: 1, Status: models.StepStatusFailed}))

	results, err := logger.StepResults(t.Context(), "run-1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.StepStatusCompleted, results[0].Status)
}

func TestLogger_ApprovalKeysByOrigin(t *testing.T) {
	store := memory.NewStore()
	logger := NewLogger(store, nil)
	run := testRun("run-1")

	human := models.ApprovalRecord{StepNumber: 2, Actor: "alice", Timestamp: time.Now().UTC()}
	require.NoError(t, logger.RecordApproval(t.Context(), run, human, false))

	timeout := models.ApprovalRecord{StepNumber: 3, Actor: models.ApprovalActorTimeout, Timestamp: time.Now().UTC()}
	require.NoError(t, logger.RecordApproval(t.Context(), run, timeout, true))

	_, err := store.Get(t.Context(), "approval_run-1_2")
	assert.NoError(t, err)

	_, err = store.Get(t.Context(), "timeout_approval_run-1_3")
	assert.NoError(t, err)

	// The timeout entry must not shadow the human keyspace.
	_, err = store.Get(t.Context(), "approval_run-1_3")
	assert.Error(t, err)
}

func TestLogger_DispatchRecords(t *testing.T) {
	logger := NewLogger(memory.NewStore(), nil)

	require.NoError(t, logger.RecordDispatch(t.Context(), DispatchRecord{
		Family:    "pubsub",
		Decision:  "accepted",
		RunID:     "run-1",
		Source:    models.SourcePubSub,
		Topic:     "alerts/db/critical",
		Timestamp: time.Now().UTC(),
	}))
	require.NoError(t, logger.RecordDispatch(t.Context(), DispatchRecord{
		Family:    "cron",
		Decision:  "no_match",
		Source:    models.SourceCron,
		Topic:     "*/5 * * * *",
		Timestamp: time.Now().UTC(),
	}))

	pubsub, err := logger.DispatchRecords(t.Context(), "pubsub")
	require.NoError(t, err)
	require.Len(t, pubsub, 1)
	assert.Equal(t, "accepted", pubsub[0].Decision)

	all, err := logger.DispatchRecords(t.Context(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
