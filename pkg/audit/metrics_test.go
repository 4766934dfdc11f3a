package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/runbookd/runbookd/pkg/models"
)

func TestCollector(t *testing.T) {
	c := NewCollector()

	c.ObserveRunFinished("restart-db", models.RunStatusCompleted)
	c.ObserveRunFinished("restart-db", models.RunStatusFailed)
	c.ObserveRunFinished("failover", models.RunStatusCancelled)

	c.ObserveStep("restart-db", models.StepStatusCompleted)
	c.ObserveStep("restart-db", models.StepStatusFailed)
	c.ObserveStep("failover", models.StepStatusSkipped)

	c.ObserveApproval("failover", false)
	c.ObserveApproval("failover", true)

	global := c.Global()
	assert.Equal(t, uint64(1), global.RunsCompleted)
	assert.Equal(t, uint64(1), global.RunsFailed)
	assert.Equal(t, uint64(1), global.RunsCancelled)
	assert.Equal(t, uint64(3), global.StepsExecuted)
	assert.Equal(t, uint64(1), global.StepsFailed)
	assert.Equal(t, uint64(1), global.StepsSkipped)
	assert.Equal(t, uint64(1), global.HumanApprovals)
	assert.Equal(t, uint64(1), global.TimeoutApprovals)

	restartDB := c.ForDefinition("restart-db")
	assert.Equal(t, uint64(1), restartDB.RunsCompleted)
	assert.Equal(t, uint64(2), restartDB.StepsExecuted)
	assert.Equal(t, uint64(0), restartDB.HumanApprovals)

	failover := c.ForDefinition("failover")
	assert.Equal(t, uint64(1), failover.RunsCancelled)
	assert.Equal(t, uint64(1), failover.HumanApprovals)
	assert.Equal(t, uint64(1), failover.TimeoutApprovals)

	all := c.PerDefinition()
	assert.Len(t, all, 2)

	// The returned map is a copy.
	all["restart-db"] = Counters{}
	assert.Equal(t, uint64(1), c.ForDefinition("restart-db").RunsCompleted)
}

func TestCollector_UnknownDefinitionIsZero(t *testing.T) {
	c := NewCollector()
	assert.Equal(t, Counters{}, c.ForDefinition("missing"))
}
