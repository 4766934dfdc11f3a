package audit

import (
	"sync"

	"github.com/runbookd/runbookd/pkg/models"
)

// Counters are the accumulated execution totals for one definition, or for
// the whole deployment.
type Counters struct {
	RunsCompleted    uint64 `json:"runs_completed"`
	RunsFailed       uint64 `json:"runs_failed"`
	RunsCancelled    uint64 `json:"runs_cancelled"`
	StepsExecuted    uint64 `json:"steps_executed"`
	StepsFailed      uint64 `json:"steps_failed"`
	StepsSkipped     uint64 `json:"steps_skipped"`
	HumanApprovals   uint64 `json:"human_approvals"`
	TimeoutApprovals uint64 `json:"timeout_approvals"`
}

// Collector aggregates audit events into queryable counters for status
// endpoints. It observes the same transitions the Logger persists but keeps
// everything in memory; restarts reset it, the stored trail does not.
type Collector struct {
	mu            sync.RWMutex
	global        Counters
	perDefinition map[string]Counters
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{perDefinition: make(map[string]Counters)}
}

// ObserveRunFinished records a terminal run.
func (c *Collector) ObserveRunFinished(definitionName string, status models.RunStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.apply(definitionName, func(counters *Counters) {
		switch status {
		case models.RunStatusFailed:
			counters.RunsFailed++
		case models.RunStatusCancelled:
			counters.RunsCancelled++
		case models.RunStatusCompleted:
			counters.RunsCompleted++
		}
	})
}

// ObserveStep records one executed step.
func (c *Collector) ObserveStep(definitionName string, status models.StepStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.apply(definitionName, func(counters *Counters) {
		counters.StepsExecuted++
		switch status {
		case models.StepStatusFailed:
			counters.StepsFailed++
		case models.StepStatusSkipped:
			counters.StepsSkipped++
		}
	})
}

// ObserveApproval records an approval, human or timeout.
func (c *Collector) ObserveApproval(definitionName string, byTimeout bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.apply(definitionName, func(counters *Counters) {
		if byTimeout {
			counters.TimeoutApprovals++
		} else {
			counters.HumanApprovals++
		}
	})
}

// Global returns the deployment-wide totals.
func (c *Collector) Global() Counters {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.global
}

// ForDefinition returns the totals for one definition.
func (c *Collector) ForDefinition(name string) Counters {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.perDefinition[name]
}

// PerDefinition returns a copy of all per-definition totals.
func (c *Collector) PerDefinition() map[string]Counters {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]Counters, len(c.perDefinition))
	for name, counters := range c.perDefinition {
		out[name] = counters
	}

	return out
}

func (c *Collector) apply(definitionName string, update func(*Counters)) {
	update(&c.global)

	counters := c.perDefinition[definitionName]
	update(&counters)
	c.perDefinition[definitionName] = counters
}
