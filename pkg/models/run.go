package models

import "time"

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusPending         RunStatus = "pending"
	RunStatusRunning         RunStatus = "running"
	RunStatusWaitingApproval RunStatus = "waiting_approval"
	RunStatusCompleted       RunStatus = "completed"
	RunStatusFailed          RunStatus = "failed"
	RunStatusCancelled       RunStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// StepStatus is the outcome of a single executed step.
type StepStatus string

const (
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// StepResult records the outcome an execution context reported for one step.
type StepResult struct {
	StepNumber int        `json:"step_number"`
	Status     StepStatus `json:"status"`
	Output     string     `json:"output,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// ApprovalActorTimeout marks an approval granted by the timeout policy rather
// than a human operator.
const ApprovalActorTimeout = "timeout"

// ApprovalRecord records who released an approval gate and when.
type ApprovalRecord struct {
	StepNumber int       `json:"step_number"`
	Actor      string    `json:"actor"`
	Timestamp  time.Time `json:"timestamp"`
}

// Run is one execution instance of a definition. It references the definition
// by name rather than embedding a copy; the registry snapshot it was admitted
// against stays authoritative for its steps.
type Run struct {
	RunID          string           `json:"run_id"`
	DefinitionName string           `json:"definition_name"`
	TriggerEvent   Event            `json:"trigger_event"`
	Status         RunStatus        `json:"status"`
	CurrentStep    int              `json:"current_step"`
	TotalSteps     int              `json:"total_steps"`
	StartedAt      time.Time        `json:"started_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	WaitingSince   *time.Time       `json:"waiting_since,omitempty"`
	StepResults    []StepResult     `json:"step_results"`
	Approvals      []ApprovalRecord `json:"approvals,omitempty"`

	// PriorityHint mirrors the definition's priority for external schedulers.
	// The engine itself never reorders steps across runs.
	PriorityHint Priority `json:"priority_hint,omitempty"`
}
