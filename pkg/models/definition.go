// Package models defines the core domain models for runbook automation.
package models

import "time"

// Priority is the scheduling priority of a runbook definition.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ExecutionMode controls how much autonomy a run has between steps.
type ExecutionMode string

const (
	// ExecutionModeAuto executes steps without pausing.
	ExecutionModeAuto ExecutionMode = "auto"
	// ExecutionModeSupervised pauses only on steps flagged requires_confirmation.
	ExecutionModeSupervised ExecutionMode = "supervised"
	// ExecutionModeStepByStep pauses before every step.
	ExecutionModeStepByStep ExecutionMode = "step_by_step"
	// ExecutionModePriorityBased behaves as auto for critical/high priority
	// definitions and as supervised for normal/low.
	ExecutionModePriorityBased ExecutionMode = "priority_based"
)

// Defaults applied when a manifest omits the fields.
const (
	DefaultVersion       = "0.1.0"
	DefaultMaxConcurrent = 1
)

// Definition is a loaded runbook: metadata, triggers, and the ordered step
// sequence. Definitions are immutable once loaded; a registry reload replaces
// the whole snapshot.
type Definition struct {
	Name          string        `json:"name"           validate:"required,min=1"`
	Description   string        `json:"description"`
	Version       string        `json:"version"`
	Priority      Priority      `json:"priority"       validate:"omitempty,oneof=low normal high critical"`
	ExecutionMode ExecutionMode `json:"execution_mode" validate:"omitempty,oneof=auto supervised step_by_step priority_based"`
	CooldownSecs  int64         `json:"cooldown_secs"  validate:"gte=0"`
	MaxConcurrent int           `json:"max_concurrent" validate:"gte=1"`
	Triggers      []Trigger     `json:"triggers"`
	Steps         []Step        `json:"steps"`

	// Location is the directory the definition was loaded from.
	Location string `json:"location,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Step is a single step of a runbook procedure, parsed from the step document.
type Step struct {
	Number               int      `json:"number"`
	Title                string   `json:"title"`
	Body                 string   `json:"body,omitempty"`
	SuggestedTools       []string `json:"suggested_tools,omitempty"`
	RequiresConfirmation bool     `json:"requires_confirmation,omitempty"`
}

// AutoByPriority reports whether a priority_based definition of this priority
// runs without pauses.
func (p Priority) AutoByPriority() bool {
	return p == PriorityHigh || p == PriorityCritical
}
