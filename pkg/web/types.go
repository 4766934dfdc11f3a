package web

import (
	"github.com/runbookd/runbookd/pkg/audit"
	"github.com/runbookd/runbookd/pkg/models"
	"github.com/runbookd/runbookd/pkg/registry"
)

// StartRunRequest starts a run of a named definition.
type StartRunRequest struct {
	Definition string `json:"definition" validate:"required,min=1"`
}

// ApproveRequest releases an approval gate. StepNumber must name the step
// the run is waiting on.
type ApproveRequest struct {
	StepNumber int    `json:"step_number" validate:"required,gte=1"`
	Actor      string `json:"actor"       validate:"required,min=1"`
}

// AdvanceRequest reports the outcome of the run's current step.
type AdvanceRequest struct {
	StepNumber int    `json:"step_number" validate:"required,gte=1"`
	Status     string `json:"status"      validate:"required,oneof=completed failed skipped"`
	Output     string `json:"output"`
}

// HookEventRequest is the body of the general event hook.
type HookEventRequest struct {
	Source  string `json:"source"  validate:"omitempty,oneof=pubsub webhook peripheral"`
	Topic   string `json:"topic"   validate:"required,min=1"`
	Payload string `json:"payload"`
}

// HookResponse reports the dispatch outcome of a hook call.
type HookResponse struct {
	Status             string   `json:"status"`
	MatchedDefinitions []string `json:"matched_definitions,omitempty"`
	RunIDs             []string `json:"run_ids,omitempty"`
	Rejected           []string `json:"rejected,omitempty"`
	Source             string   `json:"source"`
	Path               string   `json:"path,omitempty"`
}

// RunResponse wraps a run snapshot together with its next pending action.
type RunResponse struct {
	Run        *models.Run `json:"run"`
	NextAction string      `json:"next_action,omitempty"`
}

// StatusResponse summarizes the deployment for operators.
type StatusResponse struct {
	Definitions     int  `json:"definitions"`
	ActiveRuns      int  `json:"active_runs"`
	WaitingApproval int  `json:"waiting_approval"`
	FinishedRuns    int  `json:"finished_runs"`
	EngineHealthy   bool `json:"engine_healthy"`

	Metrics *MetricsResponse `json:"metrics,omitempty"`
}

// MetricsResponse carries the aggregate counters when requested.
type MetricsResponse struct {
	Global        audit.Counters            `json:"global"`
	PerDefinition map[string]audit.Counters `json:"per_definition"`
}

// DefinitionSummary is the list-view projection of a definition.
type DefinitionSummary struct {
	Name          string               `json:"name"`
	Description   string               `json:"description,omitempty"`
	Version       string               `json:"version"`
	Priority      models.Priority      `json:"priority"`
	ExecutionMode models.ExecutionMode `json:"execution_mode"`
	Triggers      []string             `json:"triggers"`
	Steps         int                  `json:"steps"`
}

// ValidateResponse lists the findings for one definition.
type ValidateResponse struct {
	Definition string             `json:"definition"`
	Valid      bool               `json:"valid"`
	Findings   []registry.Finding `json:"findings"`
}

func summarize(def *models.Definition) DefinitionSummary {
	triggers := make([]string, 0, len(def.Triggers))
	for _, trigger := range def.Triggers {
		triggers = append(triggers, trigger.String())
	}

	return DefinitionSummary{
		Name:          def.Name,
		Description:   def.Description,
		Version:       def.Version,
		Priority:      def.Priority,
		ExecutionMode: def.ExecutionMode,
		Triggers:      triggers,
		Steps:         len(def.Steps),
	}
}
