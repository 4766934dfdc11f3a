// Package events defines event types for run lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/runbookd/runbookd/pkg/models"
)

type EventType string

// Topic is the bus topic all run lifecycle events publish to.
const Topic = "runbookd.events"

const EventKeyMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RunStartedEvent       EventType = "run.started"
	RunCompletedEvent     EventType = "run.completed"
	RunFailedEvent        EventType = "run.failed"
	RunCancelledEvent     EventType = "run.cancelled"
	StepPendingEvent      EventType = "step.pending"
	StepCompletedEvent    EventType = "step.completed"
	ApprovalRequiredEvent EventType = "approval.required"
	ApprovalGrantedEvent  EventType = "approval.granted"
	DispatchDecidedEvent  EventType = "dispatch.decided"
)

type BaseEvent struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	Timestamp      time.Time `json:"timestamp"`
	RunID          string    `json:"run_id,omitempty"`
	DefinitionName string    `json:"definition_name,omitempty"`
}

func NewBaseEvent(eventType EventType, runID, definitionName string) BaseEvent {
	return BaseEvent{
		ID:             uuid.New().String(),
		Type:           eventType,
		Timestamp:      time.Now().UTC(),
		RunID:          runID,
		DefinitionName: definitionName,
	}
}

type RunStarted struct {
	BaseEvent

	TriggerSource models.EventSource `json:"trigger_source"`
	TotalSteps    int                `json:"total_steps"`
}

func (e RunStarted) GetType() EventType { return RunStartedEvent }

type RunCompleted struct {
	BaseEvent

	Duration time.Duration `json:"duration"`
}

func (e RunCompleted) GetType() EventType { return RunCompletedEvent }

type RunFailed struct {
	BaseEvent

	Reason string `json:"reason"`
}

func (e RunFailed) GetType() EventType { return RunFailedEvent }

type RunCancelled struct {
	BaseEvent
}

func (e RunCancelled) GetType() EventType { return RunCancelledEvent }

// StepPending is published when a step is due to execute but no execution
// context is attached; the run is parked until an advance call arrives.
type StepPending struct {
	BaseEvent

	StepNumber int    `json:"step_number"`
	StepTitle  string `json:"step_title"`
}

func (e StepPending) GetType() EventType { return StepPendingEvent }

type StepCompleted struct {
	BaseEvent

	StepNumber int               `json:"step_number"`
	Status     models.StepStatus `json:"status"`
}

func (e StepCompleted) GetType() EventType { return StepCompletedEvent }

type ApprovalRequired struct {
	BaseEvent

	StepNumber int `json:"step_number"`
}

func (e ApprovalRequired) GetType() EventType { return ApprovalRequiredEvent }

type ApprovalGranted struct {
	BaseEvent

	StepNumber int    `json:"step_number"`
	Actor      string `json:"actor"`
}

func (e ApprovalGranted) GetType() EventType { return ApprovalGrantedEvent }

// DispatchDecided mirrors a dispatch decision, including rejections.
type DispatchDecided struct {
	BaseEvent

	Source   models.EventSource `json:"source"`
	Decision string             `json:"decision"`
	Reason   string             `json:"reason,omitempty"`
}

func (e DispatchDecided) GetType() EventType { return DispatchDecidedEvent }
