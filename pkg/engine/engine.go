// Package engine implements the run state machine: admission, step
// progression, approval gates, and the approval timeout policy.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/runbookd/runbookd/pkg/eventbus"
	"github.com/runbookd/runbookd/pkg/events"
	"github.com/runbookd/runbookd/pkg/log"
	"github.com/runbookd/runbookd/pkg/models"
)

// Defaults for Config fields left zero.
const (
	DefaultApprovalTimeout    = time.Hour
	DefaultMaxConcurrentTotal = 10
	DefaultMaxFinishedRuns    = 100
)

// Config tunes engine-wide behavior. Per-definition limits (cooldown,
// max_concurrent) live on the definitions themselves.
type Config struct {
	// ApprovalTimeout is how long a critical or high priority run may sit in
	// waiting_approval before the timeout policy auto-approves it. Zero
	// disables the policy entirely.
	ApprovalTimeout time.Duration

	// MaxConcurrentTotal caps active runs across all definitions.
	MaxConcurrentTotal int

	// MaxFinishedRuns bounds the in-memory finished run history. Oldest
	// entries are evicted first; the audit trail keeps the full record.
	MaxFinishedRuns int

	// ConfirmationOverridesAuto makes requires_confirmation steps pause even
	// in auto mode. When false, auto mode runs straight through.
	ConfirmationOverridesAuto bool
}

// DefaultConfig returns the engine configuration used when nothing is set
// explicitly.
func DefaultConfig() Config {
	return Config{
		ApprovalTimeout:           DefaultApprovalTimeout,
		MaxConcurrentTotal:        DefaultMaxConcurrentTotal,
		MaxFinishedRuns:           DefaultMaxFinishedRuns,
		ConfirmationOverridesAuto: true,
	}
}

// Recorder persists run snapshots and per-transition audit entries. Audit
// failures are logged but never revert a transition.
type Recorder interface {
	RecordRun(ctx context.Context, run *models.Run) error
	RecordStep(ctx context.Context, run *models.Run, result models.StepResult) error
	RecordApproval(ctx context.Context, run *models.Run, approval models.ApprovalRecord, byTimeout bool) error
}

// ActionKind discriminates the action variants the engine hands back to its
// caller after a transition.
type ActionKind string

const (
	ActionExecuteStep  ActionKind = "execute_step"
	ActionWaitApproval ActionKind = "wait_approval"
	ActionCompleted    ActionKind = "completed"
	ActionFailed       ActionKind = "failed"
)

// Action tells the execution surface what to do next with a run.
type Action struct {
	Kind           ActionKind
	RunID          string
	DefinitionName string

	// Step and Context are set for execute_step and wait_approval.
	Step    *models.Step
	Context string

	// Reason is set for failed.
	Reason string
}

// Engine is the central run orchestrator. All state transitions go through a
// single mutex; callers get snapshot copies, never live pointers.
type Engine struct {
	cfg       Config
	recorder  Recorder
	publisher eventbus.EventPublisher
	logger    *slog.Logger

	mu         sync.Mutex
	active     map[string]*models.Run
	finished   []*models.Run
	defsByRun  map[string]*models.Definition
	lastStarts map[string]time.Time
}

// NewEngine creates an engine. The recorder and publisher may be nil; the
// engine then runs without an audit trail or lifecycle events, which is only
// useful in tests.
func NewEngine(cfg Config, recorder Recorder, publisher eventbus.EventPublisher, logger *slog.Logger) *Engine {
	if cfg.MaxConcurrentTotal <= 0 {
		cfg.MaxConcurrentTotal = DefaultMaxConcurrentTotal
	}
	if cfg.MaxFinishedRuns <= 0 {
		cfg.MaxFinishedRuns = DefaultMaxFinishedRuns
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		cfg:        cfg,
		recorder:   recorder,
		publisher:  publisher,
		logger:     logger,
		active:     make(map[string]*models.Run),
		finished:   make([]*models.Run, 0),
		defsByRun:  make(map[string]*models.Definition),
		lastStarts: make(map[string]time.Time),
	}
}

// CanStart reports whether a new run for the definition would be admitted
// right now. Returns ErrCooldown, ErrMaxConcurrent, or nil.
func (e *Engine) CanStart(def *models.Definition) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.canStartLocked(def, time.Now().UTC())
}

func (e *Engine) canStartLocked(def *models.Definition, now time.Time) error {
	activeForDef := 0
	for _, run := range e.active {
		if run.DefinitionName == def.Name {
			activeForDef++
		}
	}

	maxConcurrent := def.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = models.DefaultMaxConcurrent
	}
	if activeForDef >= maxConcurrent {
		return ErrMaxConcurrent
	}

	if len(e.active) >= e.cfg.MaxConcurrentTotal {
		return ErrMaxConcurrent
	}

	// Cooldown is measured from the most recent run start, so long-running
	// runs do not extend the window.
	if def.CooldownSecs > 0 {
		if last, ok := e.lastStarts[def.Name]; ok {
			if now.Sub(last) < time.Duration(def.CooldownSecs)*time.Second {
				return ErrCooldown
			}
		}
	}

	return nil
}

// StartRun admits and starts a new run for the definition, triggered by the
// given event. It returns a snapshot of the new run and the first action.
func (e *Engine) StartRun(ctx context.Context, def *models.Definition, event models.Event) (*models.Run, Action, error) {
	if len(def.Steps) == 0 {
		return nil, Action{}, fmt.Errorf("definition %q: %w", def.Name, ErrNoSteps)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now().UTC()
	if err := e.canStartLocked(def, now); err != nil {
		return nil, Action{}, fmt.Errorf("definition %q: %w", def.Name, err)
	}

	run := &models.Run{
		RunID:          "run-" + watermill.NewULID(),
		DefinitionName: def.Name,
		TriggerEvent:   event,
		Status:         models.RunStatusPending,
		CurrentStep:    1,
		TotalSteps:     len(def.Steps),
		StartedAt:      now,
		StepResults:    make([]models.StepResult, 0, len(def.Steps)),
		PriorityHint:   def.Priority,
	}

	e.active[run.RunID] = run
	e.defsByRun[run.RunID] = def
	e.lastStarts[def.Name] = now

	log.WithRun(e.logger, run.RunID, def.Name).InfoContext(ctx, "Run started",
		"total_steps", run.TotalSteps)

	e.publish(ctx, run.RunID, events.RunStarted{
		BaseEvent:     events.NewBaseEvent(events.RunStartedEvent, run.RunID, def.Name),
		TriggerSource: event.Source,
		TotalSteps:    run.TotalSteps,
	})

	action := e.nextStepActionLocked(ctx, run, def)
	e.recordRunLocked(ctx, run)

	return cloneRun(run), action, nil
}

// Advance records the outcome of the run's current step and moves the run
// forward. The step number must name the current step, so a duplicate or
// stale report cannot advance the run twice. A failed result fails the run;
// otherwise the engine either finishes the run or resolves the next step's
// gate.
func (e *Engine) Advance(ctx context.Context, runID string, stepNumber int, status models.StepStatus, output string) (Action, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	run, ok := e.active[runID]
	if !ok {
		return Action{}, fmt.Errorf("run %q: %w", runID, ErrRunNotFound)
	}
	if run.Status != models.RunStatusPending && run.Status != models.RunStatusRunning {
		return Action{}, fmt.Errorf("run %q is %s: %w", runID, run.Status, ErrInvalidTransition)
	}
	if stepNumber != run.CurrentStep {
		return Action{}, fmt.Errorf("run %q is on step %d, result names step %d: %w",
			runID, run.CurrentStep, stepNumber, ErrStepMismatch)
	}

	def := e.defsByRun[runID]
	result := models.StepResult{
		StepNumber: run.CurrentStep,
		Status:     status,
		Output:     output,
		Timestamp:  time.Now().UTC(),
	}
	run.StepResults = append(run.StepResults, result)
	e.recordStepLocked(ctx, run, result)

	e.publish(ctx, runID, events.StepCompleted{
		BaseEvent:  events.NewBaseEvent(events.StepCompletedEvent, runID, run.DefinitionName),
		StepNumber: result.StepNumber,
		Status:     result.Status,
	})

	if status == models.StepStatusFailed {
		reason := fmt.Sprintf("step %d failed: %s", result.StepNumber, output)
		e.logger.WarnContext(ctx, "Run failed", "run_id", runID, "reason", reason)
		return e.finishRunLocked(ctx, run, models.RunStatusFailed, reason), nil
	}

	if run.CurrentStep >= run.TotalSteps {
		e.logger.InfoContext(ctx, "Run completed", "run_id", runID, "definition", run.DefinitionName)
		return e.finishRunLocked(ctx, run, models.RunStatusCompleted, ""), nil
	}

	run.CurrentStep++
	action := e.nextStepActionLocked(ctx, run, def)
	e.recordRunLocked(ctx, run)

	return action, nil
}

// Approve releases an approval gate. The step number must name the step the
// run is actually waiting on; stale approvals are rejected.
func (e *Engine) Approve(ctx context.Context, runID string, stepNumber int, actor string) (Action, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.approveLocked(ctx, runID, stepNumber, actor, false)
}

func (e *Engine) approveLocked(ctx context.Context, runID string, stepNumber int, actor string, byTimeout bool) (Action, error) {
	run, ok := e.active[runID]
	if !ok {
		return Action{}, fmt.Errorf("run %q: %w", runID, ErrRunNotFound)
	}
	if run.Status != models.RunStatusWaitingApproval {
		return Action{}, fmt.Errorf("run %q is %s: %w", runID, run.Status, ErrInvalidTransition)
	}
	if stepNumber != run.CurrentStep {
		return Action{}, fmt.Errorf("run %q waits on step %d, approval names step %d: %w",
			runID, run.CurrentStep, stepNumber, ErrStepMismatch)
	}

	def := e.defsByRun[runID]

	approval := models.ApprovalRecord{
		StepNumber: stepNumber,
		Actor:      actor,
		Timestamp:  time.Now().UTC(),
	}
	run.Approvals = append(run.Approvals, approval)
	run.Status = models.RunStatusRunning
	run.WaitingSince = nil

	e.recordApprovalLocked(ctx, run, approval, byTimeout)
	e.recordRunLocked(ctx, run)

	e.logger.InfoContext(ctx, "Approval granted",
		"run_id", runID, "step", stepNumber, "actor", actor)

	e.publish(ctx, runID, events.ApprovalGranted{
		BaseEvent:  events.NewBaseEvent(events.ApprovalGrantedEvent, runID, run.DefinitionName),
		StepNumber: stepNumber,
		Actor:      actor,
	})

	step := def.Steps[run.CurrentStep-1]
	return Action{
		Kind:           ActionExecuteStep,
		RunID:          runID,
		DefinitionName: run.DefinitionName,
		Step:           &step,
		Context:        formatStepContext(def, run, step),
	}, nil
}

// Cancel moves a parked or waiting run to cancelled. A run whose step has
// been handed off to an execution context cannot be preempted mid-step.
func (e *Engine) Cancel(ctx context.Context, runID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	run, ok := e.active[runID]
	if !ok {
		return fmt.Errorf("run %q: %w", runID, ErrRunNotFound)
	}
	if run.Status != models.RunStatusPending && run.Status != models.RunStatusWaitingApproval {
		return fmt.Errorf("run %q is %s: %w", runID, run.Status, ErrInvalidTransition)
	}

	e.finishRunLocked(ctx, run, models.RunStatusCancelled, "")
	e.logger.InfoContext(ctx, "Run cancelled", "run_id", runID)

	return nil
}

// CheckApprovalTimeouts auto-approves critical and high priority runs that
// have waited longer than the configured timeout. Lower priority runs wait
// indefinitely. Returns the execute actions for resumed runs.
func (e *Engine) CheckApprovalTimeouts(ctx context.Context) []Action {
	if e.cfg.ApprovalTimeout <= 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now().UTC()
	actions := make([]Action, 0)

	for runID, run := range e.active {
		if run.Status != models.RunStatusWaitingApproval || run.WaitingSince == nil {
			continue
		}
		if now.Sub(*run.WaitingSince) < e.cfg.ApprovalTimeout {
			continue
		}

		def := e.defsByRun[runID]
		if def == nil || !def.Priority.AutoByPriority() {
			e.logger.InfoContext(ctx, "Approval timeout reached, waiting indefinitely",
				"run_id", runID, "step", run.CurrentStep)
			continue
		}

		e.logger.InfoContext(ctx, "Approval timeout reached, auto-approving",
			"run_id", runID, "step", run.CurrentStep, "priority", def.Priority)

		action, err := e.approveLocked(ctx, runID, run.CurrentStep, models.ApprovalActorTimeout, true)
		if err != nil {
			e.logger.WarnContext(ctx, "Auto-approve failed", "run_id", runID, "error", err)
			continue
		}
		actions = append(actions, action)
	}

	return actions
}

// Run returns a snapshot of the run, active or finished.
func (e *Engine) Run(runID string) (*models.Run, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if run, ok := e.active[runID]; ok {
		return cloneRun(run), nil
	}
	for _, run := range e.finished {
		if run.RunID == runID {
			return cloneRun(run), nil
		}
	}

	return nil, fmt.Errorf("run %q: %w", runID, ErrRunNotFound)
}

// ActiveRuns returns snapshots of all in-flight runs.
func (e *Engine) ActiveRuns() []*models.Run {
	e.mu.Lock()
	defer e.mu.Unlock()

	runs := make([]*models.Run, 0, len(e.active))
	for _, run := range e.active {
		runs = append(runs, cloneRun(run))
	}

	return runs
}

// FinishedRuns returns snapshots of finished runs, optionally filtered by
// definition name.
func (e *Engine) FinishedRuns(definitionName string) []*models.Run {
	e.mu.Lock()
	defer e.mu.Unlock()

	runs := make([]*models.Run, 0, len(e.finished))
	for _, run := range e.finished {
		if definitionName != "" && run.DefinitionName != definitionName {
			continue
		}
		runs = append(runs, cloneRun(run))
	}

	return runs
}

// Restore reinserts a persisted run after a restart. Terminal runs go to
// history; non-terminal runs become active again with their definition
// reattached. A run whose definition no longer contains its current step is
// refused, not reactivated. Waiting runs keep their waiting_since, so the
// timeout policy picks them up on the next poll.
func (e *Engine) Restore(run *models.Run, def *models.Definition) error {
	if run == nil {
		return fmt.Errorf("%w: nil run", ErrRunNotFound)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	restored := cloneRun(run)
	if restored.Status.Terminal() {
		e.finished = append(e.finished, restored)
		e.evictFinishedLocked()
		return nil
	}

	if def == nil {
		return fmt.Errorf("run %q: definition %q not loaded: %w",
			run.RunID, run.DefinitionName, ErrRunNotFound)
	}
	if restored.CurrentStep < 1 || restored.CurrentStep > len(def.Steps) ||
		restored.TotalSteps != len(def.Steps) {
		return fmt.Errorf("run %q is on step %d of %d but definition %q now has %d steps: %w",
			run.RunID, restored.CurrentStep, restored.TotalSteps, def.Name, len(def.Steps),
			ErrDefinitionChanged)
	}

	e.active[restored.RunID] = restored
	e.defsByRun[restored.RunID] = def
	if last, ok := e.lastStarts[def.Name]; !ok || restored.StartedAt.After(last) {
		e.lastStarts[def.Name] = restored.StartedAt
	}

	return nil
}

// nextStepActionLocked resolves the gate for the run's current step, updates
// the run status when the step must wait, and builds the returned action.
func (e *Engine) nextStepActionLocked(ctx context.Context, run *models.Run, def *models.Definition) Action {
	step := def.Steps[run.CurrentStep-1]
	stepContext := formatStepContext(def, run, step)

	if e.needsApproval(def, step) {
		now := time.Now().UTC()
		run.Status = models.RunStatusWaitingApproval
		run.WaitingSince = &now

		e.publish(ctx, run.RunID, events.ApprovalRequired{
			BaseEvent:  events.NewBaseEvent(events.ApprovalRequiredEvent, run.RunID, run.DefinitionName),
			StepNumber: step.Number,
		})

		return Action{
			Kind:           ActionWaitApproval,
			RunID:          run.RunID,
			DefinitionName: run.DefinitionName,
			Step:           &step,
			Context:        stepContext,
		}
	}

	// The step executes only when an external context reports back through
	// Advance. The pending-execution event makes the handoff visible.
	run.Status = models.RunStatusRunning

	e.publish(ctx, run.RunID, events.StepPending{
		BaseEvent:  events.NewBaseEvent(events.StepPendingEvent, run.RunID, run.DefinitionName),
		StepNumber: step.Number,
		StepTitle:  step.Title,
	})

	return Action{
		Kind:           ActionExecuteStep,
		RunID:          run.RunID,
		DefinitionName: run.DefinitionName,
		Step:           &step,
		Context:        stepContext,
	}
}

// needsApproval resolves the execution mode gate for one step.
func (e *Engine) needsApproval(def *models.Definition, step models.Step) bool {
	mode := def.ExecutionMode
	if mode == models.ExecutionModePriorityBased {
		if def.Priority.AutoByPriority() {
			mode = models.ExecutionModeAuto
		} else {
			mode = models.ExecutionModeSupervised
		}
	}

	switch mode {
	case models.ExecutionModeAuto:
		return step.RequiresConfirmation && e.cfg.ConfirmationOverridesAuto
	case models.ExecutionModeStepByStep:
		return true
	default:
		// Supervised pauses only on steps flagged requires_confirmation.
		return step.RequiresConfirmation
	}
}

func (e *Engine) finishRunLocked(ctx context.Context, run *models.Run, status models.RunStatus, reason string) Action {
	now := time.Now().UTC()
	run.Status = status
	run.CompletedAt = &now
	run.WaitingSince = nil

	delete(e.active, run.RunID)
	delete(e.defsByRun, run.RunID)
	e.finished = append(e.finished, run)
	e.evictFinishedLocked()

	e.recordRunLocked(ctx, run)

	switch status {
	case models.RunStatusFailed:
		e.publish(ctx, run.RunID, events.RunFailed{
			BaseEvent: events.NewBaseEvent(events.RunFailedEvent, run.RunID, run.DefinitionName),
			Reason:    reason,
		})
		return Action{
			Kind:           ActionFailed,
			RunID:          run.RunID,
			DefinitionName: run.DefinitionName,
			Reason:         reason,
		}
	case models.RunStatusCancelled:
		e.publish(ctx, run.RunID, events.RunCancelled{
			BaseEvent: events.NewBaseEvent(events.RunCancelledEvent, run.RunID, run.DefinitionName),
		})
	default:
		e.publish(ctx, run.RunID, events.RunCompleted{
			BaseEvent: events.NewBaseEvent(events.RunCompletedEvent, run.RunID, run.DefinitionName),
			Duration:  now.Sub(run.StartedAt),
		})
	}

	return Action{
		Kind:           ActionCompleted,
		RunID:          run.RunID,
		DefinitionName: run.DefinitionName,
	}
}

func (e *Engine) evictFinishedLocked() {
	if max := e.cfg.MaxFinishedRuns; max > 0 && len(e.finished) > max {
		excess := len(e.finished) - max
		e.finished = append(e.finished[:0:0], e.finished[excess:]...)
	}
}

func (e *Engine) recordRunLocked(ctx context.Context, run *models.Run) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordRun(ctx, run); err != nil {
		e.logger.WarnContext(ctx, "Failed to persist run snapshot",
			"run_id", run.RunID, "error", err)
	}
}

func (e *Engine) recordStepLocked(ctx context.Context, run *models.Run, result models.StepResult) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordStep(ctx, run, result); err != nil {
		e.logger.WarnContext(ctx, "Failed to record step result",
			"run_id", run.RunID, "step", result.StepNumber, "error", err)
	}
}

func (e *Engine) recordApprovalLocked(ctx context.Context, run *models.Run, approval models.ApprovalRecord, byTimeout bool) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordApproval(ctx, run, approval, byTimeout); err != nil {
		e.logger.WarnContext(ctx, "Failed to record approval",
			"run_id", run.RunID, "step", approval.StepNumber, "error", err)
	}
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, key, event); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish lifecycle event",
			"event_type", event.GetType(), "error", err)
	}
}

// formatStepContext builds the operator-facing briefing for a step: trigger
// details, the previous step's outcome, and the step body with its tool
// suggestions.
func formatStepContext(def *models.Definition, run *models.Run, step models.Step) string {
	var b strings.Builder

	fmt.Fprintf(&b, "[Runbook: %s (run %s) | Step %d of %d]\n\n",
		def.Name, run.RunID, step.Number, run.TotalSteps)

	topic := run.TriggerEvent.Topic
	if topic == "" {
		topic = "(no topic)"
	}
	fmt.Fprintf(&b, "Trigger: %s %s\n", run.TriggerEvent.Source, topic)

	if run.TriggerEvent.Payload != "" {
		fmt.Fprintf(&b, "Payload: %s\n", run.TriggerEvent.Payload)
	}

	if len(run.StepResults) > 0 {
		prev := run.StepResults[len(run.StepResults)-1]
		fmt.Fprintf(&b, "Previous: step %d %s: %s\n", prev.StepNumber, prev.Status, prev.Output)
	}

	fmt.Fprintf(&b, "\nCurrent step: %s\n%s\n", step.Title, step.Body)

	if len(step.SuggestedTools) > 0 {
		fmt.Fprintf(&b, "\nSuggested tools: %s\n", strings.Join(step.SuggestedTools, ", "))
	}

	b.WriteString("\nReport the result when done.\n")

	return b.String()
}

func cloneRun(run *models.Run) *models.Run {
	out := *run
	if run.CompletedAt != nil {
		t := *run.CompletedAt
		out.CompletedAt = &t
	}
	if run.WaitingSince != nil {
		t := *run.WaitingSince
		out.WaitingSince = &t
	}
	out.StepResults = append([]models.StepResult(nil), run.StepResults...)
	out.Approvals = append([]models.ApprovalRecord(nil), run.Approvals...)

	return &out
}
