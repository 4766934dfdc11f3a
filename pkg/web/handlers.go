// Package web provides the HTTP surface: hook endpoints for incoming events
// and operator endpoints for runs and definitions.
package web

import (
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/runbookd/runbookd/pkg/audit"
	"github.com/runbookd/runbookd/pkg/dispatcher"
	"github.com/runbookd/runbookd/pkg/engine"
	"github.com/runbookd/runbookd/pkg/models"
	"github.com/runbookd/runbookd/pkg/registry"
)

// Hook families namespace idempotency keys per surface.
const (
	RunbookHookFamily = "runbook"
	EventHookFamily   = "event"
	ManualFamily      = "manual"
)

// IdempotencyHeader carries the caller-supplied deduplication key.
const IdempotencyHeader = "X-Idempotency-Key"

// FallbackHandler receives general hook events no definition matched.
type FallbackHandler func(c fiber.Ctx, event models.Event) error

// APIHandlers bundles the HTTP handlers and their collaborators.
type APIHandlers struct {
	registry  *registry.Registry
	engine    *engine.Engine
	dispatch  *dispatcher.Dispatcher
	auditLog  *audit.Logger
	metrics   *audit.Collector
	validator *validator.Validate
	logger    *slog.Logger
	fallback  FallbackHandler
}

// NewAPIHandlers creates the handler set. The fallback may be nil; unmatched
// general hook events then get a plain no_match response.
func NewAPIHandlers(
	reg *registry.Registry,
	eng *engine.Engine,
	dispatch *dispatcher.Dispatcher,
	auditLog *audit.Logger,
	metrics *audit.Collector,
	validate *validator.Validate,
	logger *slog.Logger,
	fallback FallbackHandler,
) *APIHandlers {
	if logger == nil {
		logger = slog.Default()
	}

	return &APIHandlers{
		registry:  reg,
		engine:    eng,
		dispatch:  dispatch,
		auditLog:  auditLog,
		metrics:   metrics,
		validator: validate,
		logger:    logger.With("module", "web"),
		fallback:  fallback,
	}
}

// HookRunbook handles POST /hooks/runbook/*. The wildcard tail selects
// webhook triggers by path; an event no definition matches is a 404 because
// this family serves defined procedures only.
func (h *APIHandlers) HookRunbook(c fiber.Ctx) error {
	path := "/" + c.Params("*")
	event := models.Event{
		Source:    models.SourceWebhook,
		Topic:     path,
		Payload:   string(c.Body()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	result, err := h.dispatch.Dispatch(c.Context(), RunbookHookFamily, event, c.Get(IdempotencyHeader))
	if err != nil {
		return internalError(c, err)
	}

	if result.Decision == dispatcher.DecisionNoMatch {
		return notFound(c, "no_matching_runbook", "no runbook matches path "+path)
	}

	return c.JSON(hookResponse(result, event, path))
}

// HookEvent handles POST /hooks/event, the general ingestion family. Events
// that match no definition are forwarded to the fallback handler instead of
// failing; the hook accepts arbitrary occurrences, not just known ones.
func (h *APIHandlers) HookEvent(c fiber.Ctx) error {
	var req HookEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	source := models.EventSource(req.Source)
	if req.Source == "" {
		source = models.SourcePubSub
	}

	event := models.Event{
		Source:    source,
		Topic:     req.Topic,
		Payload:   req.Payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	result, err := h.dispatch.Dispatch(c.Context(), EventHookFamily, event, c.Get(IdempotencyHeader))
	if err != nil {
		return internalError(c, err)
	}

	if result.Decision == dispatcher.DecisionNoMatch && h.fallback != nil {
		return h.fallback(c, event)
	}

	return c.JSON(hookResponse(result, event, ""))
}

// StartRun handles POST /runs: a manual start of one named definition.
// Manual starts bypass trigger matching but never admission control.
func (h *APIHandlers) StartRun(c fiber.Ctx) error {
	var req StartRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	def, err := h.registry.Get(req.Definition)
	if err != nil {
		return handleEngineError(c, err)
	}

	event := models.Event{
		Source:    models.SourceManual,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	run, action, err := h.engine.StartRun(c.Context(), def, event)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(RunResponse{
		Run:        run,
		NextAction: string(action.Kind),
	})
}

// GetRun handles GET /runs/:id. Runs evicted from the engine's in-memory
// history remain queryable through their audit snapshot.
func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	runID := c.Params("id")

	run, err := h.engine.Run(runID)
	if err != nil && h.auditLog != nil {
		run, err = h.auditLog.GetRun(c.Context(), runID)
	}
	if err != nil {
		return notFound(c, "run_not_found", "run not found")
	}

	return c.JSON(RunResponse{Run: run})
}

// ListRuns handles GET /runs, optionally filtered by ?definition=.
func (h *APIHandlers) ListRuns(c fiber.Ctx) error {
	definition := c.Query("definition")

	active := h.engine.ActiveRuns()
	finished := h.engine.FinishedRuns(definition)

	runs := make([]*models.Run, 0, len(active)+len(finished))
	for _, run := range active {
		if definition != "" && run.DefinitionName != definition {
			continue
		}
		runs = append(runs, run)
	}
	runs = append(runs, finished...)

	return c.JSON(fiber.Map{"runs": runs, "count": len(runs)})
}

// Approve handles POST /runs/:id/approve.
func (h *APIHandlers) Approve(c fiber.Ctx) error {
	var req ApproveRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	action, err := h.engine.Approve(c.Context(), c.Params("id"), req.StepNumber, req.Actor)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{
		"status":      "approved",
		"run_id":      action.RunID,
		"next_action": string(action.Kind),
		"step_number": req.StepNumber,
	})
}

// Advance handles POST /runs/:id/advance: an execution context reporting
// the outcome of the current step.
func (h *APIHandlers) Advance(c fiber.Ctx) error {
	var req AdvanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	runID := c.Params("id")

	action, err := h.engine.Advance(c.Context(), runID, req.StepNumber, models.StepStatus(req.Status), req.Output)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{
		"status":      "advanced",
		"run_id":      runID,
		"next_action": string(action.Kind),
	})
}

// CancelRun handles POST /runs/:id/cancel.
func (h *APIHandlers) CancelRun(c fiber.Ctx) error {
	if err := h.engine.Cancel(c.Context(), c.Params("id")); err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{"status": "cancelled", "run_id": c.Params("id")})
}

// Status handles GET /status. ?include_metrics=true adds the aggregate
// counters.
func (h *APIHandlers) Status(c fiber.Ctx) error {
	active := h.engine.ActiveRuns()

	waiting := 0
	for _, run := range active {
		if run.Status == models.RunStatusWaitingApproval {
			waiting++
		}
	}

	healthy := true
	if h.auditLog != nil && h.auditLog.HealthCheck(c.Context()) != nil {
		healthy = false
	}

	resp := StatusResponse{
		Definitions:     len(h.registry.List()),
		ActiveRuns:      len(active),
		WaitingApproval: waiting,
		FinishedRuns:    len(h.engine.FinishedRuns("")),
		EngineHealthy:   healthy,
	}

	if c.Query("include_metrics") == "true" && h.metrics != nil {
		resp.Metrics = &MetricsResponse{
			Global:        h.metrics.Global(),
			PerDefinition: h.metrics.PerDefinition(),
		}
	}

	return c.JSON(resp)
}

// ListDefinitions handles GET /definitions.
func (h *APIHandlers) ListDefinitions(c fiber.Ctx) error {
	defs := h.registry.List()

	summaries := make([]DefinitionSummary, 0, len(defs))
	for _, def := range defs {
		summaries = append(summaries, summarize(def))
	}

	return c.JSON(fiber.Map{"definitions": summaries, "count": len(summaries)})
}

// GetDefinition handles GET /definitions/:name.
func (h *APIHandlers) GetDefinition(c fiber.Ctx) error {
	def, err := h.registry.Get(c.Params("name"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(def)
}

// ValidateDefinition handles GET /definitions/validate?name=. Findings are
// advisory; an invalid definition still loads, it just cannot do much.
func (h *APIHandlers) ValidateDefinition(c fiber.Ctx) error {
	name := c.Query("name")
	if name == "" {
		return badRequest(c, "name query parameter is required")
	}

	findings, err := h.registry.Validate(name)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(ValidateResponse{
		Definition: name,
		Valid:      len(findings) == 0,
		Findings:   findings,
	})
}

// HealthCheck handles GET /health.
func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":      "healthy",
		"definitions": len(h.registry.List()),
		"timestamp":   time.Now().UTC(),
	})
}

func hookResponse(result *dispatcher.Result, event models.Event, path string) HookResponse {
	resp := HookResponse{
		Status: string(result.Decision),
		Source: string(event.Source),
		Path:   path,
	}

	for _, started := range result.Started {
		resp.MatchedDefinitions = append(resp.MatchedDefinitions, started.DefinitionName)
		resp.RunIDs = append(resp.RunIDs, started.RunID)
	}
	for _, rejection := range result.Rejected {
		resp.MatchedDefinitions = append(resp.MatchedDefinitions, rejection.DefinitionName)
		resp.Rejected = append(resp.Rejected, rejection.DefinitionName+": "+rejection.Reason)
	}

	return resp
}
