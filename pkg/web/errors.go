package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/runbookd/runbookd/pkg/engine"
	"github.com/runbookd/runbookd/pkg/registry"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, kind, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, kind, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleEngineError maps engine errors onto problem responses.
func handleEngineError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, engine.ErrRunNotFound):
		return notFound(c, "run_not_found", "run not found")
	case errors.Is(err, registry.ErrDefinitionNotFound):
		return notFound(c, "definition_not_found", "definition not found")
	case errors.Is(err, engine.ErrStepMismatch):
		return conflict(c, "step_mismatch", err.Error())
	case errors.Is(err, engine.ErrInvalidTransition):
		return conflict(c, "invalid_transition", err.Error())
	case errors.Is(err, engine.ErrCooldown), errors.Is(err, engine.ErrMaxConcurrent):
		return conflict(c, "admission_rejected", err.Error())
	case errors.Is(err, engine.ErrNoSteps):
		return badRequest(c, err.Error())
	default:
		return internalError(c, err)
	}
}
