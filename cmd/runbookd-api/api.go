// Package main provides the runbookd API server.
package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/runbookd/runbookd/pkg/cmd"
	"github.com/runbookd/runbookd/pkg/models"
	"github.com/runbookd/runbookd/pkg/web"
)

// UnmatchedTopic receives general hook events no definition matched.
const UnmatchedTopic = "runbookd.unmatched"

type API struct {
	core     *cmd.Core
	logger   *slog.Logger
	validate *validator.Validate
}

func NewAPI(core *cmd.Core, logger *slog.Logger) *API {
	return &API{
		core:     core,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// fallback forwards unmatched general hook events onto the bus so downstream
// consumers can pick them up; accepting an event and dropping it silently is
// not an option.
func (a *API) fallback(c fiber.Ctx, event models.Event) error {
	msg := message.NewMessage(a.core.EventBus.GenerateID(), []byte(event.Payload))
	msg.Metadata.Set("source", string(event.Source))
	msg.Metadata.Set("topic", event.Topic)

	if err := a.core.Publisher.Publish(UnmatchedTopic, msg); err != nil {
		a.logger.Error("Failed to forward unmatched event", "topic", event.Topic, "error", err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "forwarded",
		"topic":  event.Topic,
	})
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(
		a.core.Registry,
		a.core.Engine,
		a.core.Dispatcher,
		a.core.AuditLog,
		a.core.Metrics,
		a.validate,
		a.logger,
		a.fallback,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("runbookd API")
	})

	app.Post("/hooks/runbook/*", handlers.HookRunbook)
	app.Post("/hooks/event", handlers.HookEvent)

	runs := app.Group("/runs")
	runs.Post("/", handlers.StartRun)
	runs.Get("/", handlers.ListRuns)
	runs.Get("/:id", handlers.GetRun)
	runs.Post("/:id/approve", handlers.Approve)
	runs.Post("/:id/advance", handlers.Advance)
	runs.Post("/:id/cancel", handlers.CancelRun)

	defs := app.Group("/definitions")
	defs.Get("/", handlers.ListDefinitions)
	defs.Get("/validate", handlers.ValidateDefinition)
	defs.Get("/:name", handlers.GetDefinition)

	app.Get("/status", handlers.Status)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(ctx context.Context, port int) error {
	a.core.StartTimeoutPoller(ctx, 30*time.Second)

	return a.App().Listen(":" + strconv.Itoa(port))
}
