package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/runbookd/runbookd/pkg/audit"
	"github.com/runbookd/runbookd/pkg/dispatcher"
	"github.com/runbookd/runbookd/pkg/engine"
	"github.com/runbookd/runbookd/pkg/eventbus"
	"github.com/runbookd/runbookd/pkg/models"
	"github.com/runbookd/runbookd/pkg/otelhelper"
	"github.com/runbookd/runbookd/pkg/persistence"
	"github.com/runbookd/runbookd/pkg/registry"
)

// CoreOptions selects the backends every service assembles.
type CoreOptions struct {
	ServiceName      string
	RunbooksDir      string
	DatabaseURL      string
	EventBusProvider string
	RedisURL         string
	DefaultMode      models.ExecutionMode
	ApprovalTimeout  time.Duration
	TracingEnabled   bool
}

// Core bundles the shared service assembly: registry, engine, dispatcher,
// audit trail, and the event channel. Each process owns its engine; the
// audit store is the shared source of truth across processes.
type Core struct {
	Registry   *registry.Registry
	Store      persistence.Store
	AuditLog   *audit.Logger
	Metrics    *audit.Collector
	Engine     *engine.Engine
	Dispatcher *dispatcher.Dispatcher
	EventBus   eventbus.EventBus
	Publisher  message.Publisher
	Subscriber message.Subscriber
	Tracer     trace.Tracer

	logger *slog.Logger
}

// NewCore assembles the service core and restores persisted runs.
func NewCore(ctx context.Context, opts CoreOptions, logger *slog.Logger) (*Core, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := NewStore(opts.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	pub, sub, err := NewChannel(opts.EventBusProvider, opts.ServiceName, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create event channel: %w", err)
	}
	bus := eventbus.NewWatermillEventBus(pub, sub)

	var tracer trace.Tracer
	if opts.TracingEnabled {
		tracer, err = otelhelper.NewTracer(ctx, opts.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
	}

	reg := registry.NewRegistry(opts.RunbooksDir, opts.DefaultMode, logger)

	auditLog := audit.NewLogger(store, logger)
	metrics := audit.NewCollector()
	trail := audit.NewTrail(auditLog, metrics)

	engineCfg := engine.DefaultConfig()
	if opts.ApprovalTimeout > 0 {
		engineCfg.ApprovalTimeout = opts.ApprovalTimeout
	}

	eng := engine.NewEngine(engineCfg, trail, bus, logger)

	idempotency, err := newIdempotencyStore(opts.RedisURL)
	if err != nil {
		return nil, err
	}

	disp := dispatcher.NewDispatcher(reg, eng, auditLog, bus, idempotency, tracer, logger)

	core := &Core{
		Registry:   reg,
		Store:      store,
		AuditLog:   auditLog,
		Metrics:    metrics,
		Engine:     eng,
		Dispatcher: disp,
		EventBus:   bus,
		Publisher:  pub,
		Subscriber: sub,
		Tracer:     tracer,
		logger:     logger,
	}

	core.restoreRuns(ctx)

	return core, nil
}

// StartTimeoutPoller runs the approval timeout policy until the context is
// cancelled.
func (c *Core) StartTimeoutPoller(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				actions := c.Engine.CheckApprovalTimeouts(ctx)
				for _, action := range actions {
					c.logger.InfoContext(ctx, "Timeout policy resumed run",
						"run_id", action.RunID, "definition", action.DefinitionName)
				}
			}
		}
	}()
}

// Close releases the core's resources.
func (c *Core) Close(ctx context.Context) {
	if err := c.EventBus.Close(); err != nil {
		c.logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
	}
	if err := c.Store.Close(ctx); err != nil {
		c.logger.ErrorContext(ctx, "Failed to close store", "error", err)
	}
}

// restoreRuns reloads persisted run snapshots so waiting and parked runs
// survive restarts. Runs whose definition disappeared or no longer matches
// their step position are left in the store but not reactivated.
func (c *Core) restoreRuns(ctx context.Context) {
	runs, err := c.AuditLog.LoadRuns(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to load persisted runs", "error", err)
		return
	}

	restored := 0
	for _, run := range runs {
		var def *models.Definition
		if d, err := c.Registry.Get(run.DefinitionName); err == nil {
			def = d
		}

		if err := c.Engine.Restore(run, def); err != nil {
			c.logger.WarnContext(ctx, "Failed to restore run",
				"run_id", run.RunID, "error", err)
			continue
		}
		restored++
	}

	if restored > 0 {
		c.logger.InfoContext(ctx, "Restored persisted runs", "count", restored)
	}
}

func newIdempotencyStore(redisURL string) (dispatcher.IdempotencyStore, error) {
	if redisURL == "" {
		return dispatcher.NewMemoryIdempotencyStore(dispatcher.DefaultIdempotencyTTL, dispatcher.DefaultIdempotencyMaxKeys), nil
	}

	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	return dispatcher.NewRedisIdempotencyStore(redis.NewClient(redisOpts), dispatcher.DefaultIdempotencyTTL), nil
}
