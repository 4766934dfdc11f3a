// Package schedule polls cron triggers and dispatches a synthetic event for
// each expression that fired since the previous poll.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/runbookd/runbookd/pkg/dispatcher"
	"github.com/runbookd/runbookd/pkg/matcher"
	"github.com/runbookd/runbookd/pkg/models"
)

// Family namespaces idempotency keys for cron dispatches.
const Family = "cron"

// DefaultPollInterval is how often the receiver evaluates the window.
const DefaultPollInterval = 30 * time.Second

// Receiver evaluates cron triggers over the window (lastCheck, now]. Window
// evaluation means ticks between polls are never missed; multiple ticks of
// the same expression in one window still dispatch only once.
type Receiver struct {
	definitions dispatcher.DefinitionSource
	dispatch    *dispatcher.Dispatcher
	interval    time.Duration
	logger      *slog.Logger

	mu        sync.Mutex
	lastCheck time.Time
	schedules map[string]*matcher.CronSchedule
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewReceiver creates a schedule receiver. A non-positive interval falls
// back to the default.
func NewReceiver(definitions dispatcher.DefinitionSource, dispatch *dispatcher.Dispatcher, interval time.Duration, logger *slog.Logger) *Receiver {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Receiver{
		definitions: definitions,
		dispatch:    dispatch,
		interval:    interval,
		logger:      logger.With("module", "schedule_receiver"),
		lastCheck:   time.Now().UTC(),
		schedules:   make(map[string]*matcher.CronSchedule),
	}
}

// Start begins the polling loop.
func (r *Receiver) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.cancel = cancel
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	r.logger.Info("Starting schedule receiver", "interval", r.interval)

	go func() {
		defer close(done)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Poll(ctx)
			}
		}
	}()

	return nil
}

// Stop stops the polling loop and waits for the in-flight poll to finish.
func (r *Receiver) Stop(_ context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	r.logger.Info("Schedule receiver stopped")

	return nil
}

// Poll evaluates one window. Exported so tests and manual triggers can drive
// the receiver without the ticker.
func (r *Receiver) Poll(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	fired := r.expressionsFiredLocked(r.lastCheck, now)

	dispatchFailed := false
	for _, expression := range fired {
		event := models.Event{
			Source:    models.SourceCron,
			Topic:     expression,
			Timestamp: now.Format(time.RFC3339),
		}

		// Cron dispatches carry no idempotency key; the window itself
		// guarantees at-most-once per expression per poll.
		result, err := r.dispatch.Dispatch(ctx, Family, event, "")
		if err != nil {
			r.logger.Warn("Cron dispatch failed, window will be retried",
				"expression", expression, "error", err)
			dispatchFailed = true

			continue
		}

		r.logger.Info("Cron tick dispatched",
			"expression", expression, "decision", result.Decision,
			"started", len(result.Started), "rejected", len(result.Rejected))
	}

	// Keep the window open on failure so the tick is retried next poll.
	if !dispatchFailed {
		r.lastCheck = now
	}
}

// expressionsFiredLocked collects the unique cron expressions with at least
// one tick in (lastCheck, now]. Expressions shared by several definitions
// fire once; matching fans the event out.
func (r *Receiver) expressionsFiredLocked(lastCheck, now time.Time) []string {
	seen := make(map[string]bool)
	fired := make([]string, 0)

	for _, def := range r.definitions.List() {
		for _, trigger := range def.Triggers {
			if trigger.Type != models.TriggerTypeCron || seen[trigger.Expression] {
				continue
			}
			seen[trigger.Expression] = true

			schedule, ok := r.schedules[trigger.Expression]
			if !ok {
				parsed, err := matcher.ParseCron(trigger.Expression)
				if err != nil {
					r.logger.Warn("Skipping invalid cron expression",
						"definition", def.Name, "expression", trigger.Expression, "error", err)

					continue
				}
				schedule = parsed
				r.schedules[trigger.Expression] = schedule
			}

			if schedule.FiresWithin(lastCheck, now) {
				fired = append(fired, trigger.Expression)
			}
		}
	}

	return fired
}
