// Package dispatcher is the single fan-in point for incoming events. Every
// source (webhook, pubsub, cron, peripheral, manual) routes through Dispatch
// so deduplication, matching, admission, and auditing happen in one place.
package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/runbookd/runbookd/pkg/audit"
	"github.com/runbookd/runbookd/pkg/engine"
	"github.com/runbookd/runbookd/pkg/eventbus"
	"github.com/runbookd/runbookd/pkg/events"
	"github.com/runbookd/runbookd/pkg/matcher"
	"github.com/runbookd/runbookd/pkg/models"
	"github.com/runbookd/runbookd/pkg/otelhelper"
)

// Decision classifies the overall outcome of one dispatch.
type Decision string

const (
	DecisionAccepted  Decision = "accepted"
	DecisionDuplicate Decision = "duplicate"
	DecisionRejected  Decision = "rejected"
	DecisionNoMatch   Decision = "no_match"
)

// Started describes one run the dispatch admitted.
type Started struct {
	RunID          string
	DefinitionName string
	Action         engine.Action
}

// Rejection describes one matched definition that admission refused.
type Rejection struct {
	DefinitionName string
	Reason         string
}

// Result is the full outcome of one dispatch: the overall decision plus the
// per-definition breakdown.
type Result struct {
	Decision  Decision
	Started   []Started
	Rejected  []Rejection
	Duplicate bool
}

// DefinitionSource supplies the current definition snapshot.
type DefinitionSource interface {
	List() []*models.Definition
}

// Dispatcher routes events into the engine.
type Dispatcher struct {
	definitions DefinitionSource
	engine      *engine.Engine
	auditLog    *audit.Logger
	publisher   eventbus.EventPublisher
	idempotency IdempotencyStore
	tracer      trace.Tracer
	logger      *slog.Logger
}

// NewDispatcher creates a dispatcher. The audit logger, publisher, and
// tracer may be nil; the idempotency store may be nil to disable
// deduplication.
func NewDispatcher(
	definitions DefinitionSource,
	eng *engine.Engine,
	auditLog *audit.Logger,
	publisher eventbus.EventPublisher,
	idempotency IdempotencyStore,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		definitions: definitions,
		engine:      eng,
		auditLog:    auditLog,
		publisher:   publisher,
		idempotency: idempotency,
		tracer:      tracer,
		logger:      logger,
	}
}

// Dispatch deduplicates, matches, and admits one event. The family
// namespaces idempotency keys, so distinct hook surfaces never suppress
// each other. An empty idempotencyKey skips deduplication.
//
// The returned error covers infrastructure failures only; admission refusals
// surface in the result as rejections.
func (d *Dispatcher) Dispatch(ctx context.Context, family string, event models.Event, idempotencyKey string) (*Result, error) {
	var span trace.Span
	if d.tracer != nil {
		ctx, span = otelhelper.StartSpan(ctx, d.tracer, "dispatch",
			attribute.String(otelhelper.HookFamilyKey, family),
			attribute.String(otelhelper.EventSourceKey, string(event.Source)),
			attribute.String(otelhelper.EventTopicKey, event.Topic),
		)
		defer span.End()
	}

	result, err := d.dispatch(ctx, family, event, idempotencyKey)
	if span != nil {
		if err != nil {
			otelhelper.SetError(span, err)
		} else {
			span.SetAttributes(attribute.String(otelhelper.DecisionKey, string(result.Decision)))
		}
	}

	return result, err
}

func (d *Dispatcher) dispatch(ctx context.Context, family string, event models.Event, idempotencyKey string) (*Result, error) {
	if idempotencyKey != "" && d.idempotency != nil {
		fresh, err := d.idempotency.RecordIfNew(ctx, family, idempotencyKey)
		if err != nil {
			return nil, err
		}
		if !fresh {
			d.logger.InfoContext(ctx, "Duplicate dispatch suppressed",
				"family", family, "idempotency_key", idempotencyKey)
			result := &Result{Decision: DecisionDuplicate, Duplicate: true}
			d.record(ctx, family, event, result)
			d.announce(ctx, event, result)

			return result, nil
		}
	}

	matched := matcher.MatchDefinitions(d.definitions.List(), event)
	if len(matched) == 0 {
		d.logger.DebugContext(ctx, "No definition matched event",
			"family", family, "source", event.Source, "topic", event.Topic)
		result := &Result{Decision: DecisionNoMatch}
		d.record(ctx, family, event, result)
		d.announce(ctx, event, result)

		return result, nil
	}

	result := &Result{}
	for _, def := range matched {
		run, action, err := d.engine.StartRun(ctx, def, event)
		if err != nil {
			reason := admissionReason(err)
			d.logger.InfoContext(ctx, "Dispatch rejected definition",
				"definition", def.Name, "reason", reason)
			result.Rejected = append(result.Rejected, Rejection{
				DefinitionName: def.Name,
				Reason:         reason,
			})

			continue
		}

		d.logger.InfoContext(ctx, "Dispatch started run",
			"definition", def.Name, "run_id", run.RunID, "action", action.Kind)
		result.Started = append(result.Started, Started{
			RunID:          run.RunID,
			DefinitionName: def.Name,
			Action:         action,
		})
	}

	if len(result.Started) > 0 {
		result.Decision = DecisionAccepted
	} else {
		result.Decision = DecisionRejected
	}

	d.record(ctx, family, event, result)
	d.announce(ctx, event, result)

	return result, nil
}

// record writes one audit entry per dispatch outcome. Rejections and
// no-match decisions are audited too; silence is never an answer.
func (d *Dispatcher) record(ctx context.Context, family string, event models.Event, result *Result) {
	if d.auditLog == nil {
		return
	}

	now := time.Now().UTC()
	records := make([]audit.DispatchRecord, 0, 1+len(result.Started)+len(result.Rejected))

	switch result.Decision {
	case DecisionDuplicate, DecisionNoMatch:
		records = append(records, audit.DispatchRecord{
			Family:    family,
			Decision:  string(result.Decision),
			Source:    event.Source,
			Topic:     event.Topic,
			Timestamp: now,
		})
	default:
		for _, started := range result.Started {
			records = append(records, audit.DispatchRecord{
				Family:         family,
				Decision:       string(DecisionAccepted),
				DefinitionName: started.DefinitionName,
				RunID:          started.RunID,
				Source:         event.Source,
				Topic:          event.Topic,
				Timestamp:      now,
			})
		}
		for _, rejection := range result.Rejected {
			records = append(records, audit.DispatchRecord{
				Family:         family,
				Decision:       string(DecisionRejected),
				Reason:         rejection.Reason,
				DefinitionName: rejection.DefinitionName,
				Source:         event.Source,
				Topic:          event.Topic,
				Timestamp:      now,
			})
		}
	}

	for _, record := range records {
		if err := d.auditLog.RecordDispatch(ctx, record); err != nil {
			d.logger.WarnContext(ctx, "Failed to audit dispatch decision",
				"family", family, "decision", record.Decision, "error", err)
		}
	}
}

// announce publishes the overall decision on the lifecycle bus so external
// consumers can follow dispatch outcomes without polling the audit trail.
func (d *Dispatcher) announce(ctx context.Context, event models.Event, result *Result) {
	if d.publisher == nil {
		return
	}

	runID := ""
	definitionName := ""
	if len(result.Started) == 1 {
		runID = result.Started[0].RunID
		definitionName = result.Started[0].DefinitionName
	}

	reason := ""
	if len(result.Rejected) > 0 {
		reason = result.Rejected[0].Reason
	}

	decided := events.DispatchDecided{
		BaseEvent: events.NewBaseEvent(events.DispatchDecidedEvent, runID, definitionName),
		Source:    event.Source,
		Decision:  string(result.Decision),
		Reason:    reason,
	}

	if err := d.publisher.Publish(ctx, event.Topic, decided); err != nil {
		d.logger.WarnContext(ctx, "Failed to publish dispatch decision",
			"decision", result.Decision, "error", err)
	}
}

func admissionReason(err error) string {
	switch {
	case errors.Is(err, engine.ErrCooldown):
		return "cooldown"
	case errors.Is(err, engine.ErrMaxConcurrent):
		return "concurrency_limit"
	case errors.Is(err, engine.ErrNoSteps):
		return "no_steps"
	default:
		return err.Error()
	}
}
