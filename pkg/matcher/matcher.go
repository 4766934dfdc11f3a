// Package matcher implements trigger matching for incoming events. All four
// automatic trigger kinds share one contract: Match is pure, deterministic,
// and never returns an error; ambiguity resolves to no-match.
package matcher

import (
	"github.com/runbookd/runbookd/pkg/condition"
	"github.com/runbookd/runbookd/pkg/models"
)

// Match reports whether a single trigger matches an incoming event. Manual
// triggers never match automatically; they are reachable only through an
// explicit start call.
func Match(trigger models.Trigger, event models.Event) bool {
	switch trigger.Type {
	case models.TriggerTypeWebhook:
		if event.Source != models.SourceWebhook {
			return false
		}
		// Exact equality, no trailing-slash normalization.
		return event.Topic == trigger.Path

	case models.TriggerTypePubSub:
		if event.Source != models.SourcePubSub {
			return false
		}

		if !TopicMatches(trigger.Topic, event.Topic) {
			return false
		}

		return condition.Evaluate(trigger.Condition, event.Payload)

	case models.TriggerTypeCron:
		if event.Source != models.SourceCron {
			return false
		}
		// Cron events carry the raw expression as their topic; window
		// bookkeeping happens in the schedule receiver.
		return event.Topic == trigger.Expression

	case models.TriggerTypePeripheral:
		if event.Source != models.SourcePeripheral {
			return false
		}

		if event.Topic != trigger.Board+"/"+trigger.Signal {
			return false
		}

		return condition.Evaluate(trigger.Condition, event.Payload)

	default:
		return false
	}
}

// MatchDefinitions returns the definitions with at least one trigger matching
// the event.
func MatchDefinitions(defs []*models.Definition, event models.Event) []*models.Definition {
	var matched []*models.Definition

	for _, def := range defs {
		for _, trigger := range def.Triggers {
			if Match(trigger, event) {
				matched = append(matched, def)

				break
			}
		}
	}

	return matched
}
