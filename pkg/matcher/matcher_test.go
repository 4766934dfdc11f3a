package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/runbookd/runbookd/pkg/models"
)

func TestMatch_Webhook(t *testing.T) {
	trigger := models.Trigger{Type: models.TriggerTypeWebhook, Path: "/deploy/rollback"}

	assert.True(t, Match(trigger, models.Event{Source: models.SourceWebhook, Topic: "/deploy/rollback"}))
	assert.False(t, Match(trigger, models.Event{Source: models.SourceWebhook, Topic: "/deploy/rollback/"}))
	assert.False(t, Match(trigger, models.Event{Source: models.SourcePubSub, Topic: "/deploy/rollback"}))
}

func TestMatch_PubSub(t *testing.T) {
	trigger := models.Trigger{Type: models.TriggerTypePubSub, Topic: "alerts/+/critical"}

	assert.True(t, Match(trigger, models.Event{Source: models.SourcePubSub, Topic: "alerts/db/critical"}))
	assert.False(t, Match(trigger, models.Event{Source: models.SourcePubSub, Topic: "alerts/db/warning"}))
	assert.False(t, Match(trigger, models.Event{Source: models.SourceWebhook, Topic: "alerts/db/critical"}))
}

func TestMatch_PubSubCondition(t *testing.T) {
	trigger := models.Trigger{
		Type:      models.TriggerTypePubSub,
		Topic:     "metrics/cpu",
		Condition: "$.value > 90",
	}

	event := models.Event{Source: models.SourcePubSub, Topic: "metrics/cpu"}

	event.Payload = `{"value": 95}`
	assert.True(t, Match(trigger, event))

	event.Payload = `{"value": 85}`
	assert.False(t, Match(trigger, event))

	// Fail-closed: topic matches but the condition cannot be evaluated.
	event.Payload = "{broken"
	assert.False(t, Match(trigger, event))
}

func TestMatch_Cron(t *testing.T) {
	trigger := models.Trigger{Type: models.TriggerTypeCron, Expression: "*/5 * * * *"}

	assert.True(t, Match(trigger, models.Event{Source: models.SourceCron, Topic: "*/5 * * * *"}))
	assert.False(t, Match(trigger, models.Event{Source: models.SourceCron, Topic: "0 * * * *"}))
}

func TestMatch_Peripheral(t *testing.T) {
	trigger := models.Trigger{Type: models.TriggerTypePeripheral, Board: "rack-3", Signal: "overtemp"}

	assert.True(t, Match(trigger, models.Event{Source: models.SourcePeripheral, Topic: "rack-3/overtemp"}))
	assert.False(t, Match(trigger, models.Event{Source: models.SourcePeripheral, Topic: "rack-3/fan_fail"}))
}

func TestMatch_ManualNeverMatches(t *testing.T) {
	trigger := models.Trigger{Type: models.TriggerTypeManual}

	for _, source := range []models.EventSource{
		models.SourceManual, models.SourceWebhook, models.SourcePubSub,
		models.SourceCron, models.SourcePeripheral,
	} {
		assert.False(t, Match(trigger, models.Event{Source: source, Topic: "anything"}))
	}
}

func TestMatchDefinitions(t *testing.T) {
	defs := []*models.Definition{
		{
			Name: "db-failover",
			Triggers: []models.Trigger{
				{Type: models.TriggerTypePubSub, Topic: "alerts/db/#"},
			},
		},
		{
			Name: "page-oncall",
			Triggers: []models.Trigger{
				{Type: models.TriggerTypePubSub, Topic: "alerts/#"},
				{Type: models.TriggerTypeWebhook, Path: "/page"},
			},
		},
		{
			Name: "nightly-report",
			Triggers: []models.Trigger{
				{Type: models.TriggerTypeCron, Expression: "0 3 * * *"},
			},
		},
	}

	event := models.Event{Source: models.SourcePubSub, Topic: "alerts/db/replication"}
	matched := MatchDefinitions(defs, event)

	names := make([]string, 0, len(matched))
	for _, def := range matched {
		names = append(names, def.Name)
	}
	assert.Equal(t, []string{"db-failover", "page-oncall"}, names)

	// A definition with several matching triggers appears once.
	event = models.Event{Source: models.SourceWebhook, Topic: "/page"}
	matched = MatchDefinitions(defs, event)
	assert.Len(t, matched, 1)
	assert.Equal(t, "page-oncall", matched[0].Name)

	event = models.Event{Source: models.SourceCron, Topic: "*/1 * * * *"}
	assert.Empty(t, MatchDefinitions(defs, event))
}
