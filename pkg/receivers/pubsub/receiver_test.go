package pubsub

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runbookd/runbookd/pkg/audit"
	"github.com/runbookd/runbookd/pkg/dispatcher"
	"github.com/runbookd/runbookd/pkg/engine"
	"github.com/runbookd/runbookd/pkg/models"
	"github.com/runbookd/runbookd/pkg/persistence/memory"
)

type staticDefinitions []*models.Definition

func (s staticDefinitions) List() []*models.Definition { return s }

func newTestReceiver(t *testing.T) (*Receiver, *engine.Engine, *audit.Logger) {
	t.Helper()

	def := &models.Definition{
		Name:          "ack-alert",
		Priority:      models.PriorityNormal,
		ExecutionMode: models.ExecutionModeAuto,
		MaxConcurrent: 5,
		Triggers: []models.Trigger{
			{Type: models.TriggerTypePubSub, Topic: "alerts/#"},
		},
		Steps: []models.Step{
			{Number: 1, Title: "acknowledge"},
		},
	}

	auditLog := audit.NewLogger(memory.NewStore(), nil)
	eng := engine.NewEngine(engine.DefaultConfig(), auditLog, nil, nil)
	d := dispatcher.NewDispatcher(staticDefinitions{def}, eng, auditLog, nil, nil, nil, nil)

	return NewReceiver(nil, d, nil), eng, auditLog
}

func newMessage(topic, payload string) *message.Message {
	msg := message.NewMessage(watermill.NewUUID(), []byte(payload))
	if topic != "" {
		msg.Metadata.Set(TopicMetadataKey, topic)
	}

	return msg
}

func TestHandle_DispatchesAndAcks(t *testing.T) {
	recv, eng, _ := newTestReceiver(t)

	msg := newMessage("alerts/db/critical", `{"severity": "critical"}`)
	recv.handle(t.Context(), msg)

	select {
	case <-msg.Acked():
	default:
		t.Fatal("message was not acked")
	}

	runs := eng.ActiveRuns()
	require.Len(t, runs, 1)
	assert.Equal(t, "ack-alert", runs[0].DefinitionName)
	assert.Equal(t, `{"severity": "critical"}`, runs[0].TriggerEvent.Payload)
	assert.Equal(t, models.SourcePubSub, runs[0].TriggerEvent.Source)
}

func TestHandle_NoMatchStillAcks(t *testing.T) {
	recv, eng, auditLog := newTestReceiver(t)

	msg := newMessage("deploys/api", "{}")
	recv.handle(t.Context(), msg)

	select {
	case <-msg.Acked():
	default:
		t.Fatal("message was not acked")
	}

	assert.Empty(t, eng.ActiveRuns())

	records, err := auditLog.DispatchRecords(t.Context(), Family)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "no_match", records[0].Decision)
}

func TestHandle_MissingTopicDropped(t *testing.T) {
	recv, eng, auditLog := newTestReceiver(t)

	msg := newMessage("", "{}")
	recv.handle(t.Context(), msg)

	select {
	case <-msg.Acked():
	default:
		t.Fatal("message was not acked")
	}

	assert.Empty(t, eng.ActiveRuns())

	// A drop never reaches the dispatcher, so no audit entry exists.
	records, err := auditLog.DispatchRecords(t.Context(), Family)
	require.NoError(t, err)
	assert.Empty(t, records)
}
