package peripheral

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

func newTestReceiver(t *testing.T) (*Receiver, *engine.Engine) {
	t.Helper()

	def := &models.Definition{
		Name:          "rack-overtemp",
		Priority:      models.PriorityHigh,
		ExecutionMode: models.ExecutionModeAuto,
		MaxConcurrent: 5,
		Triggers: []models.Trigger{
			{
				Type:      models.TriggerTypePeripheral,
				Board:     "rack-3",
				Signal:    "overtemp",
				Condition: "$.temp_c > 80",
			},
		},
		Steps: []models.Step{
			{Number: 1, Title: "throttle workloads"},
		},
	}

	auditLog := audit.NewLogger(memory.NewStore(), nil)
	eng := engine.NewEngine(engine.DefaultConfig(), auditLog, nil, nil)
	d := dispatcher.NewDispatcher(staticDefinitions{def}, eng, auditLog, nil, nil, nil, nil)

	return NewReceiver(nil, d, nil), eng
}

func signalMessage(board, signal, payload string) *message.Message {
	msg := message.NewMessage(watermill.NewUUID(), []byte(payload))
	if board != "" {
		msg.Metadata.Set(BoardMetadataKey, board)
	}
	if signal != "" {
		msg.Metadata.Set(SignalMetadataKey, signal)
	}

	return msg
}

func TestHandle_MatchingSignalStartsRun(t *testing.T) {
	recv, eng := newTestReceiver(t)

	msg := signalMessage("rack-3", "overtemp", `{"temp_c": 92}`)
	recv.handle(t.Context(), msg)

	select {
	case <-msg.Acked():
	default:
		t.Fatal("message was not acked")
	}

	runs := eng.ActiveRuns()
	require.Len(t, runs, 1)
	assert.Equal(t, "rack-overtemp", runs[0].DefinitionName)
	assert.Equal(t, "rack-3/overtemp", runs[0].TriggerEvent.Topic)
}

func TestHandle_ConditionFilters(t *testing.T) {
	recv, eng := newTestReceiver(t)

	recv.handle(t.Context(), signalMessage("rack-3", "overtemp", `{"temp_c": 60}`))
	assert.Empty(t, eng.ActiveRuns())

	// Unreadable payloads fail closed.
	recv.handle(t.Context(), signalMessage("rack-3", "overtemp", "garbage"))
	assert.Empty(t, eng.ActiveRuns())
}

func TestHandle_WrongBoardNoMatch(t *testing.T) {
	recv, eng := newTestReceiver(t)

	recv.handle(t.Context(), signalMessage("rack-7", "overtemp", `{"temp_c": 92}`))
	assert.Empty(t, eng.ActiveRuns())
}
