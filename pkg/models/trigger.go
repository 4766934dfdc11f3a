package models

import "fmt"

// TriggerType tags the trigger variant. Matching dispatches on this tag, one
// matcher arm per type.
type TriggerType string

const (
	TriggerTypeManual     TriggerType = "manual"
	TriggerTypeWebhook    TriggerType = "webhook"
	TriggerTypePubSub     TriggerType = "pubsub"
	TriggerTypeCron       TriggerType = "cron"
	TriggerTypePeripheral TriggerType = "peripheral"
)

// Trigger is a tagged variant: Type selects which fields are meaningful.
//
//	manual:     no fields, never matched automatically
//	webhook:    Path
//	pubsub:     Topic, optional Condition
//	cron:       Expression
//	peripheral: Board, Signal, optional Condition
type Trigger struct {
	Type       TriggerType `json:"type"                 toml:"type"                 validate:"required,oneof=manual webhook pubsub cron peripheral"`
	Path       string      `json:"path,omitempty"       toml:"path,omitempty"`
	Topic      string      `json:"topic,omitempty"      toml:"topic,omitempty"`
	Expression string      `json:"expression,omitempty" toml:"expression,omitempty"`
	Board      string      `json:"board,omitempty"      toml:"board,omitempty"`
	Signal     string      `json:"signal,omitempty"     toml:"signal,omitempty"`
	Condition  string      `json:"condition,omitempty"  toml:"condition,omitempty"`
}

// String renders a short "type:target" label for logs and CLI listings.
func (t Trigger) String() string {
	switch t.Type {
	case TriggerTypeWebhook:
		return "webhook:" + t.Path
	case TriggerTypePubSub:
		return "pubsub:" + t.Topic
	case TriggerTypeCron:
		return "cron:" + t.Expression
	case TriggerTypePeripheral:
		return fmt.Sprintf("peripheral:%s/%s", t.Board, t.Signal)
	default:
		return string(t.Type)
	}
}

// EventSource identifies the channel an event arrived on. A trigger only
// matches events from its own source.
type EventSource string

const (
	SourceManual     EventSource = "manual"
	SourcePubSub     EventSource = "pubsub"
	SourceWebhook    EventSource = "webhook"
	SourceCron       EventSource = "cron"
	SourcePeripheral EventSource = "peripheral"
)

// Event is an incoming occurrence that may trigger one or more definitions.
// Topic carries the pub/sub topic, webhook path, cron expression, or
// board/signal composite depending on the source.
type Event struct {
	Source    EventSource `json:"source"`
	Topic     string      `json:"topic,omitempty"`
	Payload   string      `json:"payload,omitempty"`
	Timestamp string      `json:"timestamp"`
}
