// Package eventbus provides event-driven communication infrastructure for
// run lifecycle notifications.
package eventbus

import (
	"context"

	"github.com/runbookd/runbookd/pkg/events"
)

// Event is any run lifecycle event the bus can carry.
type Event interface {
	GetType() events.EventType
}

// EventPublisher emits lifecycle events. The key partitions delivery; run
// IDs keep one run's events ordered, topics group dispatch decisions.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber routes received events to handlers registered per event
// type. Handle must be called before Subscribe starts the consume loop.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler)
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

// EventBus is the full publish/subscribe surface a service wires up.
type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
