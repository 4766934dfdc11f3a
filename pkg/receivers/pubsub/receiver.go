// Package pubsub consumes broker messages and routes them into the
// dispatcher as pubsub events.
package pubsub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/runbookd/runbookd/pkg/dispatcher"
	"github.com/runbookd/runbookd/pkg/models"
)

// Family namespaces idempotency keys for pubsub dispatches.
const Family = "pubsub"

// IngestTopic is the broker topic the receiver consumes.
const IngestTopic = "runbookd.ingest.pubsub"

// Message metadata keys.
const (
	TopicMetadataKey          = "topic"
	IdempotencyKeyMetadataKey = "idempotency_key"
)

// Receiver consumes messages from a watermill subscriber and dispatches one
// event per message. The logical topic used for trigger matching comes from
// message metadata, not the broker topic, so one ingest stream can carry
// many logical topics.
type Receiver struct {
	subscriber message.Subscriber
	dispatch   *dispatcher.Dispatcher
	logger     *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReceiver creates a pubsub receiver.
func NewReceiver(subscriber message.Subscriber, dispatch *dispatcher.Dispatcher, logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Receiver{
		subscriber: subscriber,
		dispatch:   dispatch,
		logger:     logger.With("module", "pubsub_receiver"),
	}
}

// Start subscribes to the ingest topic and begins consuming.
func (r *Receiver) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	messages, err := r.subscriber.Subscribe(ctx, IngestTopic)
	if err != nil {
		cancel()
		return err
	}

	r.mu.Lock()
	r.cancel = cancel
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	r.logger.Info("Starting pubsub receiver", "topic", IngestTopic)

	go func() {
		defer close(done)

		for msg := range messages {
			r.handle(ctx, msg)
		}
	}()

	return nil
}

// Stop cancels the subscription and waits for the consume loop to drain.
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

	r.logger.Info("Pubsub receiver stopped")

	return nil
}

func (r *Receiver) handle(ctx context.Context, msg *message.Message) {
	topic := msg.Metadata.Get(TopicMetadataKey)
	if topic == "" {
		r.logger.Warn("Dropping pubsub message without topic metadata",
			"message_id", msg.UUID)
		msg.Ack()

		return
	}

	event := models.Event{
		Source:    models.SourcePubSub,
		Topic:     topic,
		Payload:   string(msg.Payload),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	result, err := r.dispatch.Dispatch(ctx, Family, event, msg.Metadata.Get(IdempotencyKeyMetadataKey))
	if err != nil {
		r.logger.Error("Pubsub dispatch failed", "topic", topic, "error", err)
		msg.Nack()

		return
	}

	r.logger.Debug("Pubsub message dispatched",
		"topic", topic, "decision", result.Decision,
		"started", len(result.Started), "rejected", len(result.Rejected))
	msg.Ack()
}
