// Package peripheral consumes hardware signal messages and routes them into
// the dispatcher as peripheral events.
package peripheral

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/runbookd/runbookd/pkg/dispatcher"
	"github.com/runbookd/runbookd/pkg/models"
)

// Family namespaces idempotency keys for peripheral dispatches.
const Family = "peripheral"

// IngestTopic is the broker topic the receiver consumes.
const IngestTopic = "runbookd.ingest.peripheral"

// Message metadata keys.
const (
	BoardMetadataKey  = "board"
	SignalMetadataKey = "signal"
)

// Receiver consumes board signal messages. The event topic is board/signal,
// which is what peripheral triggers match against.
type Receiver struct {
	subscriber message.Subscriber
	dispatch   *dispatcher.Dispatcher
	logger     *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReceiver creates a peripheral receiver.
func NewReceiver(subscriber message.Subscriber, dispatch *dispatcher.Dispatcher, logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Receiver{
		subscriber: subscriber,
		dispatch:   dispatch,
		logger:     logger.With("module", "peripheral_receiver"),
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

	r.logger.Info("Starting peripheral receiver", "topic", IngestTopic)

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

	r.logger.Info("Peripheral receiver stopped")

	return nil
}

func (r *Receiver) handle(ctx context.Context, msg *message.Message) {
	board := msg.Metadata.Get(BoardMetadataKey)
	signal := msg.Metadata.Get(SignalMetadataKey)
	if board == "" || signal == "" {
		r.logger.Warn("Dropping peripheral message without board/signal metadata",
			"message_id", msg.UUID)
		msg.Ack()

		return
	}

	event := models.Event{
		Source:    models.SourcePeripheral,
		Topic:     board + "/" + signal,
		Payload:   string(msg.Payload),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	result, err := r.dispatch.Dispatch(ctx, Family, event, "")
	if err != nil {
		r.logger.Error("Peripheral dispatch failed",
			"board", board, "signal", signal, "error", err)
		msg.Nack()

		return
	}

	r.logger.Debug("Peripheral signal dispatched",
		"board", board, "signal", signal, "decision", result.Decision,
		"started", len(result.Started), "rejected", len(result.Rejected))
	msg.Ack()
}
