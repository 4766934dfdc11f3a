// Package main provides the runbookd dispatcher service: the headless
// fan-in that consumes broker and schedule events and admits runs.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/runbookd/runbookd/pkg/cmd"
	"github.com/runbookd/runbookd/pkg/receivers/peripheral"
	"github.com/runbookd/runbookd/pkg/receivers/pubsub"
	"github.com/runbookd/runbookd/pkg/receivers/schedule"
)

type Service struct {
	core         *cmd.Core
	logger       *slog.Logger
	pollInterval time.Duration
}

func NewService(core *cmd.Core, pollInterval time.Duration, logger *slog.Logger) *Service {
	return &Service{core: core, logger: logger, pollInterval: pollInterval}
}

// Run starts all receivers and blocks until the context is cancelled or a
// termination signal arrives.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pubsubReceiver := pubsub.NewReceiver(s.core.Subscriber, s.core.Dispatcher, s.logger)
	peripheralReceiver := peripheral.NewReceiver(s.core.Subscriber, s.core.Dispatcher, s.logger)
	scheduleReceiver := schedule.NewReceiver(s.core.Registry, s.core.Dispatcher, s.pollInterval, s.logger)

	if err := pubsubReceiver.Start(ctx); err != nil {
		return err
	}
	if err := peripheralReceiver.Start(ctx); err != nil {
		return err
	}
	if err := scheduleReceiver.Start(ctx); err != nil {
		return err
	}

	s.core.StartTimeoutPoller(ctx, s.pollInterval)

	s.logger.InfoContext(ctx, "Dispatcher service started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		s.logger.InfoContext(ctx, "Received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	for _, stop := range []func(context.Context) error{
		scheduleReceiver.Stop, peripheralReceiver.Stop, pubsubReceiver.Stop,
	} {
		if err := stop(shutdownCtx); err != nil {
			s.logger.Error("Receiver shutdown failed", "error", err)
		}
	}

	s.logger.Info("Dispatcher service stopped")

	return nil
}
