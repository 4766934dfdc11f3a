package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/runbookd/runbookd/pkg/channels/gochannel"
	"github.com/runbookd/runbookd/pkg/channels/kafka"
)

// NewChannel creates the raw publisher/subscriber pair for the given
// provider. "gochannel" keeps everything in-process; "kafka" reads brokers
// from KAFKA_BROKERS.
func NewChannel(provider, serviceName string, logger *slog.Logger) (message.Publisher, message.Subscriber, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, serviceName)
		if err != nil {
			return nil, nil, err
		}

		return pub, sub, nil
	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, nil, err
		}

		return pub, sub, nil
	default:
		return nil, nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
