package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/sequorhq/sequor/pkg/channels/gochannel"
	"github.com/sequorhq/sequor/pkg/channels/kafka"
	"github.com/sequorhq/sequor/pkg/eventbus"
)

// NewEventBus creates an event bus instance based on the provider. "none"
// returns nil; callers treat a nil bus as publishing disabled. Kafka brokers
// come from the KAFKA_BROKERS environment variable, comma-separated.
func NewEventBus(provider, serviceName string, logger *slog.Logger) eventbus.EventBus {
	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(kafkaBrokers(), "sequor-"+serviceName, watermill.NewSlogLogger(logger))
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			panic(fmt.Errorf("failed to create gochannel pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	case "none", "":
		return nil
	default:
		panic("unsupported event bus provider: " + provider)
	}
}

func kafkaBrokers() []string {
	var brokers []string

	for _, broker := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}

	return brokers
}
