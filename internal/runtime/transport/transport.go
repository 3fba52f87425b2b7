// Package transport builds the Watermill publisher/subscriber pair that
// carries inbound messages to the bridge and replies back to senders.
package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/streambridge/internal/runtime/config"
)

// Transport combines a publisher and subscriber pair produced by a factory.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Factory abstracts how the bridge initialises its bus transport.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)
}

// DefaultFactory returns the built-in transport factory keyed on
// Config.BusSystem.
func DefaultFactory() Factory {
	return defaultFactory{}
}

type defaultFactory struct{}

func (defaultFactory) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	if conf == nil {
		return Transport{}, fmt.Errorf("config is required")
	}

	switch strings.ToLower(conf.BusSystem) {
	case "", "channel":
		return channelTransport(conf, logger)
	case "kafka":
		return kafkaTransport(conf, logger)
	case "rabbitmq":
		return rabbitTransport(conf, logger)
	case "nats":
		return natsTransport(conf, logger)
	case "nats-jetstream":
		return jetstreamTransport(conf, logger)
	case "http":
		return httpTransport(conf, logger)
	case "aws":
		return awsTransport(ctx, conf, logger)
	default:
		return Transport{}, fmt.Errorf("unknown bus transport: %q", conf.BusSystem)
	}
}
