package eventbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kobliat/kobliat-stack/common/logging"
)

// TransportKind selects the transport a Bus publishes through.
type TransportKind string

const (
	TransportRESTProxy   TransportKind = "restproxy"
	TransportEventBridge TransportKind = "eventbridge"
	TransportLog         TransportKind = "log"
	TransportNATS        TransportKind = "nats"
	TransportKafka       TransportKind = "kafka"
)

// Config is resolved once at startup and never re-read.
type Config struct {
	Transport     TransportKind     `mapstructure:"transport"`
	SourceService string            `mapstructure:"source_service"`
	RESTProxy     RESTProxyConfig   `mapstructure:"restproxy"`
	EventBridge   EventBridgeConfig `mapstructure:"eventbridge"`
	NATS          NATSConfig        `mapstructure:"nats"`
	Kafka         KafkaConfig       `mapstructure:"kafka"`
}

// RESTProxyConfig configures the Kafka REST proxy transport.
type RESTProxyConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// EventBridgeConfig configures the managed event-bus transport.
type EventBridgeConfig struct {
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"` // LocalStack, e.g. http://localhost:4566
	EventBusName string `mapstructure:"event_bus_name"`
}

// NATSConfig configures the JetStream transport.
type NATSConfig struct {
	URL string `mapstructure:"url"`
}

// KafkaConfig configures the native Kafka transport.
type KafkaConfig struct {
	Brokers []string      `mapstructure:"brokers"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Validate checks the settings the selected transport needs.
func (c Config) Validate() error {
	if c.SourceService == "" {
		return errors.New("eventbus: source_service is required")
	}
	switch c.Transport {
	case TransportRESTProxy, "":
		if c.RESTProxy.URL == "" {
			return errors.New("eventbus: restproxy.url is required")
		}
	case TransportEventBridge:
		if c.EventBridge.Region == "" {
			return errors.New("eventbus: eventbridge.region is required")
		}
	case TransportNATS:
		if c.NATS.URL == "" {
			return errors.New("eventbus: nats.url is required")
		}
	case TransportKafka:
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("eventbus: kafka.brokers is required")
		}
	case TransportLog:
	default:
		return fmt.Errorf("eventbus: unknown transport %q (supported: restproxy, eventbridge, log, nats, kafka)", c.Transport)
	}
	return nil
}

// NewTransport builds the transport named by cfg.Transport. The REST proxy is the default.
func NewTransport(ctx context.Context, cfg Config, logger *logging.Logger) (Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Transport {
	case TransportEventBridge:
		return NewEventBridgeTransport(ctx, cfg.EventBridge)
	case TransportLog:
		return NewLogTransport(logger), nil
	case TransportNATS:
		return NewNATSTransport(ctx, cfg.NATS)
	case TransportKafka:
		return NewKafkaTransport(cfg.Kafka), nil
	default:
		return NewRESTProxyTransport(cfg.RESTProxy), nil
	}
}

// New builds the transport from cfg and wraps it in a Bus.
func New(ctx context.Context, cfg Config, logger *logging.Logger) (*Bus, error) {
	if logger == nil {
		logger = logging.Default()
	}
	transport, err := NewTransport(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewBus(transport, cfg.SourceService, WithLogger(logger)), nil
}
