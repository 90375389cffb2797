package orchestrator

import (
	"context"
	"fmt"

	"github.com/kobliat/kobliat-stack/common/eventbus"
	"github.com/kobliat/kobliat-stack/common/logging"
	"github.com/kobliat/kobliat-stack/common/messaging"
	natsclient "github.com/kobliat/kobliat-stack/common/messaging/nats"
)

// Consumer feeds webhook.inbound.received envelopes from JetStream into an
// Orchestrator. Failed runs are terminated rather than redelivered: message
// creation is not idempotent, so a replay could duplicate the inbound message.
type Consumer struct {
	js     *natsclient.JetStreamClient
	orch   *Orchestrator
	name   string
	stream natsclient.StreamConfig
	logger *logging.Logger
	stop   func()
}

func NewConsumer(js *natsclient.JetStreamClient, orch *Orchestrator, name string, logger *logging.Logger) *Consumer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Consumer{
		js:     js,
		orch:   orch,
		name:   name,
		stream: natsclient.DomainEventsStream,
		logger: logger,
	}
}

// Start ensures the stream and durable consumer exist and begins consuming.
func (c *Consumer) Start(ctx context.Context) error {
	if _, err := c.js.CreateOrUpdateStream(ctx, c.stream); err != nil {
		return fmt.Errorf("ensure stream: %w", err)
	}
	cfg := natsclient.DefaultConsumerConfig(c.name, messaging.TopicWebhookInboundReceived)
	if _, err := c.js.CreateOrUpdateConsumer(ctx, c.stream.Name, cfg); err != nil {
		return fmt.Errorf("ensure consumer: %w", err)
	}

	stop, err := c.js.ConsumeMessages(ctx, c.stream.Name, c.name, c.handle)
	if err != nil {
		return err
	}
	c.stop = stop
	c.logger.Info("Orchestrator consumer started",
		"stream", c.stream.Name,
		"consumer", c.name,
	)
	return nil
}

// Stop ends consumption.
func (c *Consumer) Stop() {
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
}

func (c *Consumer) handle(ctx context.Context, msg *messaging.Message) error {
	env, err := eventbus.DecodeEnvelope(msg.Data)
	if err != nil {
		c.logger.ErrorContext(ctx, "Dropping undecodable envelope", logging.Error(err))
		return natsclient.Terminate(err)
	}
	if err := c.orch.HandleWebhookReceived(ctx, env); err != nil {
		return natsclient.Terminate(err)
	}
	return nil
}
