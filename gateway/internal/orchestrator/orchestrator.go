// Package orchestrator provisions the customer, conversation and inbound
// message for each received webhook.
//
// Steps run in order and stop at the first failure. Nothing already created is
// undone: the collaborating services expose find-or-create semantics, so a
// later webhook from the same sender converges on the same records.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kobliat/kobliat-stack/common/eventbus"
	"github.com/kobliat/kobliat-stack/common/logging"
	"github.com/kobliat/kobliat-stack/common/messaging"
	"github.com/kobliat/kobliat-stack/common/middleware"
	"github.com/kobliat/kobliat-stack/gateway/internal/clients"
	"github.com/kobliat/kobliat-stack/gateway/internal/metrics"
	"github.com/kobliat/kobliat-stack/gateway/internal/normalizer"
)

// ErrMalformedEvent is returned for envelopes without a usable payload.
var ErrMalformedEvent = errors.New("malformed webhook event")

type Customers interface {
	FindOrCreate(ctx context.Context, req clients.CustomerRequest) (*clients.Customer, error)
}

type Conversations interface {
	FindOrCreateDirect(ctx context.Context, customerID string) (*clients.Conversation, error)
}

type Messages interface {
	CreateInbound(ctx context.Context, req clients.InboundMessageRequest) (*clients.Message, error)
}

// Inbound is the orchestrator's input.
type Inbound struct {
	Provider string
	Message  normalizer.Message
}

// Outcome lists the ids produced by a completed run.
type Outcome struct {
	CustomerID     string
	ConversationID string
	MessageID      string
}

type Orchestrator struct {
	customers     Customers
	conversations Conversations
	messages      Messages
	logger        *logging.Logger
}

func New(customers Customers, conversations Conversations, messages Messages, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{
		customers:     customers,
		conversations: conversations,
		messages:      messages,
		logger:        logger,
	}
}

// HandleWebhookReceived runs Process for a webhook.inbound.received envelope,
// continuing the envelope's trace. Other topics are ignored.
func (o *Orchestrator) HandleWebhookReceived(ctx context.Context, env eventbus.Envelope) error {
	if env.Topic() != messaging.TopicWebhookInboundReceived {
		return nil
	}
	in, err := InboundFromEnvelope(env)
	if err != nil {
		return err
	}
	ctx = middleware.WithTraceID(ctx, env.TraceID())
	_, err = o.Process(ctx, in)
	return err
}

// InboundFromEnvelope reads provider and normalized fields from the payload,
// normalizing raw_payload again when the publisher did not include them.
func InboundFromEnvelope(env eventbus.Envelope) (Inbound, error) {
	payload := env.Payload()
	provider, _ := payload["provider"].(string)
	if provider == "" {
		return Inbound{}, fmt.Errorf("%w: missing provider", ErrMalformedEvent)
	}

	if normalized, ok := payload["normalized"].(map[string]any); ok {
		return Inbound{Provider: provider, Message: normalizer.FromMap(normalized)}, nil
	}
	raw, ok := payload["raw_payload"].(map[string]any)
	if !ok {
		return Inbound{}, fmt.Errorf("%w: missing raw_payload", ErrMalformedEvent)
	}
	var chain normalizer.ChainNormalizer
	msg := chain.Normalize(provider, raw)
	if msg.SenderName == "" {
		msg.SenderName = normalizer.UnknownSender
	}
	return Inbound{Provider: provider, Message: msg}, nil
}

// Process provisions customer, conversation and message. Incomplete messages
// are skipped without error.
func (o *Orchestrator) Process(ctx context.Context, in Inbound) (*Outcome, error) {
	log := o.logger.With(
		logging.Provider(in.Provider),
		"provider_message_id", in.Message.ProviderMessageID,
	)
	log.InfoContext(ctx, "Processing inbound webhook")

	if !in.Message.Complete() {
		log.WarnContext(ctx, "Skipping webhook: missing external_id or body")
		return nil, nil
	}

	start := time.Now()
	defer func() { metrics.OrchestrationDuration.Observe(time.Since(start).Seconds()) }()

	name := in.Message.SenderName
	if name == "" {
		name = normalizer.UnknownSender
	}

	customer, err := o.customers.FindOrCreate(ctx, clients.CustomerRequest{
		ExternalID:   in.Message.ExternalSenderID,
		ExternalType: in.Provider,
		Name:         name,
	})
	if err != nil {
		return nil, o.fail(ctx, log, "customer", err)
	}
	metrics.OrchestrationSteps.WithLabelValues("customer", "ok").Inc()

	conversation, err := o.conversations.FindOrCreateDirect(ctx, customer.ID)
	if err != nil {
		return nil, o.fail(ctx, log, "conversation", err)
	}
	metrics.OrchestrationSteps.WithLabelValues("conversation", "ok").Inc()

	message, err := o.messages.CreateInbound(ctx, clients.InboundMessageRequest{
		ConversationID:   conversation.ID,
		Body:             in.Message.Body,
		SenderCustomerID: customer.ID,
		Channel:          in.Provider,
	})
	if err != nil {
		return nil, o.fail(ctx, log, "message", err)
	}
	metrics.OrchestrationSteps.WithLabelValues("message", "ok").Inc()

	log.InfoContext(ctx, "Successfully processed inbound webhook and created message",
		logging.MessageID(message.ID),
		"customer_id", customer.ID,
		"conversation_id", conversation.ID,
	)
	return &Outcome{
		CustomerID:     customer.ID,
		ConversationID: conversation.ID,
		MessageID:      message.ID,
	}, nil
}

func (o *Orchestrator) fail(ctx context.Context, log *logging.Logger, step string, err error) error {
	metrics.OrchestrationSteps.WithLabelValues(step, "error").Inc()
	log.ErrorContext(ctx, "Inbound orchestration aborted", "step", step, logging.Error(err))
	return fmt.Errorf("%s step: %w", step, err)
}
