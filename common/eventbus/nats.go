package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kobliat/kobliat-stack/common/messaging"
	natsclient "github.com/kobliat/kobliat-stack/common/messaging/nats"
	"github.com/kobliat/kobliat-stack/common/middleware"
)

// NATSTransport publishes envelopes to JetStream on a subject equal to the
// topic. The event id doubles as the JetStream message id.
type NATSTransport struct {
	client *natsclient.JetStreamClient
	owned  bool
}

// NewNATSTransport connects and makes sure the domain events stream exists.
func NewNATSTransport(ctx context.Context, cfg NATSConfig) (*NATSTransport, error) {
	natsCfg := natsclient.DefaultConfig()
	natsCfg.URL = cfg.URL
	natsCfg.Name = "kobliat-eventbus"

	client, err := natsclient.NewJetStreamClient(natsCfg)
	if err != nil {
		return nil, err
	}
	if _, err := client.CreateOrUpdateStream(ctx, natsclient.DomainEventsStream); err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	t := NewNATSTransportWithClient(client)
	t.owned = true
	return t, nil
}

// NewNATSTransportWithClient reuses a connection the caller keeps ownership of.
func NewNATSTransportWithClient(client *natsclient.JetStreamClient) *NATSTransport {
	return &NATSTransport{client: client}
}

func (t *NATSTransport) Name() string { return string(TransportNATS) }

func (t *NATSTransport) Send(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	msg := &messaging.Message{
		Subject: env.Topic(),
		Data:    data,
		Metadata: map[string]string{
			"Content-Type":           "application/json",
			middleware.HeaderTraceID: env.TraceID(),
			"X-Source-Service":       env.SourceService(),
		},
		Timestamp: time.Now(),
	}
	if _, err := t.client.PublishMsgSync(ctx, msg, env.EventID()); err != nil {
		return err
	}
	return nil
}

func (t *NATSTransport) Close() error {
	if t.owned {
		return t.client.Close()
	}
	return nil
}
