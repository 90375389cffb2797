package orchestrator

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kobliat/kobliat-stack/common/eventbus"
	natsclient "github.com/kobliat/kobliat-stack/common/messaging/nats"
)

func startJetStream(t *testing.T) *natsclient.JetStreamClient {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	})
	require.NoError(t, err)
	srv.Start()
	t.Cleanup(srv.Shutdown)
	require.True(t, srv.ReadyForConnections(5*time.Second))

	js, err := natsclient.NewJetStreamClient(natsclient.Config{URL: srv.ClientURL(), Name: "orchestrator-test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = js.Close() })
	return js
}

func TestConsumer_ProcessesPublishedWebhook(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	js := startJetStream(t)

	orch, cu, _, me := newTestOrchestrator()
	consumer := NewConsumer(js, orch, "orchestrator-test", quietLogger())
	require.NoError(t, consumer.Start(ctx))
	defer consumer.Stop()

	bus := eventbus.NewBus(eventbus.NewNATSTransportWithClient(js), "inbound-gateway",
		eventbus.WithLogger(quietLogger()))
	res := bus.Publish(ctx, "webhook.inbound.received", map[string]any{
		"provider":            "whatsapp",
		"provider_message_id": "wamid.1",
		"normalized":          inbound().Message.Map(),
	}, eventbus.WithTraceID("trace-nats"))
	require.True(t, res.Published(), res.Reason())

	require.Eventually(t, func() bool { return me.count() == 1 }, 5*time.Second, 20*time.Millisecond)

	cu.mu.Lock()
	defer cu.mu.Unlock()
	assert.Equal(t, "trace-nats", cu.trace)
	assert.Equal(t, "15550001111", cu.calls[0].ExternalID)
}

func TestConsumer_FailedRunIsNotRedelivered(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	js := startJetStream(t)

	orch, cu, co, _ := newTestOrchestrator()
	co.err = assert.AnError
	consumer := NewConsumer(js, orch, "orchestrator-test", quietLogger())
	require.NoError(t, consumer.Start(ctx))
	defer consumer.Stop()

	bus := eventbus.NewBus(eventbus.NewNATSTransportWithClient(js), "inbound-gateway",
		eventbus.WithLogger(quietLogger()))
	require.True(t, bus.Publish(ctx, "webhook.inbound.received", map[string]any{
		"provider":   "whatsapp",
		"normalized": inbound().Message.Map(),
	}).Published())

	require.Eventually(t, func() bool {
		cu.mu.Lock()
		defer cu.mu.Unlock()
		return len(cu.calls) == 1
	}, 5*time.Second, 20*time.Millisecond)

	// A redelivery would arrive after DefaultNakDelay; a terminated message never does.
	time.Sleep(300 * time.Millisecond)
	cu.mu.Lock()
	defer cu.mu.Unlock()
	assert.Len(t, cu.calls, 1)
}
