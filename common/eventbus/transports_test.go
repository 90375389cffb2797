package eventbus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kobliat/kobliat-stack/common/logging"
	"github.com/kobliat/kobliat-stack/common/messaging"
	natsclient "github.com/kobliat/kobliat-stack/common/messaging/nats"
)

func testEnvelope(t *testing.T) Envelope {
	t.Helper()
	env, err := NewEnvelope("evt-1", "trace-1", time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
		"gateway", messaging.TopicMessageInboundCreated,
		map[string]any{"message_id": "m-1", "conversation_id": "conv-1", "body": "hi"})
	require.NoError(t, err)
	return env
}

// assertSameEnvelope checks data decodes to exactly env.
func assertSameEnvelope(t *testing.T, env Envelope, data []byte) {
	t.Helper()
	want, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(data))
}

func TestRESTProxyTransport_Send(t *testing.T) {
	env := testEnvelope(t)

	var gotPath, gotContentType, gotAccept string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotAccept = r.Header.Get("Accept")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"offsets":[{"partition":0,"offset":1}]}`))
	}))
	defer srv.Close()

	tr := NewRESTProxyTransport(RESTProxyConfig{URL: srv.URL + "/"})
	require.NoError(t, tr.Send(context.Background(), env))

	assert.Equal(t, "/topics/message.inbound.created", gotPath)
	assert.Equal(t, "application/vnd.kafka.json.v2+json", gotContentType)
	assert.Equal(t, "application/vnd.kafka.v2+json", gotAccept)

	var body struct {
		Records []struct {
			Key   string          `json:"key"`
			Value json.RawMessage `json:"value"`
		} `json:"records"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &body))
	require.Len(t, body.Records, 1)
	assert.Equal(t, "evt-1", body.Records[0].Key)
	assertSameEnvelope(t, env, body.Records[0].Value)
}

func TestRESTProxyTransport_Non2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error_code":40401,"message":"Topic not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	tr := NewRESTProxyTransport(RESTProxyConfig{URL: srv.URL})
	err := tr.Send(context.Background(), testEnvelope(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "Topic not found")
}

func TestRESTProxyTransport_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	tr := NewRESTProxyTransport(RESTProxyConfig{URL: srv.URL, Timeout: 20 * time.Millisecond})
	assert.Error(t, tr.Send(context.Background(), testEnvelope(t)))
}

type fakeEventBridge struct {
	input *eventbridge.PutEventsInput
	out   *eventbridge.PutEventsOutput
	err   error
}

func (f *fakeEventBridge) PutEvents(_ context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	if f.out != nil {
		return f.out, nil
	}
	return &eventbridge.PutEventsOutput{}, nil
}

func TestEventBridgeTransport_Send(t *testing.T) {
	env := testEnvelope(t)
	fake := &fakeEventBridge{}
	tr := NewEventBridgeTransportWithClient(fake, "")

	require.NoError(t, tr.Send(context.Background(), env))
	require.Len(t, fake.input.Entries, 1)
	entry := fake.input.Entries[0]
	assert.Equal(t, "gateway", aws.ToString(entry.Source))
	assert.Equal(t, "message.inbound.created", aws.ToString(entry.DetailType))
	assert.Equal(t, "kobliat-events", aws.ToString(entry.EventBusName))
	assert.Equal(t, "trace-1", aws.ToString(entry.TraceHeader))
	assertSameEnvelope(t, env, []byte(aws.ToString(entry.Detail)))
}

func TestEventBridgeTransport_FailedEntry(t *testing.T) {
	fake := &fakeEventBridge{out: &eventbridge.PutEventsOutput{
		FailedEntryCount: 1,
		Entries: []types.PutEventsResultEntry{{
			ErrorCode:    aws.String("ThrottlingException"),
			ErrorMessage: aws.String("Rate exceeded"),
		}},
	}}
	tr := NewEventBridgeTransportWithClient(fake, "custom-bus")

	err := tr.Send(context.Background(), testEnvelope(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ThrottlingException")
	assert.Equal(t, "custom-bus", aws.ToString(fake.input.Entries[0].EventBusName))
}

func TestEventBridgeTransport_ClientError(t *testing.T) {
	tr := NewEventBridgeTransportWithClient(&fakeEventBridge{err: errors.New("no credentials")}, "")
	assert.ErrorContains(t, tr.Send(context.Background(), testEnvelope(t)), "no credentials")
}

func TestLogTransport_OneLinePerEnvelope(t *testing.T) {
	env := testEnvelope(t)
	var buf bytes.Buffer
	tr := NewLogTransport(logging.NewWithWriter(&buf, slog.LevelInfo, "json"))

	require.NoError(t, tr.Send(context.Background(), env))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry struct {
		Msg      string          `json:"msg"`
		Topic    string          `json:"topic"`
		Envelope json.RawMessage `json:"envelope"`
	}
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Contains(t, entry.Msg, "published event")
	assert.Equal(t, "message.inbound.created", entry.Topic)
	assertSameEnvelope(t, env, entry.Envelope)
}

type fakeKafkaWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafkaWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaTransport_Send(t *testing.T) {
	env := testEnvelope(t)
	w := &fakeKafkaWriter{}
	tr := NewKafkaTransportWithWriter(w)

	require.NoError(t, tr.Send(context.Background(), env))
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "message.inbound.created", msg.Topic)
	assert.Equal(t, "evt-1", string(msg.Key))
	assert.Equal(t, env.OccurredAt(), msg.Time)
	assertSameEnvelope(t, env, msg.Value)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "trace-1", headers["trace_id"])
	assert.Equal(t, "gateway", headers["source_service"])

	require.NoError(t, tr.Close())
	assert.True(t, w.closed)
}

func TestKafkaTransport_WriteError(t *testing.T) {
	tr := NewKafkaTransportWithWriter(&fakeKafkaWriter{err: kafka.LeaderNotAvailable})
	assert.Error(t, tr.Send(context.Background(), testEnvelope(t)))
}

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

	client, err := natsclient.NewJetStreamClient(natsclient.Config{URL: srv.ClientURL(), Name: "eventbus-test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNATSTransport_SendAndDedupe(t *testing.T) {
	ctx := context.Background()
	client := startJetStream(t)

	streamCfg := natsclient.DomainEventsStream
	streamCfg.Storage = jetstream.MemoryStorage
	stream, err := client.CreateOrUpdateStream(ctx, streamCfg)
	require.NoError(t, err)

	env := testEnvelope(t)
	tr := NewNATSTransportWithClient(client)
	require.NoError(t, tr.Send(ctx, env))
	// Same event id again is dropped by the stream.
	require.NoError(t, tr.Send(ctx, env))

	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.State.Msgs)

	raw, err := stream.GetLastMsgForSubject(ctx, messaging.TopicMessageInboundCreated)
	require.NoError(t, err)
	assertSameEnvelope(t, env, raw.Data)
	assert.Equal(t, "trace-1", raw.Header.Get("X-Trace-ID"))

	// Closing a borrowed client is a no-op.
	require.NoError(t, tr.Close())
	assert.True(t, client.IsConnected())
}

func TestTransports_ShareWireForm(t *testing.T) {
	env := testEnvelope(t)
	ctx := context.Background()

	var restValue json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Records []struct {
				Value json.RawMessage `json:"value"`
			} `json:"records"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Records) > 0 {
			restValue = body.Records[0].Value
		}
	}))
	defer srv.Close()
	require.NoError(t, NewRESTProxyTransport(RESTProxyConfig{URL: srv.URL}).Send(ctx, env))

	eb := &fakeEventBridge{}
	require.NoError(t, NewEventBridgeTransportWithClient(eb, "").Send(ctx, env))

	kw := &fakeKafkaWriter{}
	require.NoError(t, NewKafkaTransportWithWriter(kw).Send(ctx, env))

	var logBuf bytes.Buffer
	require.NoError(t, NewLogTransport(logging.NewWithWriter(&logBuf, slog.LevelInfo, "json")).Send(ctx, env))
	var logEntry struct {
		Envelope json.RawMessage `json:"envelope"`
	}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(logBuf.Bytes()), &logEntry))

	forms := map[string][]byte{
		"restproxy":   restValue,
		"eventbridge": []byte(aws.ToString(eb.input.Entries[0].Detail)),
		"kafka":       kw.msgs[0].Value,
		"log":         logEntry.Envelope,
	}
	for name, data := range forms {
		t.Run(name, func(t *testing.T) {
			decoded, err := DecodeEnvelope(data)
			require.NoError(t, err)
			assert.Equal(t, env.EventID(), decoded.EventID())
			assert.Equal(t, env.TraceID(), decoded.TraceID())
			assert.Equal(t, env.Topic(), decoded.Topic())
			assert.Equal(t, env.SourceService(), decoded.SourceService())
			assert.True(t, env.OccurredAt().Equal(decoded.OccurredAt()))
			assert.Equal(t, env.Payload(), decoded.Payload())
		})
	}
}
