package dlq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kobliat/kobliat-stack/common/logging"
	natsclient "github.com/kobliat/kobliat-stack/common/messaging/nats"
)

func sampleEntry(i int) Entry {
	return Entry{
		ID:        fmt.Sprintf("dlq_%d", i),
		JobID:     fmt.Sprintf("job_%d", i),
		MessageID: fmt.Sprintf("msg-%d", i),
		Channel:   "whatsapp",
		Reason:    ReasonAttemptsExhausted,
		Error:     "failed to send message via whatsapp: status 503",
		Attempts:  3,
		FailedAt:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Job:       json.RawMessage(`{"message_id":"msg"}`),
	}
}

func TestMemoryQueue(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()

	for i := range 3 {
		require.NoError(t, q.Write(ctx, sampleEntry(i)))
	}

	all, err := q.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "dlq_0", all[0].ID)

	two, err := q.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)

	assert.Equal(t, 3, q.Stats(ctx)["total_messages"])

	require.NoError(t, q.Purge(ctx))
	all, err = q.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMemoryQueue_LogsEntries(t *testing.T) {
	var buf bytes.Buffer
	q := NewMemoryQueue(WithLogger(logging.NewWithWriter(&buf, slog.LevelInfo, "json")))

	require.NoError(t, q.Write(context.Background(), sampleEntry(1)))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Job dead-lettered", line["msg"])
	assert.Equal(t, "dlq_1", line["dlq_id"])
	assert.Equal(t, "job_1", line["job_id"])
	assert.Equal(t, ReasonAttemptsExhausted, line["reason"])
	assert.Equal(t, `{"message_id":"msg"}`, line["job"])
	assert.Contains(t, buf.String(), "msg-1")

	entries, err := q.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
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
	require.True(t, srv.ReadyForConnections(5*time.Second), "embedded NATS not ready")

	cfg := natsclient.DefaultConfig()
	cfg.URL = srv.ClientURL()
	js, err := natsclient.NewJetStreamClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { js.Close() })
	return js
}

func TestJetStreamQueue_WriteListPurge(t *testing.T) {
	ctx := context.Background()
	js := startJetStream(t)
	logger := logging.NewWithWriter(io.Discard, slog.LevelInfo, "json")

	q, err := NewJetStreamQueue(ctx, js, logger)
	require.NoError(t, err)

	empty, err := q.List(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	for i := range 3 {
		require.NoError(t, q.Write(ctx, sampleEntry(i)))
	}
	// Same entry id is deduplicated by the stream.
	require.NoError(t, q.Write(ctx, sampleEntry(0)))

	entries, err := q.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "dlq_0", entries[0].ID)
	assert.Equal(t, "msg-2", entries[2].MessageID)
	assert.Equal(t, 3, entries[1].Attempts)
	assert.JSONEq(t, `{"message_id":"msg"}`, string(entries[1].Job))

	limited, err := q.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	// Listing does not consume.
	again, err := q.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, again, 3)

	stats := q.Stats(ctx)
	assert.Equal(t, "jetstream", stats["backend"])
	assert.Equal(t, uint64(3), stats["total_messages"])

	require.NoError(t, q.Purge(ctx))
	entries, err = q.List(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNewJetStreamQueue_NilClient(t *testing.T) {
	_, err := NewJetStreamQueue(context.Background(), nil, nil)
	assert.Error(t, err)
}
