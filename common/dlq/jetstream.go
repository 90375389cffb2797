package dlq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/kobliat/kobliat-stack/common/logging"
	"github.com/kobliat/kobliat-stack/common/messaging"
	natsclient "github.com/kobliat/kobliat-stack/common/messaging/nats"
)

// JetStreamQueue writes dead-lettered jobs to the DISPATCH_DLQ stream.
// Safe for use across multiple dispatcher instances.
type JetStreamQueue struct {
	js      *natsclient.JetStreamClient
	stream  jetstream.Stream
	written uint64
	logger  *logging.Logger
}

// NewJetStreamQueue creates a DLQ backed by NATS JetStream.
func NewJetStreamQueue(ctx context.Context, js *natsclient.JetStreamClient, logger *logging.Logger) (*JetStreamQueue, error) {
	if js == nil {
		return nil, errors.New("jetstream client is nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	stream, err := js.CreateOrUpdateStream(ctx, natsclient.DispatchDLQStream)
	if err != nil {
		return nil, fmt.Errorf("create dlq stream: %w", err)
	}
	logger.Info("DLQ: JetStream stream ready", slog.String("stream", natsclient.DispatchDLQStream.Name))

	return &JetStreamQueue{
		js:     js,
		stream: stream,
		logger: logger,
	}, nil
}

// Write publishes entry on dispatch.dlq.<reason>. The entry id is the
// JetStream message id, so a repeated write of the same entry is dropped.
func (q *JetStreamQueue) Write(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	msg := &messaging.Message{
		Subject:   messaging.DispatchDLQSubject(entry.Reason),
		Data:      data,
		Timestamp: time.Now(),
	}
	if _, err := q.js.PublishMsgSync(ctx, msg, entry.ID); err != nil {
		q.logger.ErrorContext(ctx, "failed to publish DLQ entry", logging.Error(err))
		return err
	}

	atomic.AddUint64(&q.written, 1)
	q.logger.InfoContext(ctx, "DLQ: published failed job",
		logging.MessageID(entry.MessageID),
		slog.String("reason", entry.Reason),
	)
	return nil
}

// Stats returns DLQ metrics from JetStream.
func (q *JetStreamQueue) Stats(ctx context.Context) map[string]any {
	info, err := q.stream.Info(ctx)
	if err != nil {
		return map[string]any{
			"enabled":       true,
			"backend":       "jetstream",
			"written_local": atomic.LoadUint64(&q.written),
			"error":         err.Error(),
		}
	}

	return map[string]any{
		"enabled":        true,
		"backend":        "jetstream",
		"written_local":  atomic.LoadUint64(&q.written),
		"total_messages": info.State.Msgs,
		"total_bytes":    info.State.Bytes,
		"first_seq":      info.State.FirstSeq,
		"last_seq":       info.State.LastSeq,
	}
}

// List returns up to limit entries, oldest first, without consuming them.
func (q *JetStreamQueue) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	consumer, err := q.stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{messaging.SubjectDispatchDLQ + ".>"},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create list consumer: %w", err)
	}

	info, err := q.stream.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("stream info: %w", err)
	}
	want := int(min(uint64(limit), info.State.Msgs))
	if want == 0 {
		return nil, nil
	}

	msgs, err := consumer.Fetch(want, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	entries := make([]Entry, 0, want)
	for msg := range msgs.Messages() {
		var entry Entry
		if err := json.Unmarshal(msg.Data(), &entry); err != nil {
			q.logger.ErrorContext(ctx, "failed to parse DLQ message", logging.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	if err := msgs.Error(); err != nil {
		q.logger.WarnContext(ctx, "DLQ fetch completed with error", logging.Error(err))
	}
	return entries, nil
}

// Purge removes all entries from the DLQ stream.
func (q *JetStreamQueue) Purge(ctx context.Context) error {
	if err := q.stream.Purge(ctx); err != nil {
		return fmt.Errorf("purge dlq stream: %w", err)
	}
	q.logger.InfoContext(ctx, "DLQ: purged all messages from stream")
	return nil
}
