package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaWriter is the part of *kafka.Writer the transport uses.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaTransport writes envelopes straight to brokers, keyed by event id.
type KafkaTransport struct {
	writer KafkaWriter
}

// NewKafkaTransport builds a writer that waits for all in-sync replicas.
func NewKafkaTransport(cfg KafkaConfig) *KafkaTransport {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return NewKafkaTransportWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		WriteTimeout:           timeout,
		AllowAutoTopicCreation: true,
	})
}

func NewKafkaTransportWithWriter(writer KafkaWriter) *KafkaTransport {
	return &KafkaTransport{writer: writer}
}

func (t *KafkaTransport) Name() string { return string(TransportKafka) }

func (t *KafkaTransport) Send(ctx context.Context, env Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	err = t.writer.WriteMessages(ctx, kafka.Message{
		Topic: env.Topic(),
		Key:   []byte(env.EventID()),
		Value: value,
		Time:  env.OccurredAt(),
		Headers: []kafka.Header{
			{Key: "trace_id", Value: []byte(env.TraceID())},
			{Key: "source_service", Value: []byte(env.SourceService())},
		},
	})
	if err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

func (t *KafkaTransport) Close() error {
	return t.writer.Close()
}
