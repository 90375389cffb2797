package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/kobliat/kobliat-stack/common/messaging"
)

// JetStreamClient extends Client with JetStream persistence.
type JetStreamClient struct {
	*Client
	js jetstream.JetStream
}

// StreamConfig defines a JetStream stream.
type StreamConfig struct {
	Name       string
	Subjects   []string
	MaxAge     time.Duration
	MaxBytes   int64
	MaxMsgs    int64
	Retention  jetstream.RetentionPolicy
	Storage    jetstream.StorageType
	// Duplicates is the window in which Nats-Msg-Id values are deduplicated.
	Duplicates time.Duration
}

// ConsumerConfig defines a durable JetStream consumer.
type ConsumerConfig struct {
	Name          string
	FilterSubject string
	AckWait       time.Duration
	// MaxDeliver caps deliveries per message; the last one is the terminal attempt.
	MaxDeliver    int
	MaxAckPending int
}

// DefaultConsumerConfig returns sensible defaults for a consumer.
func DefaultConsumerConfig(name, filterSubject string) ConsumerConfig {
	return ConsumerConfig{
		Name:          name,
		FilterSubject: filterSubject,
		AckWait:       30 * time.Second,
		MaxDeliver:    3,
		MaxAckPending: 100,
	}
}

// NewJetStreamClient connects and creates a JetStream context.
func NewJetStreamClient(cfg Config) (*JetStreamClient, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(client.conn)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &JetStreamClient{Client: client, js: js}, nil
}

// CreateOrUpdateStream creates or updates a stream.
func (c *JetStreamClient) CreateOrUpdateStream(ctx context.Context, cfg StreamConfig) (jetstream.Stream, error) {
	stream, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       cfg.Name,
		Subjects:   cfg.Subjects,
		MaxAge:     cfg.MaxAge,
		MaxBytes:   cfg.MaxBytes,
		MaxMsgs:    cfg.MaxMsgs,
		Retention:  cfg.Retention,
		Storage:    cfg.Storage,
		Duplicates: cfg.Duplicates,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream %s: %w", cfg.Name, err)
	}
	return stream, nil
}

// Stream looks up an existing stream.
func (c *JetStreamClient) Stream(ctx context.Context, name string) (jetstream.Stream, error) {
	return c.js.Stream(ctx, name)
}

// CreateOrUpdateConsumer creates or updates a durable consumer on streamName.
func (c *JetStreamClient) CreateOrUpdateConsumer(ctx context.Context, streamName string, cfg ConsumerConfig) (jetstream.Consumer, error) {
	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream %s: %w", streamName, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          cfg.Name,
		Durable:       cfg.Name,
		FilterSubject: cfg.FilterSubject,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
		MaxAckPending: cfg.MaxAckPending,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update consumer %s: %w", cfg.Name, err)
	}
	return consumer, nil
}

// PublishSync publishes data and waits for the stream acknowledgement.
func (c *JetStreamClient) PublishSync(ctx context.Context, subject string, data []byte) (*jetstream.PubAck, error) {
	return c.js.Publish(ctx, subject, data)
}

// PublishMsgSync publishes msg with its headers. A non-empty msgID is sent as
// Nats-Msg-Id so the stream drops duplicates inside its dedupe window.
func (c *JetStreamClient) PublishMsgSync(ctx context.Context, msg *messaging.Message, msgID string) (*jetstream.PubAck, error) {
	out := toNATS(msg)
	var opts []jetstream.PublishOpt
	if msgID != "" {
		opts = append(opts, jetstream.WithMsgID(msgID))
	}
	return c.js.PublishMsg(ctx, out, opts...)
}

// retryError asks the consumer to redeliver after a specific delay.
type retryError struct {
	err   error
	delay time.Duration
}

func (e *retryError) Error() string { return e.err.Error() }
func (e *retryError) Unwrap() error { return e.err }

// RetryAfter wraps err so ConsumeMessages redelivers after delay.
func RetryAfter(err error, delay time.Duration) error {
	return &retryError{err: err, delay: delay}
}

// ErrTerminate marks a message that must never be redelivered.
var ErrTerminate = errors.New("terminate delivery")

// Terminate wraps err so ConsumeMessages stops redelivering the message.
func Terminate(err error) error {
	return fmt.Errorf("%w: %w", ErrTerminate, err)
}

// DefaultNakDelay is used when a handler fails without RetryAfter.
const DefaultNakDelay = 5 * time.Second

// ConsumeMessages runs handler for every message on a durable consumer.
// A nil error acks; RetryAfter naks with its delay; Terminate terms; any other
// error naks with DefaultNakDelay. The returned func stops consumption.
func (c *JetStreamClient) ConsumeMessages(ctx context.Context, streamName, consumerName string, handler messaging.MessageHandler) (func(), error) {
	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream %s: %w", streamName, err)
	}

	consumer, err := stream.Consumer(ctx, consumerName)
	if err != nil {
		return nil, fmt.Errorf("failed to get consumer %s: %w", consumerName, err)
	}

	consumeCtx, cancel := context.WithCancel(ctx)

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		settle(consumeCtx, msg, handler)
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	return func() {
		cancel()
		cons.Stop()
	}, nil
}

func settle(ctx context.Context, msg jetstream.Msg, handler messaging.MessageHandler) {
	m := &messaging.Message{
		Subject:   msg.Subject(),
		Data:      msg.Data(),
		Timestamp: time.Now(),
	}
	if meta, err := msg.Metadata(); err == nil {
		m.Delivery = meta.NumDelivered
		m.Timestamp = meta.Timestamp
	}
	if headers := msg.Headers(); len(headers) > 0 {
		m.Metadata = make(map[string]string, len(headers))
		for k := range headers {
			m.Metadata[k] = headers.Get(k)
		}
	}

	err := handler(ctx, m)
	var retry *retryError
	switch {
	case err == nil:
		err = msg.Ack()
	case errors.Is(err, ErrTerminate):
		err = msg.Term()
	case errors.As(err, &retry):
		err = msg.NakWithDelay(retry.delay)
	default:
		err = msg.NakWithDelay(DefaultNakDelay)
	}
	if err != nil {
		slog.Error("failed to settle JetStream message",
			slog.String("subject", m.Subject),
			slog.String("error", err.Error()),
		)
	}
}

// Stream definitions used across services.
var (
	// DomainEventsStream retains every envelope published through the NATS bus transport.
	DomainEventsStream = StreamConfig{
		Name:       "DOMAIN_EVENTS",
		Subjects:   messaging.Topics(),
		MaxAge:     7 * 24 * time.Hour,
		MaxBytes:   1024 * 1024 * 1024,
		MaxMsgs:    1000000,
		Retention:  jetstream.LimitsPolicy,
		Storage:    jetstream.FileStorage,
		Duplicates: 2 * time.Minute,
	}

	// DispatchJobsStream holds pending outbound delivery jobs; each is consumed once.
	DispatchJobsStream = StreamConfig{
		Name:      "DISPATCH_JOBS",
		Subjects:  []string{"dispatch.jobs.>"},
		MaxAge:    24 * time.Hour,
		MaxBytes:  256 * 1024 * 1024,
		MaxMsgs:   100000,
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	}

	// DispatchDLQStream keeps permanently failed delivery jobs for inspection.
	DispatchDLQStream = StreamConfig{
		Name:      "DISPATCH_DLQ",
		Subjects:  []string{messaging.SubjectDispatchDLQ + ".>"},
		MaxAge:    30 * 24 * time.Hour,
		MaxBytes:  256 * 1024 * 1024,
		MaxMsgs:   100000,
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	}
)

// MsgIDHeader is the header JetStream uses for publish deduplication.
const MsgIDHeader = nats.MsgIdHdr
