// Package eventbus publishes domain events wrapped in an Envelope to one of
// several interchangeable transports chosen once at construction.
//
// The bus is publish-only. Consumers run out of process and read from the
// transport directly.
package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kobliat/kobliat-stack/common/logging"
	"github.com/kobliat/kobliat-stack/common/middleware"
)

// ErrSubscribeUnsupported is returned by Bus.Subscribe.
var ErrSubscribeUnsupported = errors.New("eventbus: subscribe is not supported, consume from the transport with a worker")

// Transport delivers one envelope per call. Implementations must not retry.
type Transport interface {
	Name() string
	Send(ctx context.Context, env Envelope) error
	Close() error
}

// Result is the outcome of a publish. Callers decide whether a failure matters.
type Result struct {
	Envelope Envelope
	Err      error
}

// Published reports whether the transport accepted the envelope.
func (r Result) Published() bool { return r.Err == nil }

// Failed reports whether the publish failed.
func (r Result) Failed() bool { return r.Err != nil }

// Reason describes the failure, or "" when published.
func (r Result) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Publisher is the capability services depend on.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload map[string]any, opts ...PublishOption) Result
}

// PublishOption adjusts a single publish.
type PublishOption func(*publishOptions)

type publishOptions struct {
	traceID string
}

// WithTraceID continues an existing causal chain instead of the one in ctx.
func WithTraceID(traceID string) PublishOption {
	return func(o *publishOptions) { o.traceID = traceID }
}

// Bus builds envelopes and hands them to its transport.
type Bus struct {
	transport     Transport
	sourceService string
	logger        *logging.Logger
	now           func() time.Time
	newID         func() string
}

// Option configures a Bus.
type Option func(*Bus)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// WithIDGenerator overrides event and trace id generation.
func WithIDGenerator(newID func() string) Option {
	return func(b *Bus) { b.newID = newID }
}

// WithLogger sets the logger used for publish outcomes.
func WithLogger(logger *logging.Logger) Option {
	return func(b *Bus) { b.logger = logger }
}

// NewBus wires a bus for sourceService on top of transport.
func NewBus(transport Transport, sourceService string, opts ...Option) *Bus {
	b := &Bus{
		transport:     transport,
		sourceService: sourceService,
		logger:        logging.Default(),
		now:           time.Now,
		newID:         newUUID,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger.Info("EventBus initialized",
		logging.Service(sourceService),
		logging.Transport(transport.Name()),
	)
	return b
}

// Publish wraps payload in an envelope and sends it once. The trace id comes
// from WithTraceID, then from ctx, then is freshly generated.
func (b *Bus) Publish(ctx context.Context, topic string, payload map[string]any, opts ...PublishOption) Result {
	var o publishOptions
	for _, opt := range opts {
		opt(&o)
	}
	traceID := o.traceID
	if traceID == "" {
		traceID = middleware.GetTraceID(ctx)
	}
	if traceID == "" {
		traceID = b.newID()
	}

	env, err := NewEnvelope(b.newID(), traceID, b.now(), b.sourceService, topic, payload)
	if err != nil {
		return Result{Err: err}
	}

	start := time.Now()
	if err := b.transport.Send(ctx, env); err != nil {
		publishFailures.WithLabelValues(b.transport.Name(), topic).Inc()
		b.logger.ErrorContext(ctx, "Failed to publish event",
			logging.Transport(b.transport.Name()),
			logging.Topic(topic),
			logging.EventID(env.EventID()),
			logging.Error(err),
		)
		return Result{Envelope: env, Err: err}
	}

	publishDuration.WithLabelValues(b.transport.Name()).Observe(time.Since(start).Seconds())
	publishedTotal.WithLabelValues(b.transport.Name(), topic).Inc()
	b.logger.InfoContext(ctx, "Event published",
		logging.Transport(b.transport.Name()),
		logging.Topic(topic),
		logging.EventID(env.EventID()),
		logging.TraceID(env.TraceID()),
	)
	return Result{Envelope: env}
}

// Subscribe is not supported; consumption happens in independent workers.
func (b *Bus) Subscribe(topics []string) error {
	b.logger.Warn("Subscribe is not implemented on the event bus, use a transport consumer",
		logging.Transport(b.transport.Name()),
		slog.Any("topics", topics),
	)
	return ErrSubscribeUnsupported
}

// TransportName returns the configured transport.
func (b *Bus) TransportName() string {
	return b.transport.Name()
}

// Close releases the transport.
func (b *Bus) Close() error {
	return b.transport.Close()
}

func newUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
