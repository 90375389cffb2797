// Package tail streams live domain events from plain NATS subscriptions.
// Events published through the nats bus transport land in JetStream and are
// also fanned out to core subscribers, so tailing never creates a durable
// consumer or moves any stream cursor.
package tail

import (
	"context"
	"fmt"
	"time"

	"github.com/kobliat/kobliat-stack/common/eventbus"
	"github.com/kobliat/kobliat-stack/common/messaging"
	"github.com/kobliat/kobliat-stack/common/middleware"
)

// Event is one observed message. Raw is set instead of the envelope fields
// when the data is not an envelope.
type Event struct {
	Subject       string         `json:"subject" yaml:"subject"`
	EventID       string         `json:"event_id,omitempty" yaml:"event_id,omitempty"`
	TraceID       string         `json:"trace_id,omitempty" yaml:"trace_id,omitempty"`
	SourceService string         `json:"source_service,omitempty" yaml:"source_service,omitempty"`
	OccurredAt    *time.Time     `json:"occurred_at,omitempty" yaml:"occurred_at,omitempty"`
	Payload       map[string]any `json:"payload,omitempty" yaml:"payload,omitempty"`
	Raw           string         `json:"raw,omitempty" yaml:"raw,omitempty"`
}

// Decode turns a received message into an Event.
func Decode(msg *messaging.Message) Event {
	ev := Event{Subject: msg.Subject, TraceID: msg.Header(middleware.HeaderTraceID)}
	env, err := eventbus.DecodeEnvelope(msg.Data)
	if err != nil {
		ev.Raw = string(msg.Data)
		return ev
	}
	at := env.OccurredAt()
	ev.EventID = env.EventID()
	ev.TraceID = env.TraceID()
	ev.SourceService = env.SourceService()
	ev.OccurredAt = &at
	ev.Payload = env.Payload()
	return ev
}

// Run subscribes to subjects and hands each event to emit until ctx ends or
// limit events were emitted. limit <= 0 means no limit. Cancellation is a
// normal stop and returns nil.
func Run(ctx context.Context, sub messaging.Subscriber, subjects []string, limit int, emit func(Event) error) error {
	if len(subjects) == 0 {
		return fmt.Errorf("no subjects to tail")
	}

	events := make(chan Event, 64)
	done := make(chan struct{})
	defer close(done)

	for _, subject := range subjects {
		s, err := sub.Subscribe(subject, func(_ context.Context, msg *messaging.Message) error {
			select {
			case events <- Decode(msg):
			case <-done:
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		defer s.Unsubscribe()
	}
	if err := sub.Flush(ctx); err != nil {
		return fmt.Errorf("register subscriptions: %w", err)
	}

	emitted := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			if err := emit(ev); err != nil {
				return err
			}
			emitted++
			if limit > 0 && emitted >= limit {
				return nil
			}
		}
	}
}
