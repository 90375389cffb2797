package eventbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Envelope is the immutable wrapper attached to every published domain event.
// Fields are only reachable through accessors; Payload returns a deep copy.
type Envelope struct {
	eventID       string
	traceID       string
	occurredAt    time.Time
	sourceService string
	topic         string
	payload       map[string]any
}

// envelopeJSON is the wire form shared by every transport.
type envelopeJSON struct {
	EventID       string         `json:"event_id"`
	TraceID       string         `json:"trace_id"`
	OccurredAt    time.Time      `json:"occurred_at"`
	SourceService string         `json:"source_service"`
	Topic         string         `json:"topic"`
	Payload       map[string]any `json:"payload"`
}

// NewEnvelope validates and builds an Envelope. Callers normally go through Bus.Publish.
func NewEnvelope(eventID, traceID string, occurredAt time.Time, sourceService, topic string, payload map[string]any) (Envelope, error) {
	switch {
	case eventID == "":
		return Envelope{}, errors.New("envelope: event id is required")
	case traceID == "":
		return Envelope{}, errors.New("envelope: trace id is required")
	case sourceService == "":
		return Envelope{}, errors.New("envelope: source service is required")
	case topic == "":
		return Envelope{}, errors.New("envelope: topic is required")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return Envelope{
		eventID:       eventID,
		traceID:       traceID,
		occurredAt:    occurredAt.UTC(),
		sourceService: sourceService,
		topic:         topic,
		payload:       copyMap(payload),
	}, nil
}

func (e Envelope) EventID() string       { return e.eventID }
func (e Envelope) TraceID() string       { return e.traceID }
func (e Envelope) OccurredAt() time.Time { return e.occurredAt }
func (e Envelope) SourceService() string { return e.sourceService }
func (e Envelope) Topic() string         { return e.topic }

// Payload returns a deep copy of the payload.
func (e Envelope) Payload() map[string]any {
	return copyMap(e.payload)
}

// IsZero reports whether e was never constructed.
func (e Envelope) IsZero() bool {
	return e.eventID == ""
}

// MarshalJSON encodes the envelope in its wire form.
func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelopeJSON{
		EventID:       e.eventID,
		TraceID:       e.traceID,
		OccurredAt:    e.occurredAt,
		SourceService: e.sourceService,
		Topic:         e.topic,
		Payload:       e.payload,
	})
}

// DecodeEnvelope parses the wire form produced by MarshalJSON.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var raw envelopeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return NewEnvelope(raw.EventID, raw.TraceID, raw.OccurredAt, raw.SourceService, raw.Topic, raw.Payload)
}

func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = copyValue(item)
		}
		return out
	case []byte:
		return append([]byte(nil), t...)
	case json.RawMessage:
		return append(json.RawMessage(nil), t...)
	default:
		return v
	}
}
