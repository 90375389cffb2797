// Package messaging defines broker-neutral message types and the topic catalogue
// shared by every Kobliat service.
package messaging

import (
	"context"
	"time"
)

// Message represents a message received from or sent to a broker.
type Message struct {
	// Subject is the topic the message was published to.
	Subject string

	// Data is the raw message payload.
	Data []byte

	// Metadata carries message headers.
	Metadata map[string]string

	// Timestamp is when the message was published.
	Timestamp time.Time

	// Delivery is the 1-based delivery count for durable consumers (0 when unknown).
	Delivery uint64
}

// Header returns the named header or "".
func (m *Message) Header(key string) string {
	if m == nil || m.Metadata == nil {
		return ""
	}
	return m.Metadata[key]
}

// MessageHandler processes a received message.
// Returning an error asks the consumer to redeliver, subject to its limits.
type MessageHandler func(ctx context.Context, msg *Message) error

// Subscription represents an active subscription to a subject.
type Subscription interface {
	Unsubscribe() error
	Subject() string
	IsValid() bool
}

// Subscriber receives messages published on subjects.
type Subscriber interface {
	Subscribe(subject string, handler MessageHandler) (Subscription, error)
	Flush(ctx context.Context) error
	Close() error
}
