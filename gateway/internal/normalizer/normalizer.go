// Package normalizer extracts the sender, body and provider message id from
// provider webhook payloads.
//
// Providers disagree on payload shape, so each field is looked up through an
// ordered list of locations and the first non-empty value wins:
//
//	flat:       {"id", "from", "name", "text" | "body"}
//	messages:   {"messages": [{"id", "from", "text": {"body"}}], "contacts": [...]}
//	cloud API:  {"entry": [{"changes": [{"value": {"messages": [...], "contacts": [...]}}]}]}
package normalizer

import (
	"crypto/sha256"
	"encoding/hex"
)

// UnknownSender is used when no sender name can be found.
const UnknownSender = "Unknown User"

// Message is the provider-neutral view of an inbound webhook.
type Message struct {
	ProviderMessageID string `json:"provider_message_id"`
	ExternalSenderID  string `json:"external_sender_id"`
	SenderName        string `json:"sender_name"`
	Body              string `json:"body"`
	// DerivedID is set when ProviderMessageID was hashed from the raw payload.
	DerivedID bool `json:"-"`
}

// Complete reports whether the message carries enough to be orchestrated.
func (m Message) Complete() bool {
	return m.ExternalSenderID != "" && m.Body != ""
}

// Map returns m in the shape carried on the event bus.
func (m Message) Map() map[string]any {
	return map[string]any{
		"provider_message_id": m.ProviderMessageID,
		"external_sender_id":  m.ExternalSenderID,
		"sender_name":         m.SenderName,
		"body":                m.Body,
	}
}

// FromMap reads a Message back from its bus representation.
func FromMap(m map[string]any) Message {
	return Message{
		ProviderMessageID: stringValue(m["provider_message_id"]),
		ExternalSenderID:  stringValue(m["external_sender_id"]),
		SenderName:        stringValue(m["sender_name"]),
		Body:              stringValue(m["body"]),
	}
}

// Normalizer extracts a Message from a decoded payload.
type Normalizer interface {
	Normalize(provider string, payload map[string]any) Message
	Supports(provider string) bool
}

// Registry holds ordered normalizers and picks the first that supports a provider.
type Registry struct {
	items []Normalizer
}

// NewRegistry constructs a registry with provided normalizers.
func NewRegistry(items ...Normalizer) *Registry {
	return &Registry{items: items}
}

// NewDefaultRegistry serves every provider with the fallback chain.
func NewDefaultRegistry() *Registry {
	return NewRegistry(&ChainNormalizer{})
}

// Find returns the first normalizer that supports provider, or nil.
func (r *Registry) Find(provider string) Normalizer {
	if r == nil {
		return nil
	}
	for _, n := range r.items {
		if n.Supports(provider) {
			return n
		}
	}
	return nil
}

// Normalize runs the matching normalizer. When the payload carries no provider
// message id, the hex SHA-256 of raw is used so a byte-identical resubmission
// maps to the same key.
func (r *Registry) Normalize(provider string, raw []byte, payload map[string]any) Message {
	var msg Message
	if n := r.Find(provider); n != nil {
		msg = n.Normalize(provider, payload)
	}
	if msg.ProviderMessageID == "" {
		msg.ProviderMessageID = PayloadHash(raw)
		msg.DerivedID = true
	}
	if msg.SenderName == "" {
		msg.SenderName = UnknownSender
	}
	return msg
}

// PayloadHash returns the hex SHA-256 of raw.
func PayloadHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
