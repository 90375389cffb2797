package models

import (
	"encoding/json"
	"net/http"
	"time"
)

// InboundWebhook is one accepted provider callback. (Provider, ProviderMessageID)
// is the idempotency key; a record is written once and never updated.
type InboundWebhook struct {
	ID                string          `json:"id"`
	Provider          string          `json:"provider"`
	ProviderMessageID string          `json:"provider_message_id"`
	Headers           http.Header     `json:"headers,omitempty"`
	RawPayload        json.RawMessage `json:"raw_payload"`
	IsProcessed       bool            `json:"is_processed"`
	ReceivedAt        time.Time       `json:"received_at"`
}
