package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
	DirectionSystem   Direction = "system"
)

func (d Direction) Valid() bool {
	switch d {
	case DirectionInbound, DirectionOutbound, DirectionSystem:
		return true
	}
	return false
}

type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
	ChannelEmail    Channel = "email"
	ChannelWeb      Channel = "web"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelWhatsApp, ChannelSMS, ChannelEmail, ChannelWeb:
		return true
	}
	return false
}

// DefaultContentType is stored when a message is created without one.
const DefaultContentType = "text"

// Message is a row in the messages table.
type Message struct {
	ID                string         `json:"id"`
	ConversationID    string         `json:"conversation_id"`
	SenderCustomerID  *string        `json:"sender_customer_id,omitempty"`
	Direction         Direction      `json:"direction"`
	Channel           Channel        `json:"channel"`
	ExternalMessageID *string        `json:"external_message_id,omitempty"`
	Body              string         `json:"body"`
	ContentType       string         `json:"content_type"`
	MediaID           *string        `json:"media_id,omitempty"`
	Metadata          map[string]any `json:"metadata"`
	SentAt            *time.Time     `json:"sent_at,omitempty"`
	IsProcessed       bool           `json:"is_processed"`
	Attempts          int            `json:"attempts"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// HistoryEntry is one body edit. Body is the new text and PreviousBody the
// text it replaced.
type HistoryEntry struct {
	ID             string    `json:"id"`
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	CustomerID     *string   `json:"customer_id,omitempty"`
	Direction      Direction `json:"direction"`
	Body           string    `json:"body"`
	PreviousBody   string    `json:"previous_body"`
	EditorID       *string   `json:"editor_id,omitempty"`
	EditedAt       time.Time `json:"edited_at"`
}

// CreateMessageRequest is the body of POST /api/messages.
type CreateMessageRequest struct {
	ConversationID    string         `json:"conversation_id"`
	Direction         Direction      `json:"direction"`
	Body              string         `json:"body"`
	SenderCustomerID  *string        `json:"sender_customer_id,omitempty"`
	Channel           Channel        `json:"channel,omitempty"`
	ExternalMessageID *string        `json:"external_message_id,omitempty"`
	ContentType       string         `json:"content_type,omitempty"`
	MediaID           *string        `json:"media_id,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// ValidationError reports the offending field of a rejected request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Normalize applies defaults and validates the request.
func (r *CreateMessageRequest) Normalize() error {
	r.ConversationID = strings.TrimSpace(r.ConversationID)
	if r.ConversationID == "" {
		return &ValidationError{Field: "conversation_id", Message: "is required"}
	}
	if _, err := uuid.Parse(r.ConversationID); err != nil {
		return &ValidationError{Field: "conversation_id", Message: "must be a UUID"}
	}
	if !r.Direction.Valid() {
		return &ValidationError{Field: "direction", Message: "must be one of inbound, outbound, system"}
	}
	if r.Body == "" {
		return &ValidationError{Field: "body", Message: "is required"}
	}
	if r.SenderCustomerID != nil {
		if _, err := uuid.Parse(*r.SenderCustomerID); err != nil {
			return &ValidationError{Field: "sender_customer_id", Message: "must be a UUID"}
		}
	}
	if r.Channel == "" {
		r.Channel = ChannelWhatsApp
	}
	if !r.Channel.Valid() {
		return &ValidationError{Field: "channel", Message: "must be one of whatsapp, sms, email, web"}
	}
	if r.ContentType == "" {
		r.ContentType = DefaultContentType
	}
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	return nil
}

// EditMessageRequest is the body of PUT /api/messages/{id}.
type EditMessageRequest struct {
	Body     string  `json:"body"`
	EditorID *string `json:"editor_id,omitempty"`
}

func (r *EditMessageRequest) Validate() error {
	if r.Body == "" {
		return &ValidationError{Field: "body", Message: "is required"}
	}
	return nil
}

// ListMessagesRequest pages through a conversation, most recently sent first.
type ListMessagesRequest struct {
	ConversationID string
	Limit          int
	Offset         int
}

// DefaultListLimit caps a page when no limit is given.
const DefaultListLimit = 50

// Delivery failure metadata keys written by the dispatcher.
const (
	MetaFailedAt      = "failed_at"
	MetaFailureReason = "failure_reason"
	MetaAttempts      = "attempts"
)
