package clients

import (
	"context"
	"errors"
	"time"
)

// InboundMessageRequest is the body of POST /api/messages for inbound traffic.
type InboundMessageRequest struct {
	ConversationID   string `json:"conversation_id"`
	Direction        string `json:"direction"`
	Body             string `json:"body"`
	SenderCustomerID string `json:"sender_customer_id"`
	Channel          string `json:"channel"`
}

type Message struct {
	ID string
}

// MessageClient talks to the messaging service.
type MessageClient struct {
	baseClient
}

func NewMessageClient(baseURL string, timeout time.Duration) *MessageClient {
	return &MessageClient{newBaseClient("messaging service", baseURL, timeout)}
}

// CreateInbound creates an inbound message. The messaging service stamps
// sent_at and marks it processed.
func (c *MessageClient) CreateInbound(ctx context.Context, req InboundMessageRequest) (*Message, error) {
	req.Direction = "inbound"
	var resp idResponse
	if err := c.postJSON(ctx, "/api/messages", req, &resp); err != nil {
		return nil, err
	}
	if resp.id() == "" {
		return nil, errors.New("messaging service response has no id")
	}
	return &Message{ID: resp.id()}, nil
}
