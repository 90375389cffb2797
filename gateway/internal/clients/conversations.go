package clients

import (
	"context"
	"errors"
	"time"
)

// ConversationTypeDirect is a one-to-one conversation with a customer.
const ConversationTypeDirect = "direct"

type conversationRequest struct {
	Type         string   `json:"type"`
	Participants []string `json:"participants"`
}

type Conversation struct {
	ID string
}

// ConversationClient talks to the conversation service.
type ConversationClient struct {
	baseClient
}

func NewConversationClient(baseURL string, timeout time.Duration) *ConversationClient {
	return &ConversationClient{newBaseClient("conversation service", baseURL, timeout)}
}

// FindOrCreateDirect returns the open direct conversation for customerID,
// creating it when none exists.
func (c *ConversationClient) FindOrCreateDirect(ctx context.Context, customerID string) (*Conversation, error) {
	var resp idResponse
	err := c.postJSON(ctx, "/api/conversations", conversationRequest{
		Type:         ConversationTypeDirect,
		Participants: []string{customerID},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.id() == "" {
		return nil, errors.New("conversation service response has no id")
	}
	return &Conversation{ID: resp.id()}, nil
}
