package repository

import (
	"context"
	"errors"

	"github.com/kobliat/kobliat-stack/gateway/internal/models"
)

var (
	ErrDuplicate = errors.New("webhook already recorded")
	ErrNotFound  = errors.New("webhook not found")
)

// WebhookRepository stores inbound webhook records keyed by (provider, provider_message_id).
type WebhookRepository interface {
	Exists(ctx context.Context, provider, providerMessageID string) (bool, error)
	// Create inserts wh. A second record for the same key returns ErrDuplicate.
	Create(ctx context.Context, wh *models.InboundWebhook) error
	Get(ctx context.Context, provider, providerMessageID string) (*models.InboundWebhook, error)
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}
