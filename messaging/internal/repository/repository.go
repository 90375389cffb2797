package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kobliat/kobliat-stack/messaging/internal/models"
)

var ErrNotFound = errors.New("message not found")

// Repository stores messages and their edit history.
type Repository interface {
	Create(ctx context.Context, msg *models.Message) error
	Get(ctx context.Context, id string) (*models.Message, error)
	ListByConversation(ctx context.Context, req models.ListMessagesRequest) ([]*models.Message, error)
	History(ctx context.Context, messageID string) ([]*models.HistoryEntry, error)

	// RecordEdit appends a history row holding the current body as
	// previous_body and replaces the body, atomically.
	RecordEdit(ctx context.Context, messageID string, edit Edit) (*models.Message, *models.HistoryEntry, error)

	// Delivery state. These never touch body, conversation or sender, and
	// once a message is delivered RecordAttempt and MarkFailed leave it alone.
	IsProcessed(ctx context.Context, id string) (bool, error)
	RecordAttempt(ctx context.Context, id string, attempts int) error
	MarkDelivered(ctx context.Context, id string, sentAt time.Time, attempts int) error
	MarkFailed(ctx context.Context, id string, metadata map[string]any, attempts int) error

	Ping(ctx context.Context) error
	Close()
}

// Edit describes one body change.
type Edit struct {
	HistoryID string
	Body      string
	EditorID  *string
	EditedAt  time.Time
}
