package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kobliat/kobliat-stack/common/database"
	"github.com/kobliat/kobliat-stack/messaging/internal/models"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()
	return r.pool.Ping(ctx)
}

const messageColumns = `
	id::text, conversation_id::text, sender_customer_id::text, direction::text, channel,
	external_message_id, COALESCE(body, ''), content_type, media_id::text, metadata,
	sent_at, is_processed, attempts, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, msg *models.Message) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	metadata, err := json.Marshal(nonNil(msg.Metadata))
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO messages
		(id, conversation_id, sender_customer_id, direction, channel, external_message_id,
		 body, content_type, media_id, metadata, sent_at, is_processed, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = r.pool.Exec(ctx, query,
		msg.ID,
		msg.ConversationID,
		msg.SenderCustomerID,
		string(msg.Direction),
		string(msg.Channel),
		msg.ExternalMessageID,
		msg.Body,
		msg.ContentType,
		msg.MediaID,
		metadata,
		msg.SentAt,
		msg.IsProcessed,
		msg.Attempts,
		msg.CreatedAt,
		msg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Message, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	row := r.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

func (r *PostgresRepository) ListByConversation(ctx context.Context, req models.ListMessagesRequest) ([]*models.Message, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	limit := req.Limit
	if limit <= 0 {
		limit = models.DefaultListLimit
	}
	query := `SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
		ORDER BY sent_at DESC NULLS LAST, created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, req.ConversationID, limit, req.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) History(ctx context.Context, messageID string) ([]*models.HistoryEntry, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	query := `
		SELECT id::text, message_id::text, conversation_id::text, customer_id::text, direction::text,
		       COALESCE(body, ''), COALESCE(previous_body, ''), editor_id, edited_at
		FROM message_history
		WHERE message_id = $1
		ORDER BY edited_at, id`

	rows, err := r.pool.Query(ctx, query, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list message history: %w", err)
	}
	defer rows.Close()

	var out []*models.HistoryEntry
	for rows.Next() {
		var (
			h         models.HistoryEntry
			direction string
		)
		if err := rows.Scan(&h.ID, &h.MessageID, &h.ConversationID, &h.CustomerID, &direction,
			&h.Body, &h.PreviousBody, &h.EditorID, &h.EditedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		h.Direction = models.Direction(direction)
		out = append(out, &h)
	}
	return out, rows.Err()
}

// RecordEdit locks the message row so concurrent edits each anchor to the
// body they actually replaced.
func (r *PostgresRepository) RecordEdit(ctx context.Context, messageID string, edit Edit) (*models.Message, *models.HistoryEntry, error) {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	msg, err := scanMessage(tx.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1 FOR UPDATE`, messageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to lock message: %w", err)
	}

	entry := &models.HistoryEntry{
		ID:             edit.HistoryID,
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		CustomerID:     msg.SenderCustomerID,
		Direction:      msg.Direction,
		Body:           edit.Body,
		PreviousBody:   msg.Body,
		EditorID:       edit.EditorID,
		EditedAt:       edit.EditedAt,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO message_history
		(id, message_id, conversation_id, customer_id, direction, body, previous_body, editor_id, edited_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.MessageID, entry.ConversationID, entry.CustomerID, string(entry.Direction),
		entry.Body, entry.PreviousBody, entry.EditorID, entry.EditedAt,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to append history: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE messages SET body = $2, updated_at = $3 WHERE id = $1`,
		msg.ID, edit.Body, edit.EditedAt); err != nil {
		return nil, nil, fmt.Errorf("failed to update body: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit edit: %w", err)
	}

	msg.Body = edit.Body
	msg.UpdatedAt = edit.EditedAt
	return msg, entry, nil
}

func (r *PostgresRepository) IsProcessed(ctx context.Context, id string) (bool, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	var processed bool
	err := r.pool.QueryRow(ctx, `SELECT is_processed FROM messages WHERE id = $1`, id).Scan(&processed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("failed to get message: %w", err)
	}
	return processed, nil
}

func (r *PostgresRepository) RecordAttempt(ctx context.Context, id string, attempts int) error {
	return r.execPending(ctx, id, `
		UPDATE messages SET attempts = $2, updated_at = NOW()
		WHERE id = $1 AND is_processed = FALSE`, id, attempts)
}

func (r *PostgresRepository) MarkDelivered(ctx context.Context, id string, sentAt time.Time, attempts int) error {
	return r.exec(ctx, `
		UPDATE messages
		SET is_processed = TRUE, sent_at = $2, attempts = $3, updated_at = NOW()
		WHERE id = $1`, id, sentAt, attempts)
}

// MarkFailed merges metadata into the existing document. Delivered messages
// are left untouched.
func (r *PostgresRepository) MarkFailed(ctx context.Context, id string, metadata map[string]any, attempts int) error {
	patch, err := json.Marshal(nonNil(metadata))
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return r.execPending(ctx, id, `
		UPDATE messages
		SET metadata = COALESCE(metadata, '{}'::jsonb) || $2::jsonb,
		    attempts = $3,
		    updated_at = NOW()
		WHERE id = $1 AND is_processed = FALSE`, id, patch, attempts)
}

// execPending runs an update guarded by is_processed = FALSE. No matching row
// is only an error when the message does not exist.
func (r *PostgresRepository) execPending(ctx context.Context, id, query string, args ...any) error {
	err := r.exec(ctx, query, args...)
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	if _, err := r.IsProcessed(ctx, id); err != nil {
		return err
	}
	return nil
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var (
		msg       models.Message
		direction string
		channel   string
		metadata  []byte
	)
	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderCustomerID,
		&direction,
		&channel,
		&msg.ExternalMessageID,
		&msg.Body,
		&msg.ContentType,
		&msg.MediaID,
		&metadata,
		&msg.SentAt,
		&msg.IsProcessed,
		&msg.Attempts,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	msg.Direction = models.Direction(direction)
	msg.Channel = models.Channel(channel)
	msg.Metadata = map[string]any{}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &msg, nil
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
