package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kobliat/kobliat-stack/common/database"
	"github.com/kobliat/kobliat-stack/gateway/internal/models"
)

// PostgresRepository implements WebhookRepository on database/sql with the pgx driver.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Exists(ctx context.Context, provider, providerMessageID string) (bool, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM inbound_webhooks
			WHERE provider = $1 AND provider_message_id = $2
		)`, provider, providerMessageID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check webhook: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) Create(ctx context.Context, wh *models.InboundWebhook) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	headers, err := json.Marshal(wh.Headers)
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO inbound_webhooks
			(id, provider, provider_message_id, headers, raw_payload, is_processed, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		wh.ID, wh.Provider, wh.ProviderMessageID, headers, []byte(wh.RawPayload), wh.IsProcessed, wh.ReceivedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert webhook: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, provider, providerMessageID string) (*models.InboundWebhook, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	var (
		wh      models.InboundWebhook
		headers []byte
		payload []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, provider, provider_message_id, headers, raw_payload, is_processed, received_at
		FROM inbound_webhooks
		WHERE provider = $1 AND provider_message_id = $2`,
		provider, providerMessageID,
	).Scan(&wh.ID, &wh.Provider, &wh.ProviderMessageID, &headers, &payload, &wh.IsProcessed, &wh.ReceivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook: %w", err)
	}

	if len(headers) > 0 {
		wh.Headers = http.Header{}
		if err := json.Unmarshal(headers, &wh.Headers); err != nil {
			return nil, fmt.Errorf("decode headers: %w", err)
		}
	}
	wh.RawPayload = payload
	return &wh, nil
}

func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM inbound_webhooks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count webhooks: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
