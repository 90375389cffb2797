package repository

import (
	"context"
	"sync"

	"github.com/kobliat/kobliat-stack/gateway/internal/models"
)

type key struct {
	provider string
	id       string
}

// InMemoryRepository is a WebhookRepository for development and tests.
type InMemoryRepository struct {
	mu       sync.RWMutex
	webhooks map[key]*models.InboundWebhook
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{webhooks: make(map[key]*models.InboundWebhook)}
}

func (r *InMemoryRepository) Exists(_ context.Context, provider, providerMessageID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.webhooks[key{provider, providerMessageID}]
	return ok, nil
}

func (r *InMemoryRepository) Create(_ context.Context, wh *models.InboundWebhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{wh.Provider, wh.ProviderMessageID}
	if _, ok := r.webhooks[k]; ok {
		return ErrDuplicate
	}
	stored := *wh
	stored.RawPayload = append([]byte(nil), wh.RawPayload...)
	stored.Headers = wh.Headers.Clone()
	r.webhooks[k] = &stored
	return nil
}

func (r *InMemoryRepository) Get(_ context.Context, provider, providerMessageID string) (*models.InboundWebhook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wh, ok := r.webhooks[key{provider, providerMessageID}]
	if !ok {
		return nil, ErrNotFound
	}
	out := *wh
	return &out, nil
}

func (r *InMemoryRepository) Count(context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.webhooks), nil
}

func (r *InMemoryRepository) Ping(context.Context) error { return nil }
