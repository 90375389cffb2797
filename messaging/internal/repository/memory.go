package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kobliat/kobliat-stack/messaging/internal/models"
)

// InMemoryRepository is a Repository for development and tests.
type InMemoryRepository struct {
	mu       sync.Mutex
	messages map[string]*models.Message
	history  map[string][]*models.HistoryEntry
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		messages: make(map[string]*models.Message),
		history:  make(map[string][]*models.HistoryEntry),
	}
}

func (r *InMemoryRepository) Create(_ context.Context, msg *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[msg.ID] = cloneMessage(msg)
	return nil
}

func (r *InMemoryRepository) Get(_ context.Context, id string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMessage(msg), nil
}

func (r *InMemoryRepository) ListByConversation(_ context.Context, req models.ListMessagesRequest) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Message
	for _, msg := range r.messages {
		if msg.ConversationID == req.ConversationID {
			out = append(out, cloneMessage(msg))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.SentAt != nil && b.SentAt != nil && !a.SentAt.Equal(*b.SentAt):
			return a.SentAt.After(*b.SentAt)
		case a.SentAt != nil && b.SentAt == nil:
			return true
		case a.SentAt == nil && b.SentAt != nil:
			return false
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	limit := req.Limit
	if limit <= 0 {
		limit = models.DefaultListLimit
	}
	if req.Offset >= len(out) {
		return nil, nil
	}
	out = out[req.Offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *InMemoryRepository) History(_ context.Context, messageID string) ([]*models.HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.history[messageID]
	out := make([]*models.HistoryEntry, len(entries))
	for i, h := range entries {
		c := *h
		out[i] = &c
	}
	return out, nil
}

func (r *InMemoryRepository) RecordEdit(_ context.Context, messageID string, edit Edit) (*models.Message, *models.HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.messages[messageID]
	if !ok {
		return nil, nil, ErrNotFound
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
	r.history[messageID] = append(r.history[messageID], entry)
	msg.Body = edit.Body
	msg.UpdatedAt = edit.EditedAt

	c := *entry
	return cloneMessage(msg), &c, nil
}

func (r *InMemoryRepository) IsProcessed(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok {
		return false, ErrNotFound
	}
	return msg.IsProcessed, nil
}

func (r *InMemoryRepository) RecordAttempt(_ context.Context, id string, attempts int) error {
	return r.updatePending(id, func(m *models.Message) {
		m.Attempts = attempts
	})
}

func (r *InMemoryRepository) MarkDelivered(_ context.Context, id string, sentAt time.Time, attempts int) error {
	return r.update(id, func(m *models.Message) {
		m.IsProcessed = true
		m.SentAt = &sentAt
		m.Attempts = attempts
	})
}

func (r *InMemoryRepository) MarkFailed(_ context.Context, id string, metadata map[string]any, attempts int) error {
	return r.updatePending(id, func(m *models.Message) {
		if m.Metadata == nil {
			m.Metadata = map[string]any{}
		}
		for k, v := range metadata {
			m.Metadata[k] = v
		}
		m.Attempts = attempts
	})
}

func (r *InMemoryRepository) Ping(context.Context) error { return nil }

func (r *InMemoryRepository) Close() {}

func (r *InMemoryRepository) update(id string, fn func(*models.Message)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok {
		return ErrNotFound
	}
	fn(msg)
	msg.UpdatedAt = time.Now().UTC()
	return nil
}

// updatePending applies fn only while the message is undelivered. A delivered
// message is left as is and no error is returned.
func (r *InMemoryRepository) updatePending(id string, fn func(*models.Message)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok {
		return ErrNotFound
	}
	if msg.IsProcessed {
		return nil
	}
	fn(msg)
	msg.UpdatedAt = time.Now().UTC()
	return nil
}

func cloneMessage(m *models.Message) *models.Message {
	c := *m
	c.Metadata = make(map[string]any, len(m.Metadata))
	for k, v := range m.Metadata {
		c.Metadata[k] = v
	}
	return &c
}
