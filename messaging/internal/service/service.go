// Package service implements the message API: validated creation with its
// direction-specific side effects, lookups, and the append-only edit history.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kobliat/kobliat-stack/common/eventbus"
	"github.com/kobliat/kobliat-stack/common/logging"
	"github.com/kobliat/kobliat-stack/common/messaging"
	"github.com/kobliat/kobliat-stack/common/middleware"
	"github.com/kobliat/kobliat-stack/messaging/internal/dispatch"
	"github.com/kobliat/kobliat-stack/messaging/internal/metrics"
	"github.com/kobliat/kobliat-stack/messaging/internal/models"
	"github.com/kobliat/kobliat-stack/messaging/internal/repository"
)

// Enqueuer accepts outbound delivery jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job dispatch.Job) error
}

type Service struct {
	repo   repository.Repository
	bus    eventbus.Publisher
	queue  Enqueuer
	logger *logging.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo repository.Repository, bus eventbus.Publisher, queue Enqueuer, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		bus:    bus,
		queue:  queue,
		logger: logging.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a message. Inbound messages are stamped sent and processed
// and announced as message.inbound.created; outbound messages are queued for
// delivery; system messages are only stored. Neither side effect can undo the
// stored row: failures are logged and counted.
func (s *Service) Create(ctx context.Context, req models.CreateMessageRequest) (*models.Message, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	msg := &models.Message{
		ID:                uuid.Must(uuid.NewV7()).String(),
		ConversationID:    req.ConversationID,
		SenderCustomerID:  req.SenderCustomerID,
		Direction:         req.Direction,
		Channel:           req.Channel,
		ExternalMessageID: req.ExternalMessageID,
		Body:              req.Body,
		ContentType:       req.ContentType,
		MediaID:           req.MediaID,
		Metadata:          req.Metadata,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if msg.Direction == models.DirectionInbound {
		msg.SentAt = &now
		msg.IsProcessed = true
	}

	if err := s.repo.Create(ctx, msg); err != nil {
		return nil, err
	}
	metrics.MessagesCreated.WithLabelValues(string(msg.Direction), string(msg.Channel)).Inc()

	log := s.logger.With(logging.MessageID(msg.ID), logging.Channel(string(msg.Channel)))
	switch msg.Direction {
	case models.DirectionInbound:
		res := s.bus.Publish(ctx, messaging.TopicMessageInboundCreated, map[string]any{
			"message_id":      msg.ID,
			"conversation_id": msg.ConversationID,
			"direction":       string(msg.Direction),
			"body":            msg.Body,
		})
		if res.Failed() {
			metrics.PublishFailures.Inc()
			log.WarnContext(ctx, "Message stored but event publish failed",
				logging.Topic(messaging.TopicMessageInboundCreated),
				"reason", res.Reason(),
			)
		}
	case models.DirectionOutbound:
		if err := s.enqueue(ctx, msg); err != nil {
			metrics.EnqueueFailures.Inc()
			log.ErrorContext(ctx, "Outbound message stored but not queued", logging.Error(err))
		} else {
			log.InfoContext(ctx, "Outbound message queued for sending")
		}
	}
	return msg, nil
}

func (s *Service) enqueue(ctx context.Context, msg *models.Message) error {
	if s.queue == nil {
		return errors.New("no dispatch queue configured")
	}
	job, err := dispatch.NewJob(msg, middleware.GetTraceID(ctx), s.now())
	if err != nil {
		return err
	}
	return s.queue.Enqueue(ctx, job)
}

func (s *Service) Get(ctx context.Context, id string) (*models.Message, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByConversation(ctx context.Context, req models.ListMessagesRequest) ([]*models.Message, error) {
	if strings.TrimSpace(req.ConversationID) == "" {
		return nil, &models.ValidationError{Field: "conversation_id", Message: "is required"}
	}
	if req.Limit > 200 {
		req.Limit = 200
	}
	if req.Offset < 0 {
		req.Offset = 0
	}
	return s.repo.ListByConversation(ctx, req)
}

// History returns the edits of a message, oldest first.
func (s *Service) History(ctx context.Context, messageID string) ([]*models.HistoryEntry, error) {
	if _, err := s.repo.Get(ctx, messageID); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, messageID)
}

// Edit validates req and records it.
func (s *Service) Edit(ctx context.Context, id string, req models.EditMessageRequest) (*models.Message, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	msg, _, err := s.RecordEdit(ctx, id, req.Body, req.EditorID)
	return msg, err
}

// RecordEdit appends one history row anchored to the current body and then
// applies newBody, in a single transaction. Creation writes no history.
func (s *Service) RecordEdit(ctx context.Context, id, newBody string, editorID *string) (*models.Message, *models.HistoryEntry, error) {
	msg, entry, err := s.repo.RecordEdit(ctx, id, repository.Edit{
		HistoryID: uuid.Must(uuid.NewV7()).String(),
		Body:      newBody,
		EditorID:  editorID,
		EditedAt:  s.now().UTC(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("record edit: %w", err)
	}
	metrics.MessageEdits.Inc()
	s.logger.InfoContext(ctx, "Message edited", logging.MessageID(id))
	return msg, entry, nil
}

// Ready reports whether the store is reachable.
func (s *Service) Ready(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
