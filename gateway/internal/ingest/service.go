// Package ingest turns provider webhooks into stored records and
// webhook.inbound.received events.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kobliat/kobliat-stack/common/eventbus"
	"github.com/kobliat/kobliat-stack/common/logging"
	"github.com/kobliat/kobliat-stack/common/messaging"
	"github.com/kobliat/kobliat-stack/gateway/internal/metrics"
	"github.com/kobliat/kobliat-stack/gateway/internal/models"
	"github.com/kobliat/kobliat-stack/gateway/internal/normalizer"
	"github.com/kobliat/kobliat-stack/gateway/internal/repository"
)

// ErrInvalidPayload is returned when the body is not a JSON object.
var ErrInvalidPayload = errors.New("invalid webhook payload")

// Outcome of one ingestion. The values double as the HTTP response status text.
type Outcome string

const (
	OutcomeReceived  Outcome = "received"
	OutcomeDuplicate Outcome = "ignored_duplicate"
	OutcomeDropped   Outcome = "ignored_malformed"
)

// Result describes what Ingest did.
type Result struct {
	Outcome Outcome
	Message normalizer.Message
	// Record is set for OutcomeReceived.
	Record *models.InboundWebhook
	// Event is the publish result for OutcomeReceived.
	Event eventbus.Result
}

// Listener is invoked in-process after a webhook is stored. The inline
// orchestrator is the only listener in production.
type Listener interface {
	HandleWebhookReceived(ctx context.Context, env eventbus.Envelope) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, env eventbus.Envelope) error

func (f ListenerFunc) HandleWebhookReceived(ctx context.Context, env eventbus.Envelope) error {
	return f(ctx, env)
}

// Stats counts outcomes since start.
type Stats struct {
	Received        int64     `json:"received"`
	Duplicates      int64     `json:"duplicates"`
	Dropped         int64     `json:"dropped"`
	PublishFailures int64     `json:"publish_failures"`
	LastWebhook     time.Time `json:"last_webhook,omitempty"`
}

// Service ingests webhooks. It is safe for concurrent use; the repository's
// unique key is the only guard against concurrent duplicates.
type Service struct {
	repo        repository.WebhookRepository
	bus         eventbus.Publisher
	normalizers *normalizer.Registry
	listeners   []Listener
	logger      *logging.Logger
	now         func() time.Time

	statsMu sync.RWMutex
	stats   Stats
}

// Option configures a Service.
type Option func(*Service)

// WithListeners registers in-process listeners for webhook.inbound.received.
func WithListeners(listeners ...Listener) Option {
	return func(s *Service) { s.listeners = append(s.listeners, listeners...) }
}

func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo repository.WebhookRepository, bus eventbus.Publisher, normalizers *normalizer.Registry, opts ...Option) *Service {
	if normalizers == nil {
		normalizers = normalizer.NewDefaultRegistry()
	}
	s := &Service{
		repo:        repo,
		bus:         bus,
		normalizers: normalizers,
		logger:      logging.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest normalizes raw, drops incomplete messages, skips known
// (provider, provider_message_id) keys, and otherwise stores the record and
// publishes webhook.inbound.received. A failed publish is logged; the stored
// record is kept.
func (s *Service) Ingest(ctx context.Context, provider string, raw []byte, headers http.Header) (Result, error) {
	start := time.Now()
	defer func() { metrics.IngestDuration.Observe(time.Since(start).Seconds()) }()
	metrics.WebhookBytesTotal.Add(float64(len(raw)))

	payload, err := normalizer.Decode(raw)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	msg := s.normalizers.Normalize(provider, raw, payload)
	log := s.logger.With(logging.Provider(provider), "provider_message_id", msg.ProviderMessageID)

	if !msg.Complete() {
		log.WarnContext(ctx, "Skipping webhook: missing sender or body")
		s.record(provider, OutcomeDropped)
		return Result{Outcome: OutcomeDropped, Message: msg}, nil
	}

	exists, err := s.repo.Exists(ctx, provider, msg.ProviderMessageID)
	if err != nil {
		return Result{}, fmt.Errorf("check duplicate: %w", err)
	}
	if exists {
		log.InfoContext(ctx, "Duplicate webhook received")
		s.record(provider, OutcomeDuplicate)
		return Result{Outcome: OutcomeDuplicate, Message: msg}, nil
	}

	record := &models.InboundWebhook{
		ID:                uuid.NewString(),
		Provider:          provider,
		ProviderMessageID: msg.ProviderMessageID,
		Headers:           headers.Clone(),
		RawPayload:        json.RawMessage(append([]byte(nil), raw...)),
		IsProcessed:       true,
		ReceivedAt:        s.now().UTC(),
	}
	if err := s.repo.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			log.InfoContext(ctx, "Duplicate webhook lost insert race")
			s.record(provider, OutcomeDuplicate)
			return Result{Outcome: OutcomeDuplicate, Message: msg}, nil
		}
		return Result{}, fmt.Errorf("store webhook: %w", err)
	}

	event := s.bus.Publish(ctx, messaging.TopicWebhookInboundReceived, map[string]any{
		"provider":            provider,
		"provider_message_id": msg.ProviderMessageID,
		"raw_payload":         payload,
		"normalized":          msg.Map(),
	})
	if event.Failed() {
		metrics.PublishFailures.Inc()
		s.statsMu.Lock()
		s.stats.PublishFailures++
		s.statsMu.Unlock()
		log.ErrorContext(ctx, "Webhook stored but event not published", logging.Error(event.Err))
	}
	s.record(provider, OutcomeReceived)

	if !event.Envelope.IsZero() {
		s.notify(ctx, event.Envelope)
	}

	return Result{Outcome: OutcomeReceived, Message: msg, Record: record, Event: event}, nil
}

// notify runs listeners in order. Their failures never change the ingest outcome.
func (s *Service) notify(ctx context.Context, env eventbus.Envelope) {
	for _, l := range s.listeners {
		if err := l.HandleWebhookReceived(ctx, env); err != nil {
			s.logger.ErrorContext(ctx, "Webhook listener failed",
				logging.EventID(env.EventID()),
				logging.Error(err),
			)
		}
	}
}

func (s *Service) record(provider string, outcome Outcome) {
	metrics.WebhooksTotal.WithLabelValues(provider, string(outcome)).Inc()

	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	switch outcome {
	case OutcomeReceived:
		s.stats.Received++
	case OutcomeDuplicate:
		s.stats.Duplicates++
	case OutcomeDropped:
		s.stats.Dropped++
	}
	s.stats.LastWebhook = s.now().UTC()
}

// Stats returns a snapshot of ingestion counters.
func (s *Service) Stats() Stats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.stats
}

// Ready reports whether the webhook store is reachable.
func (s *Service) Ready(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
