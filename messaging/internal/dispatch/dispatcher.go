package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kobliat/kobliat-stack/common/dlq"
	"github.com/kobliat/kobliat-stack/common/idgen"
	"github.com/kobliat/kobliat-stack/common/logging"
	"github.com/kobliat/kobliat-stack/common/middleware"
	"github.com/kobliat/kobliat-stack/messaging/internal/metrics"
	"github.com/kobliat/kobliat-stack/messaging/internal/models"
)

// Store is the delivery-state slice of the message repository.
// RecordAttempt and MarkFailed must not modify a delivered message.
type Store interface {
	IsProcessed(ctx context.Context, id string) (bool, error)
	RecordAttempt(ctx context.Context, id string, attempts int) error
	MarkDelivered(ctx context.Context, id string, sentAt time.Time, attempts int) error
	MarkFailed(ctx context.Context, id string, metadata map[string]any, attempts int) error
}

// Dispatcher performs single delivery attempts and settles their outcome on
// the message record. Scheduling of further attempts belongs to the queue.
type Dispatcher struct {
	registry   *Registry
	store      Store
	deadLetter dlq.Writer
	logger     *logging.Logger
	now        func() time.Time
}

type Option func(*Dispatcher)

func WithLogger(logger *logging.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithDeadLetter sets where permanently failed jobs are written.
func WithDeadLetter(w dlq.Writer) Option {
	return func(d *Dispatcher) { d.deadLetter = w }
}

func NewDispatcher(registry *Registry, store Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		store:    store,
		logger:   logging.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Attempt makes delivery attempt number attempt (1-based) and returns the
// state the job is left in: delivered, retrying or permanently_failed. The
// returned error is the delivery failure, if any. A job whose message is
// already delivered, as on a redelivery after a lost ack, settles as
// delivered without sending again.
func (d *Dispatcher) Attempt(ctx context.Context, job Job, attempt int) (State, error) {
	if job.TraceID != "" {
		ctx = middleware.WithTraceID(ctx, job.TraceID)
	}
	transport := d.registry.For(job.Channel)
	log := d.logger.With(
		logging.MessageID(job.MessageID),
		logging.Channel(string(job.Channel)),
		logging.Attempt(attempt),
	)

	processed, err := d.store.IsProcessed(ctx, job.MessageID)
	if err != nil {
		log.WarnContext(ctx, "Could not read delivery state; attempting anyway", logging.Error(err))
	} else if processed {
		metrics.DispatchAttempts.WithLabelValues(string(job.Channel), "skipped").Inc()
		log.InfoContext(ctx, "Message already delivered; skipping send", "job_id", job.ID)
		return StateDelivered, nil
	}

	log.InfoContext(ctx, "Attempting to send outbound message", "job_id", job.ID, "transport", transport.Name())

	start := time.Now()
	err = transport.Send(ctx, job)
	metrics.DispatchDuration.WithLabelValues(string(job.Channel)).Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.DispatchAttempts.WithLabelValues(string(job.Channel), "delivered").Inc()
		metrics.DispatchTerminal.WithLabelValues(string(StateDelivered)).Inc()
		if serr := d.store.MarkDelivered(ctx, job.MessageID, d.now().UTC(), attempt); serr != nil {
			log.ErrorContext(ctx, "Delivered but failed to record delivery", logging.Error(serr))
		}
		log.InfoContext(ctx, "Successfully sent outbound message")
		return StateDelivered, nil
	}

	metrics.DispatchAttempts.WithLabelValues(string(job.Channel), "failed").Inc()
	log.ErrorContext(ctx, "Error sending outbound message", logging.Error(err))

	if attempt >= MaxAttempts {
		d.fail(ctx, log, job, attempt, err)
		return StatePermanentlyFailed, err
	}

	if serr := d.store.RecordAttempt(ctx, job.MessageID, attempt); serr != nil {
		log.ErrorContext(ctx, "Failed to record delivery attempt", logging.Error(serr))
	}
	return StateRetrying, err
}

// fail writes the terminal diagnostics and dead-letters the job.
func (d *Dispatcher) fail(ctx context.Context, log *logging.Logger, job Job, attempt int, cause error) {
	failedAt := d.now().UTC()
	metrics.DispatchTerminal.WithLabelValues(string(StatePermanentlyFailed)).Inc()

	metadata := map[string]any{
		models.MetaFailedAt:      failedAt.Format(time.RFC3339),
		models.MetaFailureReason: cause.Error(),
		models.MetaAttempts:      attempt,
	}
	if err := d.store.MarkFailed(ctx, job.MessageID, metadata, attempt); err != nil {
		log.ErrorContext(ctx, "Failed to record terminal failure", logging.Error(err))
	}
	log.ErrorContext(ctx, "Outbound message permanently failed", "max_attempts", MaxAttempts)

	if d.deadLetter == nil {
		return
	}
	raw, err := json.Marshal(job)
	if err != nil {
		log.ErrorContext(ctx, "Failed to encode job for DLQ", logging.Error(err))
		return
	}
	id, err := idgen.New(idgen.PrefixDeadLetter)
	if err != nil {
		log.ErrorContext(ctx, "Failed to allocate DLQ id", logging.Error(err))
		return
	}
	entry := dlq.Entry{
		ID:             id,
		JobID:          job.ID,
		MessageID:      job.MessageID,
		ConversationID: job.ConversationID,
		Channel:        string(job.Channel),
		Reason:         dlq.ReasonAttemptsExhausted,
		Error:          cause.Error(),
		Attempts:       attempt,
		FailedAt:       failedAt,
		TraceID:        job.TraceID,
		Job:            raw,
	}
	if err := d.deadLetter.Write(ctx, entry); err != nil {
		log.ErrorContext(ctx, "Failed to write DLQ entry", logging.Error(err))
		return
	}
	metrics.DeadLetters.Inc()
}
