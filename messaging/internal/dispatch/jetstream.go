package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kobliat/kobliat-stack/common/logging"
	"github.com/kobliat/kobliat-stack/common/messaging"
	natsclient "github.com/kobliat/kobliat-stack/common/messaging/nats"
	"github.com/kobliat/kobliat-stack/common/middleware"
)

// JetStreamQueue publishes jobs to the DISPATCH_JOBS stream. Jobs survive
// restarts and are consumed by a JetStreamWorker, usually in cmd/dispatcher.
type JetStreamQueue struct {
	js *natsclient.JetStreamClient
}

// NewJetStreamQueue makes sure the jobs stream exists.
func NewJetStreamQueue(ctx context.Context, js *natsclient.JetStreamClient) (*JetStreamQueue, error) {
	if _, err := js.CreateOrUpdateStream(ctx, natsclient.DispatchJobsStream); err != nil {
		return nil, fmt.Errorf("ensure jobs stream: %w", err)
	}
	return &JetStreamQueue{js: js}, nil
}

// Enqueue publishes job with its id as the JetStream message id.
func (q *JetStreamQueue) Enqueue(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	msg := &messaging.Message{
		Subject: messaging.SubjectDispatchJobs,
		Data:    data,
		Metadata: map[string]string{
			"Content-Type":           "application/json",
			middleware.HeaderTraceID: job.TraceID,
		},
		Timestamp: time.Now(),
	}
	if _, err := q.js.PublishMsgSync(ctx, msg, job.ID); err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Close is a no-op; the connection belongs to the caller.
func (q *JetStreamQueue) Close() error { return nil }

// JetStreamWorker consumes DISPATCH_JOBS. The durable consumer allows
// MaxAttempts deliveries; the delivery count is the attempt number, a retry
// is a NAK delayed by Backoff, and the last delivery settles the job.
type JetStreamWorker struct {
	js         *natsclient.JetStreamClient
	dispatcher *Dispatcher
	name       string
	logger     *logging.Logger
	backoff    func(attempt int) time.Duration
	stop       func()
}

func NewJetStreamWorker(js *natsclient.JetStreamClient, d *Dispatcher, name string, logger *logging.Logger) *JetStreamWorker {
	if logger == nil {
		logger = logging.Default()
	}
	return &JetStreamWorker{js: js, dispatcher: d, name: name, logger: logger, backoff: Backoff}
}

// Start ensures the stream and consumer exist and begins consuming.
func (w *JetStreamWorker) Start(ctx context.Context) error {
	if _, err := w.js.CreateOrUpdateStream(ctx, natsclient.DispatchJobsStream); err != nil {
		return fmt.Errorf("ensure jobs stream: %w", err)
	}
	cfg := natsclient.DefaultConsumerConfig(w.name, messaging.SubjectDispatchJobs)
	cfg.MaxDeliver = MaxAttempts
	if _, err := w.js.CreateOrUpdateConsumer(ctx, natsclient.DispatchJobsStream.Name, cfg); err != nil {
		return fmt.Errorf("ensure consumer: %w", err)
	}

	stop, err := w.js.ConsumeMessages(ctx, natsclient.DispatchJobsStream.Name, w.name, w.handle)
	if err != nil {
		return err
	}
	w.stop = stop
	w.logger.Info("Dispatch worker started",
		"stream", natsclient.DispatchJobsStream.Name,
		"consumer", w.name,
		"max_deliver", MaxAttempts,
	)
	return nil
}

// Stop ends consumption. Unsettled jobs are redelivered to the next worker.
func (w *JetStreamWorker) Stop() {
	if w.stop != nil {
		w.stop()
		w.stop = nil
	}
}

func (w *JetStreamWorker) handle(ctx context.Context, msg *messaging.Message) error {
	job, err := decodeJob(msg.Data)
	if err != nil {
		w.logger.ErrorContext(ctx, "Dropping undecodable dispatch job", logging.Error(err))
		return natsclient.Terminate(err)
	}

	attempt := int(msg.Delivery)
	if attempt < 1 {
		attempt = 1
	}
	state, err := w.dispatcher.Attempt(ctx, job, attempt)
	switch state {
	case StateRetrying:
		return natsclient.RetryAfter(err, w.backoff(attempt))
	case StatePermanentlyFailed:
		return natsclient.Terminate(err)
	default:
		return nil
	}
}
