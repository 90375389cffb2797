package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kobliat/kobliat-stack/common/logging"
)

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("dispatch queue closed")

// Queue accepts delivery jobs.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Close() error
}

// Clock schedules retries. As with time.AfterFunc, f must run on its own
// goroutine.
type Clock interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

type attemptRequest struct {
	job     Job
	attempt int
}

// MemoryQueue runs jobs on an in-process worker pool and schedules retries
// with the clock. Pending retries are lost when the process stops.
type MemoryQueue struct {
	dispatcher *Dispatcher
	clock      Clock
	logger     *logging.Logger
	work       chan attemptRequest
	done       chan struct{}
	wg         sync.WaitGroup
	// sending counts Enqueue calls between the closed check and the send.
	sending sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	pending map[string]func() bool
}

type MemoryOption func(*MemoryQueue)

func WithQueueClock(c Clock) MemoryOption {
	return func(q *MemoryQueue) { q.clock = c }
}

func WithQueueLogger(logger *logging.Logger) MemoryOption {
	return func(q *MemoryQueue) { q.logger = logger }
}

// NewMemoryQueue starts workers goroutines.
func NewMemoryQueue(d *Dispatcher, workers int, opts ...MemoryOption) *MemoryQueue {
	if workers <= 0 {
		workers = 1
	}
	q := &MemoryQueue{
		dispatcher: d,
		clock:      realClock{},
		logger:     logging.Default(),
		work:       make(chan attemptRequest, 1024),
		done:       make(chan struct{}),
		pending:    make(map[string]func() bool),
	}
	for _, opt := range opts {
		opt(q)
	}
	for range workers {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Enqueue hands job to the workers. A nil error means the first attempt will
// run, even if Close is called right after.
func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.sending.Add(1)
	q.mu.Unlock()
	defer q.sending.Done()

	select {
	case q.work <- attemptRequest{job: job, attempt: 1}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of jobs waiting on a retry timer.
func (q *MemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops retry timers, runs the first attempt of every job already
// accepted and waits for in-flight attempts.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	for id, stop := range q.pending {
		stop()
		delete(q.pending, id)
	}
	q.mu.Unlock()

	q.sending.Wait()
	close(q.done)
	q.wg.Wait()
	return nil
}

func (q *MemoryQueue) worker() {
	defer q.wg.Done()
	for {
		select {
		case req := <-q.work:
			q.run(req)
		case <-q.done:
			q.drain()
			return
		}
	}
}

// drain runs what is left in the buffer once the queue is closed.
func (q *MemoryQueue) drain() {
	for {
		select {
		case req := <-q.work:
			q.run(req)
		default:
			return
		}
	}
}

func (q *MemoryQueue) run(req attemptRequest) {
	state, _ := q.dispatcher.Attempt(context.Background(), req.job, req.attempt)
	if state != StateRetrying {
		return
	}
	q.schedule(attemptRequest{job: req.job, attempt: req.attempt + 1}, Backoff(req.attempt))
}

func (q *MemoryQueue) schedule(next attemptRequest, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.logger.Info("Outbound message scheduled for retry",
		logging.MessageID(next.job.MessageID),
		logging.Attempt(next.attempt),
		"delay", delay.String(),
	)
	q.pending[next.job.ID] = q.clock.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.pending, next.job.ID)
		q.mu.Unlock()

		select {
		case q.work <- next:
		case <-q.done:
		}
	})
}
