// Package dlq holds outbound delivery jobs that exhausted their attempts.
// Entries are written once by the dispatcher and only read or purged by
// operators; nothing replays them automatically.
package dlq

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/kobliat/kobliat-stack/common/logging"
)

// ReasonAttemptsExhausted is recorded when the last allowed attempt fails.
const ReasonAttemptsExhausted = "attempts_exhausted"

// Entry is one dead-lettered job.
type Entry struct {
	ID             string          `json:"id"`
	JobID          string          `json:"job_id"`
	MessageID      string          `json:"message_id"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Channel        string          `json:"channel"`
	Reason         string          `json:"reason"`
	Error          string          `json:"error"`
	Attempts       int             `json:"attempts"`
	FailedAt       time.Time       `json:"failed_at"`
	TraceID        string          `json:"trace_id,omitempty"`
	Job            json.RawMessage `json:"job,omitempty"`
}

type Writer interface {
	Write(ctx context.Context, entry Entry) error
}

// Store is a Writer that can also be inspected.
type Store interface {
	Writer
	List(ctx context.Context, limit int) ([]Entry, error)
	Purge(ctx context.Context) error
	Stats(ctx context.Context) map[string]any
}

// DefaultListLimit applies when List is called with limit <= 0.
const DefaultListLimit = 100

// MemoryQueue keeps entries in process. It backs the memory dispatch queue.
// Entries die with the process and relayctl cannot reach them, so a service
// using it should pass WithLogger to get each entry into its logs.
type MemoryQueue struct {
	mu      sync.Mutex
	entries []Entry
	logger  *logging.Logger
}

type MemoryOption func(*MemoryQueue)

// WithLogger logs every written entry, job included, at error level.
func WithLogger(logger *logging.Logger) MemoryOption {
	return func(q *MemoryQueue) { q.logger = logger }
}

func NewMemoryQueue(opts ...MemoryOption) *MemoryQueue {
	q := &MemoryQueue{}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *MemoryQueue) Write(ctx context.Context, entry Entry) error {
	q.mu.Lock()
	q.entries = append(q.entries, entry)
	q.mu.Unlock()

	if q.logger != nil {
		q.logger.ErrorContext(ctx, "Job dead-lettered",
			slog.String("dlq_id", entry.ID),
			slog.String("job_id", entry.JobID),
			logging.MessageID(entry.MessageID),
			logging.Channel(entry.Channel),
			logging.Attempt(entry.Attempts),
			slog.String("reason", entry.Reason),
			slog.String("failure", entry.Error),
			slog.String("job", string(entry.Job)),
		)
	}
	return nil
}

func (q *MemoryQueue) List(_ context.Context, limit int) ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if limit <= 0 {
		limit = DefaultListLimit
	}
	n := min(limit, len(q.entries))
	out := make([]Entry, n)
	copy(out, q.entries[:n])
	return out, nil
}

func (q *MemoryQueue) Purge(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = nil
	return nil
}

func (q *MemoryQueue) Stats(context.Context) map[string]any {
	q.mu.Lock()
	defer q.mu.Unlock()
	return map[string]any{
		"enabled":        true,
		"backend":        "memory",
		"total_messages": len(q.entries),
	}
}
