package dispatch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kobliat/kobliat-stack/common/idgen"
	"github.com/kobliat/kobliat-stack/messaging/internal/models"
)

// State of a delivery job:
//
//	queued -> attempting -> delivered
//	                     -> retrying -> attempting
//	                     -> permanently_failed
type State string

const (
	StateQueued            State = "queued"
	StateAttempting        State = "attempting"
	StateDelivered         State = "delivered"
	StateRetrying          State = "retrying"
	StatePermanentlyFailed State = "permanently_failed"
)

// Terminal reports whether no further attempt will be made.
func (s State) Terminal() bool {
	return s == StateDelivered || s == StatePermanentlyFailed
}

// MaxAttempts bounds deliveries per job, the first included.
const MaxAttempts = 3

var backoffSchedule = [...]time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second}

// Backoff returns the delay after failed attempt n (1-based) before attempt
// n+1. The last slot would precede a fourth attempt, which is never made.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(backoffSchedule) {
		attempt = len(backoffSchedule)
	}
	return backoffSchedule[attempt-1]
}

// BackoffSchedule returns a copy of the fixed schedule.
func BackoffSchedule() []time.Duration {
	out := make([]time.Duration, len(backoffSchedule))
	copy(out, backoffSchedule[:])
	return out
}

// Job is a snapshot of an outbound message taken when it was queued.
type Job struct {
	ID             string         `json:"id"`
	MessageID      string         `json:"message_id"`
	ConversationID string         `json:"conversation_id"`
	Channel        models.Channel `json:"channel"`
	Body           string         `json:"body"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	TraceID        string         `json:"trace_id,omitempty"`
	EnqueuedAt     time.Time      `json:"enqueued_at"`
}

// NewJob snapshots msg for delivery.
func NewJob(msg *models.Message, traceID string, now time.Time) (Job, error) {
	id, err := idgen.New(idgen.PrefixDispatchJob)
	if err != nil {
		return Job{}, err
	}
	metadata := make(map[string]any, len(msg.Metadata))
	for k, v := range msg.Metadata {
		metadata[k] = v
	}
	return Job{
		ID:             id,
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Channel:        msg.Channel,
		Body:           msg.Body,
		Metadata:       metadata,
		TraceID:        traceID,
		EnqueuedAt:     now.UTC(),
	}, nil
}

// MetadataString returns metadata[key] when it is a string.
func (j Job) MetadataString(key string) (string, bool) {
	v, ok := j.Metadata[key].(string)
	return v, ok
}

func decodeJob(data []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	if job.MessageID == "" {
		return Job{}, fmt.Errorf("decode job: missing message_id")
	}
	return job, nil
}
