package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kobliat/kobliat-stack/common/logging"
	"github.com/kobliat/kobliat-stack/common/middleware"
	"github.com/kobliat/kobliat-stack/messaging/internal/models"
)

// DefaultSendTimeout bounds one HTTP delivery.
const DefaultSendTimeout = 10 * time.Second

// OutboundTransport delivers a job to one channel. A nil error is a delivery.
type OutboundTransport interface {
	Name() string
	Send(ctx context.Context, job Job) error
}

// ChannelConfig locates the channel provider endpoints.
type ChannelConfig struct {
	WhatsAppURL string        `mapstructure:"whatsapp_url"`
	SMSURL      string        `mapstructure:"sms_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// SendRequest is the body POSTed to HTTP channel providers.
type SendRequest struct {
	To        any    `json:"to"`
	Message   string `json:"message"`
	MessageID string `json:"message_id"`
}

// DeliveryError is a non-2xx provider response.
type DeliveryError struct {
	Channel    string
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("failed to send message via %s: status %d", e.Channel, e.StatusCode)
	}
	return fmt.Sprintf("failed to send message via %s: status %d: %s", e.Channel, e.StatusCode, e.Body)
}

// HTTPTransport POSTs {to, message, message_id} to a provider. The recipient
// is read from the job metadata under recipientKey and sent as null when absent.
type HTTPTransport struct {
	name         string
	url          string
	recipientKey string
	client       *http.Client
}

func NewHTTPTransport(name, url, recipientKey string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &HTTPTransport{
		name:         name,
		url:          url,
		recipientKey: recipientKey,
		client:       &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTransport) Name() string { return t.name }

func (t *HTTPTransport) Send(ctx context.Context, job Job) error {
	body, err := json.Marshal(SendRequest{
		To:        job.Metadata[t.recipientKey],
		Message:   job.Body,
		MessageID: job.MessageID,
	})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", t.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", t.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if job.TraceID != "" {
		req.Header.Set(middleware.HeaderTraceID, job.TraceID)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message via %s: %w", t.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &DeliveryError{
			Channel:    t.name,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// AcceptTransport records the job and reports success without calling out.
// It stands in for channels that have no provider configured.
type AcceptTransport struct {
	name   string
	note   string
	logger *logging.Logger
}

func NewAcceptTransport(name, note string, logger *logging.Logger) *AcceptTransport {
	if logger == nil {
		logger = logging.Default()
	}
	return &AcceptTransport{name: name, note: note, logger: logger}
}

func (t *AcceptTransport) Name() string { return t.name }

func (t *AcceptTransport) Send(ctx context.Context, job Job) error {
	t.logger.WarnContext(ctx, t.note,
		logging.MessageID(job.MessageID),
		logging.Channel(string(job.Channel)),
	)
	return nil
}

// Registry maps channels to transports. Unknown channels use the fallback.
type Registry struct {
	mu         sync.RWMutex
	transports map[models.Channel]OutboundTransport
	fallback   OutboundTransport
}

func NewRegistry(fallback OutboundTransport) *Registry {
	return &Registry{
		transports: make(map[models.Channel]OutboundTransport),
		fallback:   fallback,
	}
}

// NewDefaultRegistry wires whatsapp and sms to their HTTP providers; email
// and unknown channels are accepted without a provider call.
func NewDefaultRegistry(cfg ChannelConfig, logger *logging.Logger) *Registry {
	r := NewRegistry(NewAcceptTransport("generic", "Using generic send method for channel", logger))
	r.Register(models.ChannelWhatsApp, NewHTTPTransport("whatsapp", cfg.WhatsAppURL, "recipient", cfg.Timeout))
	r.Register(models.ChannelSMS, NewHTTPTransport("sms", cfg.SMSURL, "phone", cfg.Timeout))
	r.Register(models.ChannelEmail, NewAcceptTransport("email", "No email provider configured; message accepted", logger))
	return r
}

func (r *Registry) Register(channel models.Channel, t OutboundTransport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transports[channel] = t
}

// For returns the transport for channel.
func (r *Registry) For(channel models.Channel) OutboundTransport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.transports[channel]; ok {
		return t
	}
	return r.fallback
}
