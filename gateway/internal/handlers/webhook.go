package handlers

import (
	"context"
	"errors"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/kobliat/kobliat-stack/common/httputil"
	"github.com/kobliat/kobliat-stack/common/logging"
	"github.com/kobliat/kobliat-stack/gateway/internal/ingest"
	"github.com/kobliat/kobliat-stack/gateway/internal/ratelimit"
	"github.com/kobliat/kobliat-stack/gateway/internal/signature"
)

var providerPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// Ingestor is the part of ingest.Service the handler needs.
type Ingestor interface {
	Ingest(ctx context.Context, provider string, raw []byte, headers http.Header) (ingest.Result, error)
	Stats() ingest.Stats
	Ready(ctx context.Context) error
}

type WebhookHandler struct {
	ingestor    Ingestor
	limiter     ratelimit.RateLimiter
	verifier    *signature.Verifier
	maxBodySize int64
	logger      *logging.Logger
}

func NewWebhookHandler(ingestor Ingestor, limiter ratelimit.RateLimiter, maxBodySize int64, logger *logging.Logger) *WebhookHandler {
	if limiter == nil {
		limiter = &ratelimit.NoOpRateLimiter{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		ingestor:    ingestor,
		limiter:     limiter,
		maxBodySize: maxBodySize,
		logger:      logger,
	}
}

// WithSignatureVerifier rejects unsigned or mis-signed webhooks for every
// provider v holds a secret for.
func (h *WebhookHandler) WithSignatureVerifier(v *signature.Verifier) *WebhookHandler {
	h.verifier = v
	return h
}

type statusResponse struct {
	Status string `json:"status"`
}

// Receive handles POST /webhooks/{provider}.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := chi.URLParam(r, "provider")
	if !providerPattern.MatchString(provider) {
		httputil.WriteError(w, http.StatusBadRequest, "invalid provider")
		return
	}

	allowed, err := h.limiter.Allow(ctx, "webhook:"+provider)
	if err != nil {
		// Fail open: losing Redis must not drop provider traffic.
		h.logger.WarnContext(ctx, "Rate limiter unavailable", logging.Provider(provider), logging.Error(err))
	} else if !allowed {
		httputil.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	body, err := httputil.ReadBody(r, h.maxBodySize)
	if err != nil {
		if errors.Is(err, httputil.ErrBodyTooLarge) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if err := h.verifier.Verify(provider, body, r.Header.Get(signature.Header)); err != nil {
		h.logger.WarnContext(ctx, "Webhook signature rejected", logging.Provider(provider), logging.Error(err))
		httputil.WriteError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	result, err := h.ingestor.Ingest(ctx, provider, body, r.Header)
	if err != nil {
		if errors.Is(err, ingest.ErrInvalidPayload) {
			httputil.WriteError(w, http.StatusBadRequest, "payload must be a JSON object")
			return
		}
		h.logger.ErrorContext(ctx, "Webhook ingestion failed", logging.Provider(provider), logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to process webhook")
		return
	}

	switch result.Outcome {
	case ingest.OutcomeReceived:
		httputil.WriteJSON(w, http.StatusCreated, statusResponse{Status: string(result.Outcome)})
	case ingest.OutcomeDropped:
		httputil.WriteJSON(w, http.StatusAccepted, statusResponse{Status: string(result.Outcome)})
	default:
		httputil.WriteJSON(w, http.StatusOK, statusResponse{Status: string(result.Outcome)})
	}
}

func (h *WebhookHandler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, statusResponse{Status: "healthy"})
}

func (h *WebhookHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.ingestor.Ready(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "Readiness check failed", logging.Error(err))
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"stats":  h.ingestor.Stats(),
	})
}
