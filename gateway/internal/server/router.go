package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kobliat/kobliat-stack/common/middleware"
	"github.com/kobliat/kobliat-stack/gateway/internal/handlers"
)

// NewRouter registers the gateway routes.
func NewRouter(h *handlers.WebhookHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.TraceID)

	r.Post("/webhooks/{provider}", h.Receive)

	r.Get("/healthz", h.Health)
	r.Get("/readyz", h.Ready)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
