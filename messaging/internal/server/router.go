package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kobliat/kobliat-stack/common/middleware"
	"github.com/kobliat/kobliat-stack/messaging/internal/handlers"
)

// NewRouter registers the messaging API routes.
func NewRouter(h *handlers.MessageHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.TraceID)

	r.Route("/api", func(r chi.Router) {
		r.Post("/messages", h.Create)
		r.Get("/messages/{id}", h.Get)
		r.Put("/messages/{id}", h.Edit)
		r.Get("/messages/{id}/history", h.History)
		r.Get("/conversations/{id}/messages", h.ListByConversation)
	})

	r.Get("/healthz", h.Health)
	r.Get("/readyz", h.Ready)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
