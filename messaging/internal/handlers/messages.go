package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kobliat/kobliat-stack/common/httputil"
	"github.com/kobliat/kobliat-stack/common/logging"
	"github.com/kobliat/kobliat-stack/messaging/internal/models"
	"github.com/kobliat/kobliat-stack/messaging/internal/repository"
)

// MessageService is the part of service.Service the handlers need.
type MessageService interface {
	Create(ctx context.Context, req models.CreateMessageRequest) (*models.Message, error)
	Get(ctx context.Context, id string) (*models.Message, error)
	ListByConversation(ctx context.Context, req models.ListMessagesRequest) ([]*models.Message, error)
	History(ctx context.Context, messageID string) ([]*models.HistoryEntry, error)
	Edit(ctx context.Context, id string, req models.EditMessageRequest) (*models.Message, error)
	Ready(ctx context.Context) error
}

type MessageHandler struct {
	service     MessageService
	maxBodySize int64
	logger      *logging.Logger
}

func NewMessageHandler(service MessageService, maxBodySize int64, logger *logging.Logger) *MessageHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &MessageHandler{service: service, maxBodySize: maxBodySize, logger: logger}
}

type dataResponse struct {
	Data any `json:"data"`
}

type listResponse struct {
	Data   []*models.Message `json:"data"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

type validationResponse struct {
	Error string `json:"error"`
	Field string `json:"field"`
}

// Create handles POST /api/messages.
func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateMessageRequest
	if !h.decode(w, r, &req) {
		return
	}
	msg, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "create message", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, dataResponse{Data: msg})
}

// Get handles GET /api/messages/{id}.
func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	msg, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "get message", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, dataResponse{Data: msg})
}

// Edit handles PUT /api/messages/{id}.
func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req models.EditMessageRequest
	if !h.decode(w, r, &req) {
		return
	}
	msg, err := h.service.Edit(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeServiceError(w, r, "edit message", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, dataResponse{Data: msg})
}

// History handles GET /api/messages/{id}/history.
func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "message history", err)
		return
	}
	if entries == nil {
		entries = []*models.HistoryEntry{}
	}
	httputil.WriteJSON(w, http.StatusOK, dataResponse{Data: entries})
}

// ListByConversation handles GET /api/conversations/{id}/messages.
func (h *MessageHandler) ListByConversation(w http.ResponseWriter, r *http.Request) {
	req := models.ListMessagesRequest{ConversationID: chi.URLParam(r, "id")}
	var ok bool
	if req.Limit, ok = queryInt(w, r, "limit"); !ok {
		return
	}
	if req.Offset, ok = queryInt(w, r, "offset"); !ok {
		return
	}

	msgs, err := h.service.ListByConversation(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "list messages", err)
		return
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	if req.Limit <= 0 {
		req.Limit = models.DefaultListLimit
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Data: msgs, Limit: req.Limit, Offset: req.Offset})
}

func (h *MessageHandler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *MessageHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ready(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "Readiness check failed", logging.Error(err))
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *MessageHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httputil.DecodeJSON(r, h.maxBodySize, v); err != nil {
		if errors.Is(err, httputil.ErrBodyTooLarge) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return false
		}
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (h *MessageHandler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, validationResponse{Error: verr.Message, Field: verr.Field})
	case errors.Is(err, repository.ErrNotFound):
		httputil.WriteError(w, http.StatusNotFound, "message not found")
	default:
		h.logger.ErrorContext(r.Context(), "Request failed", "operation", op, logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

func queryInt(w http.ResponseWriter, r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		httputil.WriteError(w, http.StatusBadRequest, "invalid "+key)
		return 0, false
	}
	return n, true
}
