package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kobliat/kobliat-stack/common/eventbus"
	"github.com/kobliat/kobliat-stack/common/logging"
	"github.com/kobliat/kobliat-stack/messaging/internal/dispatch"
	"github.com/kobliat/kobliat-stack/messaging/internal/models"
	"github.com/kobliat/kobliat-stack/messaging/internal/repository"
	"github.com/kobliat/kobliat-stack/messaging/internal/service"
)

type discardQueue struct{}

func (discardQueue) Enqueue(context.Context, dispatch.Job) error { return nil }

func quietLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, slog.LevelInfo, "json")
}

func newTestHandler() *MessageHandler {
	logger := quietLogger()
	bus := eventbus.NewBus(eventbus.NewLogTransport(logger), "messaging-service", eventbus.WithLogger(logger))
	svc := service.NewService(repository.NewInMemoryRepository(), bus, discardQueue{}, service.WithLogger(logger))
	return NewMessageHandler(svc, 4096, logger)
}

func routes(h *MessageHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/messages", h.Create)
	r.Get("/api/messages/{id}", h.Get)
	r.Put("/api/messages/{id}", h.Edit)
	r.Get("/api/messages/{id}/history", h.History)
	r.Get("/api/conversations/{id}/messages", h.ListByConversation)
	r.Get("/readyz", h.Ready)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&decoded))
	return rr, decoded
}

func createBody(conversationID, direction, body string) string {
	b, _ := json.Marshal(map[string]any{
		"conversation_id": conversationID,
		"direction":       direction,
		"body":            body,
	})
	return string(b)
}

func TestCreateAndGet(t *testing.T) {
	h := routes(newTestHandler())
	conv := uuid.NewString()

	rr, resp := do(t, h, http.MethodPost, "/api/messages", createBody(conv, "inbound", "Hi"))
	require.Equal(t, http.StatusCreated, rr.Code)
	data := resp["data"].(map[string]any)
	id := data["id"].(string)
	assert.Equal(t, "whatsapp", data["channel"])
	assert.Equal(t, true, data["is_processed"])
	assert.NotNil(t, data["sent_at"])

	rr, resp = do(t, h, http.MethodGet, "/api/messages/"+id, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Hi", resp["data"].(map[string]any)["body"])
}

func TestCreate_Rejections(t *testing.T) {
	h := routes(newTestHandler())

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantField  string
	}{
		{"malformed json", `{"conversation_id":`, http.StatusBadRequest, ""},
		{"bad direction", createBody(uuid.NewString(), "sideways", "x"), http.StatusUnprocessableEntity, "direction"},
		{"missing body", createBody(uuid.NewString(), "inbound", ""), http.StatusUnprocessableEntity, "body"},
		{"conversation not a uuid", createBody("conv-1", "inbound", "x"), http.StatusUnprocessableEntity, "conversation_id"},
		{"too large", createBody(uuid.NewString(), "inbound", strings.Repeat("x", 5000)), http.StatusRequestEntityTooLarge, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, resp := do(t, h, http.MethodPost, "/api/messages", tt.body)
			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantField != "" {
				assert.Equal(t, tt.wantField, resp["field"])
			}
		})
	}
}

func TestEditAndHistory(t *testing.T) {
	h := routes(newTestHandler())

	_, resp := do(t, h, http.MethodPost, "/api/messages", createBody(uuid.NewString(), "outbound", "B0"))
	id := resp["data"].(map[string]any)["id"].(string)

	rr, resp := do(t, h, http.MethodGet, "/api/messages/"+id+"/history", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, resp["data"])

	for _, body := range []string{"B1", "B2"} {
		rr, resp = do(t, h, http.MethodPut, "/api/messages/"+id, `{"body":"`+body+`","editor_id":"agent-1"}`)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, body, resp["data"].(map[string]any)["body"])
	}

	rr, resp = do(t, h, http.MethodGet, "/api/messages/"+id+"/history", "")
	require.Equal(t, http.StatusOK, rr.Code)
	entries := resp["data"].([]any)
	require.Len(t, entries, 2)
	assert.Equal(t, "B0", entries[0].(map[string]any)["previous_body"])
	assert.Equal(t, "B1", entries[1].(map[string]any)["previous_body"])

	rr, resp = do(t, h, http.MethodPut, "/api/messages/"+id, `{"body":""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "body", resp["field"])
}

func TestNotFound(t *testing.T) {
	h := routes(newTestHandler())
	missing := uuid.NewString()

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/messages/" + missing, ""},
		{http.MethodPut, "/api/messages/" + missing, `{"body":"x"}`},
		{http.MethodGet, "/api/messages/" + missing + "/history", ""},
	} {
		rr, resp := do(t, h, tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusNotFound, rr.Code, tc.method+" "+tc.path)
		assert.Equal(t, "message not found", resp["error"])
	}
}

func TestListByConversation(t *testing.T) {
	h := routes(newTestHandler())
	conv := uuid.NewString()
	for _, body := range []string{"one", "two", "three"} {
		rr, _ := do(t, h, http.MethodPost, "/api/messages", createBody(conv, "inbound", body))
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	rr, resp := do(t, h, http.MethodGet, "/api/conversations/"+conv+"/messages?limit=2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, resp["data"], 2)
	assert.Equal(t, float64(2), resp["limit"])

	rr, resp = do(t, h, http.MethodGet, "/api/conversations/"+conv+"/messages?offset=2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, resp["data"], 1)
	assert.Equal(t, float64(models.DefaultListLimit), resp["limit"])

	rr, _ = do(t, h, http.MethodGet, "/api/conversations/"+conv+"/messages?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, resp = do(t, h, http.MethodGet, "/api/conversations/"+uuid.NewString()+"/messages", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []any{}, resp["data"])
}

type failingService struct {
	MessageService
}

func (failingService) Get(context.Context, string) (*models.Message, error) {
	return nil, errors.New("connection reset")
}

func (failingService) Ready(context.Context) error { return errors.New("db down") }

func TestServiceFailures(t *testing.T) {
	h := routes(NewMessageHandler(failingService{}, 4096, quietLogger()))

	rr, resp := do(t, h, http.MethodGet, "/api/messages/abc", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "internal error", resp["error"])

	rr, resp = do(t, h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "db down", resp["error"])
}
