package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kobliat/kobliat-stack/common/middleware"
)

func TestCustomerClient_FindOrCreate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/customers", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "trace-9", r.Header.Get(middleware.HeaderTraceID))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"cust-1","external_id":"15550001111"}`))
	}))
	defer srv.Close()

	client := NewCustomerClient(srv.URL+"/", time.Second)
	ctx := middleware.WithTraceID(context.Background(), "trace-9")
	cust, err := client.FindOrCreate(ctx, CustomerRequest{ExternalID: "15550001111", ExternalType: "whatsapp", Name: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "cust-1", cust.ID)
	assert.Equal(t, map[string]any{"external_id": "15550001111", "external_type": "whatsapp", "name": "Ada"}, got)
}

func TestConversationClient_FindOrCreateDirect(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/conversations", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data":{"id":"conv-1"}}`))
	}))
	defer srv.Close()

	conv, err := NewConversationClient(srv.URL, time.Second).FindOrCreateDirect(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", conv.ID)
	assert.Equal(t, "direct", got["type"])
	assert.Equal(t, []any{"cust-1"}, got["participants"])
}

func TestMessageClient_CreateInbound(t *testing.T) {
	var got InboundMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"msg-1"}`))
	}))
	defer srv.Close()

	msg, err := NewMessageClient(srv.URL, time.Second).CreateInbound(context.Background(), InboundMessageRequest{
		ConversationID:   "conv-1",
		Body:             "Hi",
		SenderCustomerID: "cust-1",
		Channel:          "whatsapp",
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", msg.ID)
	assert.Equal(t, "inbound", got.Direction)
	assert.Equal(t, "whatsapp", got.Channel)
}

func TestClient_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid channel"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := NewMessageClient(srv.URL, time.Second).CreateInbound(context.Background(), InboundMessageRequest{})
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnprocessableEntity))
	assert.Contains(t, err.Error(), "messaging service")
	assert.Contains(t, err.Error(), "invalid channel")
}

func TestClient_MissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewCustomerClient(srv.URL, time.Second).FindOrCreate(context.Background(), CustomerRequest{})
	assert.ErrorContains(t, err, "no id")
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := NewConversationClient(srv.URL, 20*time.Millisecond).FindOrCreateDirect(context.Background(), "c")
	assert.Error(t, err)
}
