package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
	}{
		{name: "generates new request ID when not present"},
		{name: "propagates existing request ID", incoming: "existing-req-123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured string
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.incoming != "" {
				req.Header.Set(HeaderRequestID, tt.incoming)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			require.NotEmpty(t, captured)
			assert.Equal(t, captured, w.Header().Get(HeaderRequestID))
			if tt.incoming != "" {
				assert.Equal(t, tt.incoming, captured)
			} else {
				_, err := uuid.Parse(captured)
				assert.NoError(t, err)
			}
		})
	}
}

func TestRequestID_UniqueIDs(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		id := w.Header().Get(HeaderRequestID)
		require.False(t, seen[id], "duplicate request ID %s", id)
		seen[id] = true
	}
}

func TestTraceID(t *testing.T) {
	t.Run("propagates caller trace id", func(t *testing.T) {
		var captured string
		handler := RequestID(TraceID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			captured = GetTraceID(r.Context())
		})))

		req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", nil)
		req.Header.Set(HeaderTraceID, "trace-abc")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, "trace-abc", captured)
		assert.Equal(t, "trace-abc", w.Header().Get(HeaderTraceID))
	})

	t.Run("falls back to request id", func(t *testing.T) {
		var traceID, requestID string
		handler := RequestID(TraceID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID = GetTraceID(r.Context())
			requestID = GetRequestID(r.Context())
		})))

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		require.NotEmpty(t, traceID)
		assert.Equal(t, requestID, traceID)
	})

	t.Run("generates one without request id middleware", func(t *testing.T) {
		var traceID string
		handler := TraceID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID = GetTraceID(r.Context())
		}))

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		_, err := uuid.Parse(traceID)
		assert.NoError(t, err)
	})
}

func TestGetTraceID_Empty(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
	assert.Equal(t, "t-1", GetTraceID(WithTraceID(context.Background(), "t-1")))
}
