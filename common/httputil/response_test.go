package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name   string
		status int
		data   any
	}{
		{"map", http.StatusOK, map[string]string{"status": "received"}},
		{"struct", http.StatusCreated, struct{ ID string }{"123"}},
		{"slice", http.StatusOK, []string{"one", "two"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteJSON(w, tt.status, tt.data)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			var out any
			assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		})
	}
}

func TestWriteJSON_Unencodable(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusOK, make(chan int))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusNotFound, "message not found")

	assert.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "message not found", body["error"])
}

func TestDecodeJSON(t *testing.T) {
	t.Run("decodes body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"body":"hi"}`))
		var v struct{ Body string }
		require.NoError(t, DecodeJSON(req, 1024, &v))
		assert.Equal(t, "hi", v.Body)
	})

	t.Run("rejects invalid json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{nope`))
		var v map[string]any
		assert.Error(t, DecodeJSON(req, 1024, &v))
	})

	t.Run("rejects oversized body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"body":"0123456789"}`))
		var v map[string]any
		err := DecodeJSON(req, 8, &v)
		assert.True(t, errors.Is(err, ErrBodyTooLarge))
	})

	t.Run("no limit", func(t *testing.T) {
		body, err := ReadBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("abc")), 0)
		require.NoError(t, err)
		assert.Equal(t, "abc", string(body))
	})
}
