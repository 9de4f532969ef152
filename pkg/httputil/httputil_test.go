package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/eventbus/pkg/observability"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"message": "success"}

	err := WriteJSON(w, http.StatusOK, data)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "success")
}

func TestWriteErrors(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter)
		wantStatus int
		wantError  string
	}{
		{
			name:       "error",
			write:      func(w http.ResponseWriter) { WriteError(w, http.StatusConflict, errors.New("test error")) },
			wantStatus: http.StatusConflict,
			wantError:  "test error",
		},
		{
			name:       "bad request",
			write:      func(w http.ResponseWriter) { WriteBadRequest(w, "invalid input") },
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid input",
		},
		{
			name:       "service unavailable",
			write:      func(w http.ResponseWriter) { WriteServiceUnavailable(w, "closed") },
			wantStatus: http.StatusServiceUnavailable,
			wantError:  "closed",
		},
		{
			name:       "internal error",
			write:      func(w http.ResponseWriter) { WriteInternalError(w, errors.New("boom")) },
			wantStatus: http.StatusInternalServerError,
			wantError:  "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			w.Header().Set(RequestIDHeader, "req-1")
			tt.write(w)

			assert.Equal(t, tt.wantStatus, w.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, ErrorResponse{Error: tt.wantError, RequestID: "req-1"}, body)
		})
	}
}

func TestParseOptionalJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    map[string]interface{}
		wantErr bool
	}{
		{name: "object", body: `{"a": 1}`, want: map[string]interface{}{"a": 1.0}},
		{name: "empty body", body: ""},
		{name: "malformed", body: "{", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var got map[string]interface{}
			err := ParseOptionalJSON(r, &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePathString(t *testing.T) {
	r := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"topic": "orders"})
	got, err := ParsePathString(r, "topic")
	require.NoError(t, err)
	assert.Equal(t, "orders", got)

	_, err = ParsePathString(r, "missing")
	assert.Error(t, err)
}

func TestParseQueryEnum(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{url: "/", want: "sync"},
		{url: "/?mode=async", want: "async"},
		{url: "/?mode=later", wantErr: true},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, tt.url, nil)
		got, err := ParseQueryEnum(r, "mode", "sync", "sync", "async")
		if tt.wantErr {
			assert.Error(t, err, tt.url)
			continue
		}
		assert.NoError(t, err, tt.url)
		assert.Equal(t, tt.want, got, tt.url)
	}
}

func TestMiddlewareChain(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.DebugLevel, &buf)

	var seenID string
	handler := Chain(
		RequestIDMiddleware(logger),
		LoggingMiddleware,
		RecoveryMiddleware,
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestID(r.Context())
		if r.URL.Path == "/panic" {
			panic("kaboom")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("propagates request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.Header.Set(RequestIDHeader, "req-42")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "req-42", seenID)
		assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
		assert.Contains(t, buf.String(), `"request_id":"req-42"`)
		assert.Contains(t, buf.String(), `"status":204`)
	})

	t.Run("generates request id", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
		assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
		assert.Equal(t, w.Header().Get(RequestIDHeader), seenID)
	})

	t.Run("recovers panics", func(t *testing.T) {
		w := httptest.NewRecorder()
		assert.NotPanics(t, func() {
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
		})
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, buf.String(), "kaboom")
	})
}

func TestMaxBytesMiddleware(t *testing.T) {
	handler := MaxBytesMiddleware(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var v interface{}
		if err := ParseOptionalJSON(r, &v); err != nil {
			WriteBadRequest(w, err.Error())
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"too": "long"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
