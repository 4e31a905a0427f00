package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("created"))
	})

	req := httptest.NewRequest("POST", "/carts", nil)
	req.RemoteAddr = "192.168.1.1:54321"
	req.Header.Set(BuyerHeader, "9b2f3c1e-0000-4000-8000-000000000001")
	rr := httptest.NewRecorder()

	chimiddleware.RequestID(RequestLogger(zap.New(core))(handler)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "created", rr.Body.String())

	entries := logs.FilterMessage("request served").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "POST", fields["method"])
	assert.Equal(t, "/carts", fields["path"])
	assert.Equal(t, int64(http.StatusCreated), fields["status"])
	assert.Equal(t, int64(len("created")), fields["bytes"])
	assert.Equal(t, "192.168.1.1:54321", fields["remote_ip"])
	assert.Equal(t, "9b2f3c1e-0000-4000-8000-000000000001", fields["buyer_id"])
	assert.NotEmpty(t, fields["request_id"])
}

func TestRequestLogger_LevelByStatus(t *testing.T) {
	tests := []struct {
		status  int
		message string
	}{
		{status: http.StatusOK, message: "request served"},
		{status: http.StatusConflict, message: "request rejected"},
		{status: http.StatusServiceUnavailable, message: "request failed"},
	}

	for _, tc := range tests {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			core, logs := observer.New(zap.InfoLevel)
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			})

			RequestLogger(zap.New(core))(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

			assert.Equal(t, 1, logs.FilterMessage(tc.message).Len())
		})
	}
}

func TestResponseWriter_WriteHeader(t *testing.T) {
	rr := httptest.NewRecorder()
	wrapped := &responseWriter{ResponseWriter: rr, statusCode: http.StatusOK}

	wrapped.WriteHeader(http.StatusNotFound)
	wrapped.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusNotFound, wrapped.statusCode, "first status wins")
}

func TestResponseWriter_Write(t *testing.T) {
	rr := httptest.NewRecorder()
	wrapped := &responseWriter{ResponseWriter: rr, statusCode: http.StatusOK}

	n, err := wrapped.Write([]byte("hello"))
	require.NoError(t, err)
	_, _ = wrapped.Write([]byte(" world"))

	assert.Equal(t, 5, n)
	assert.Equal(t, 11, wrapped.size)
	assert.Equal(t, http.StatusOK, wrapped.statusCode)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		expected   string
	}{
		{
			name:       "X-Forwarded-For header",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1"},
			remoteAddr: "192.168.1.1:12345",
			expected:   "203.0.113.1",
		},
		{
			name:       "X-Real-IP header",
			headers:    map[string]string{"X-Real-IP": "203.0.113.2"},
			remoteAddr: "192.168.1.1:12345",
			expected:   "203.0.113.2",
		},
		{
			name: "X-Forwarded-For takes precedence",
			headers: map[string]string{
				"X-Forwarded-For": "203.0.113.1",
				"X-Real-IP":       "203.0.113.2",
			},
			remoteAddr: "192.168.1.1:12345",
			expected:   "203.0.113.1",
		},
		{
			name:       "fallback to RemoteAddr",
			remoteAddr: "192.168.1.1:12345",
			expected:   "192.168.1.1:12345",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = tt.remoteAddr
			for key, value := range tt.headers {
				req.Header.Set(key, value)
			}

			assert.Equal(t, tt.expected, getClientIP(req))
		})
	}
}
