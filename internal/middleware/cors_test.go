package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORSMiddleware(t *testing.T) {
	config := DefaultCORSConfig()
	config.AllowedOrigins = []string{"https://box.example.com", "*.tickets.example.com", "*.example.net"}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := CORSMiddleware(config)(next)

	tests := []struct {
		name          string
		origin        string
		expectedAllow string
	}{
		{name: "exact origin", origin: "https://box.example.com", expectedAllow: "https://box.example.com"},
		{name: "exact origin ignores case", origin: "https://BOX.example.com", expectedAllow: "https://BOX.example.com"},
		{name: "wildcard subdomain", origin: "https://shop.tickets.example.com", expectedAllow: "https://shop.tickets.example.com"},
		{name: "wildcard nested subdomain", origin: "https://eu.shop.tickets.example.com", expectedAllow: "https://eu.shop.tickets.example.com"},
		{name: "wildcard with port", origin: "http://shop.example.net:8443", expectedAllow: "http://shop.example.net:8443"},
		{name: "unknown origin", origin: "https://evil.example.org"},
		{name: "suffix without dot", origin: "https://faketickets.example.com"},
		{name: "bare domain suffix", origin: "https://evilexample.net"},
		{name: "wildcard apex is not a subdomain", origin: "https://example.net"},
		{name: "suffix in path", origin: "https://evil.org/.example.net"},
		{name: "suffix in userinfo", origin: "https://shop.example.net@evil.org"},
		{name: "no origin"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/carts", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, tc.expectedAllow, rr.Header().Get("Access-Control-Allow-Origin"))
			assert.Contains(t, rr.Header().Values("Vary"), "Origin")
			if tc.expectedAllow != "" {
				assert.Equal(t, "X-Request-Id, Retry-After", rr.Header().Get("Access-Control-Expose-Headers"))
			} else {
				assert.Empty(t, rr.Header().Get("Access-Control-Expose-Headers"))
			}
		})
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	config := DefaultCORSConfig()
	config.AllowedOrigins = []string{"*.tickets.example.com"}
	config.AllowCredentials = true

	called := false
	handler := CORSMiddleware(config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/carts/abc/items", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPut)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	rr := preflight("https://shop.tickets.example.com")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://shop.tickets.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "GET, POST, PUT, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Headers"), BuyerHeader)
	assert.Equal(t, "86400", rr.Header().Get("Access-Control-Max-Age"))

	rr = preflight("https://eviltickets.example.com")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Methods"))

	assert.False(t, called, "preflights never reach the handler")
}

func TestCORSMiddleware_AnyOrigin(t *testing.T) {
	handler := CORSMiddleware(DefaultCORSConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodPost, "/carts", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "https://anywhere.example", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Credentials"))
}
