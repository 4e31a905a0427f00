package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"event-ticketing-engine/internal/cache"
	"event-ticketing-engine/internal/clock"
	"event-ticketing-engine/internal/events"
	"event-ticketing-engine/internal/handlers"
	"event-ticketing-engine/internal/middleware"
	"event-ticketing-engine/internal/repositories/memory"
	"event-ticketing-engine/internal/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestRouter(limiter *middleware.RateLimiter) http.Handler {
	logger := zap.NewNop()
	store := memory.NewStore()
	clk := clock.Fake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	ledger := services.NewInventoryLedger(store, clk, logger)
	pricing := services.NewPricingResolver(store, nil, logger)
	carts := services.NewCartService(store, pricing, clk, events.NopPublisher{}, logger)
	payments := services.NewPaymentService(store, clk, events.NopPublisher{}, logger)
	availability := cache.NewAvailabilityCache(nil, time.Second, logger)

	return NewRouter(Handlers{
		Carts:       handlers.NewCartHandler(carts, availability, logger),
		Payments:    handlers.NewPaymentHandler(payments, logger),
		TicketTypes: handlers.NewTicketTypeHandler(ledger, availability, logger),
		Health:      handlers.Health(nil, "test"),
	}, limiter, logger)
}

func TestRouter_Routes(t *testing.T) {
	router := newTestRouter(nil)
	buyer := uuid.NewString()

	tests := []struct {
		name     string
		method   string
		path     string
		wantCode int
	}{
		{name: "health", method: "GET", path: "/health", wantCode: http.StatusOK},
		{name: "create cart", method: "POST", path: "/carts", wantCode: http.StatusOK},
		{name: "unknown route", method: "GET", path: "/events", wantCode: http.StatusNotFound},
		{name: "wrong method", method: "DELETE", path: "/health", wantCode: http.StatusMethodNotAllowed},
		{name: "unknown cart", method: "GET", path: "/carts/" + uuid.NewString(), wantCode: http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			req.Header.Set(middleware.BuyerHeader, buyer)
			rr := httptest.NewRecorder()

			router.ServeHTTP(rr, req)

			assert.Equal(t, tc.wantCode, rr.Code, rr.Body.String())
			assert.NotEmpty(t, rr.Header().Get("Content-Type"))
		})
	}
}

func TestRouter_RateLimitsCartMutations(t *testing.T) {
	limiter := middleware.NewRateLimiter(2, time.Minute, clock.Fake(time.Now()))
	router := newTestRouter(limiter)
	buyer := uuid.NewString()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/carts", nil)
		req.Header.Set(middleware.BuyerHeader, buyer)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
