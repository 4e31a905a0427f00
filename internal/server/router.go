// Package server assembles the HTTP API.
package server

import (
	"net/http"
	"time"

	"event-ticketing-engine/internal/handlers"
	"event-ticketing-engine/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Handlers groups the route handlers of the API
type Handlers struct {
	Carts       *handlers.CartHandler
	Payments    *handlers.PaymentHandler
	TicketTypes *handlers.TicketTypeHandler
	Health      http.HandlerFunc
}

// NewRouter wires routes and middleware. limiter may be nil.
func NewRouter(h Handlers, limiter *middleware.RateLimiter, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.CORSMiddleware(middleware.DefaultCORSConfig()))
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.NotFound(middleware.NotFoundHandler().ServeHTTP)
	r.MethodNotAllowed(middleware.MethodNotAllowedHandler().ServeHTTP)

	r.Get("/health", h.Health)

	r.Route("/carts", func(r chi.Router) {
		if limiter != nil {
			r.Use(middleware.RateLimit(limiter))
		}

		r.Post("/", h.Carts.FindOrCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Carts.Get)
			r.Put("/items", h.Carts.UpdateItems)
			r.Get("/total", h.Carts.Total)
			r.Put("/behalf-of", h.Carts.SetBehalfOf)
			r.Post("/cancel", h.Carts.Cancel)
		})
	})

	r.Post("/orders/{id}/payments", h.Payments.Apply)
	r.Get("/ticket-types/{id}/availability", h.TicketTypes.Availability)

	return r
}
