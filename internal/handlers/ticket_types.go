package handlers

import (
	"context"
	"net/http"

	"event-ticketing-engine/internal/cache"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AvailabilityReader reports remaining inventory from the ledger
type AvailabilityReader interface {
	Remaining(ctx context.Context, ticketTypeID uuid.UUID) (int, error)
}

// TicketTypeHandler serves ticket type reads
type TicketTypeHandler struct {
	ledger AvailabilityReader
	cache  *cache.AvailabilityCache
	logger *zap.Logger
}

// NewTicketTypeHandler creates a new ticket type handler
func NewTicketTypeHandler(ledger AvailabilityReader, availability *cache.AvailabilityCache, logger *zap.Logger) *TicketTypeHandler {
	return &TicketTypeHandler{
		ledger: ledger,
		cache:  availability,
		logger: logger,
	}
}

// AvailabilityResponse is the body of GET /ticket-types/{id}/availability
type AvailabilityResponse struct {
	TicketTypeID uuid.UUID `json:"ticket_type_id"`
	Remaining    int       `json:"remaining"`
	Cached       bool      `json:"cached"`
}

// Availability returns the remaining count for display. The value may be
// a few seconds stale; reservations always check the ledger.
func (h *TicketTypeHandler) Availability(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	if remaining, ok := h.cache.Get(r.Context(), id); ok {
		writeJSON(w, http.StatusOK, AvailabilityResponse{TicketTypeID: id, Remaining: remaining, Cached: true})
		return
	}

	remaining, err := h.ledger.Remaining(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	h.cache.Set(r.Context(), id, remaining)

	writeJSON(w, http.StatusOK, AvailabilityResponse{TicketTypeID: id, Remaining: remaining})
}
