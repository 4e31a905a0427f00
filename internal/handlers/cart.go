package handlers

import (
	"context"
	"net/http"

	"event-ticketing-engine/internal/cache"
	"event-ticketing-engine/internal/models"
	"event-ticketing-engine/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CartEngine is the cart side of the engine the handler drives
type CartEngine interface {
	FindOrCreateCart(ctx context.Context, userID uuid.UUID) (*models.Order, error)
	GetCart(ctx context.Context, cartID uuid.UUID) (*services.CartView, error)
	UpdateQuantities(ctx context.Context, cartID uuid.UUID, lines []models.UpdateOrderItem, opts services.UpdateOptions) (*services.CartView, error)
	CalculateTotal(ctx context.Context, cartID uuid.UUID) (int64, error)
	SetBehalfOfUser(ctx context.Context, cartID, recipientID uuid.UUID) (*models.Order, error)
	Cancel(ctx context.Context, cartID uuid.UUID) (*models.Order, error)
}

// CartHandler handles cart operations
type CartHandler struct {
	carts        CartEngine
	availability *cache.AvailabilityCache
	logger       *zap.Logger
}

// NewCartHandler creates a new cart handler
func NewCartHandler(carts CartEngine, availability *cache.AvailabilityCache, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		carts:        carts,
		availability: availability,
		logger:       logger,
	}
}

// UpdateItemsRequest is the body of PUT /carts/{id}/items
type UpdateItemsRequest struct {
	Items     []models.UpdateOrderItem `json:"items"`
	BoxOffice bool                     `json:"box_office"`
}

// BehalfOfRequest is the body of PUT /carts/{id}/behalf-of
type BehalfOfRequest struct {
	RecipientID uuid.UUID `json:"recipient_id"`
}

// TotalResponse is the body of GET /carts/{id}/total
type TotalResponse struct {
	CartID     uuid.UUID `json:"cart_id"`
	TotalCents int64     `json:"total_cents"`
}

// FindOrCreate returns the buyer's open cart, creating it if needed
func (h *CartHandler) FindOrCreate(w http.ResponseWriter, r *http.Request) {
	userID, err := buyerID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	cart, err := h.carts.FindOrCreateCart(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, cart)
}

// Get returns the cart with its items and totals
func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, ok := h.ownedCart(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// UpdateItems sets the quantities of the requested lines
func (h *CartHandler) UpdateItems(w http.ResponseWriter, r *http.Request) {
	view, ok := h.ownedCart(w, r)
	if !ok {
		return
	}

	var req UpdateItemsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	updated, err := h.carts.UpdateQuantities(r.Context(), view.Order.ID, req.Items, services.UpdateOptions{BoxOffice: req.BoxOffice})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	touched := make([]uuid.UUID, 0, len(req.Items))
	for _, item := range req.Items {
		touched = append(touched, item.TicketTypeID)
	}
	h.availability.Invalidate(r.Context(), touched...)

	writeJSON(w, http.StatusOK, updated)
}

// Total returns the cart total in cents
func (h *CartHandler) Total(w http.ResponseWriter, r *http.Request) {
	view, ok := h.ownedCart(w, r)
	if !ok {
		return
	}

	total, err := h.carts.CalculateTotal(r.Context(), view.Order.ID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, TotalResponse{CartID: view.Order.ID, TotalCents: total})
}

// SetBehalfOf records who the tickets are for
func (h *CartHandler) SetBehalfOf(w http.ResponseWriter, r *http.Request) {
	view, ok := h.ownedCart(w, r)
	if !ok {
		return
	}

	var req BehalfOfRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	order, err := h.carts.SetBehalfOfUser(r.Context(), view.Order.ID, req.RecipientID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// Cancel releases every hold and cancels the cart
func (h *CartHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	view, ok := h.ownedCart(w, r)
	if !ok {
		return
	}

	order, err := h.carts.Cancel(r.Context(), view.Order.ID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	released := make([]uuid.UUID, 0, len(view.Items))
	for _, item := range view.Items {
		released = append(released, item.TicketTypeID)
	}
	h.availability.Invalidate(r.Context(), released...)

	writeJSON(w, http.StatusOK, order)
}

// ownedCart loads the cart named in the path and checks it belongs to the
// caller. Carts of other buyers are reported as not found.
func (h *CartHandler) ownedCart(w http.ResponseWriter, r *http.Request) (*services.CartView, bool) {
	userID, err := buyerID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return nil, false
	}

	cartID, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return nil, false
	}

	view, err := h.carts.GetCart(r.Context(), cartID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return nil, false
	}

	if view.Order.UserID != userID {
		writeError(w, h.logger, r, models.ErrOrderNotFound)
		return nil, false
	}

	return view, true
}
