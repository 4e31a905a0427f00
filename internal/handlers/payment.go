package handlers

import (
	"context"
	"net/http"

	"event-ticketing-engine/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentApplier records provider results against orders
type PaymentApplier interface {
	ApplyPayment(ctx context.Context, orderID uuid.UUID, result models.PaymentResult) (*models.PaymentApplication, error)
}

// PaymentHandler receives payment results from the payment provider
type PaymentHandler struct {
	payments PaymentApplier
	logger   *zap.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments PaymentApplier, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		logger:   logger,
	}
}

// Apply records a payment result. Replays of a known provider reference
// return the original application with status 200.
func (h *PaymentHandler) Apply(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	var result models.PaymentResult
	if err := decodeJSON(w, r, &result); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	app, err := h.payments.ApplyPayment(r.Context(), orderID, result)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	status := http.StatusCreated
	if app.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, app)
}
