package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"event-ticketing-engine/internal/middleware"
	"event-ticketing-engine/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps engine errors to HTTP statuses. User errors are 4xx,
// retryable store failures 503, consistency failures 500.
func writeError(w http.ResponseWriter, logger *zap.Logger, r *http.Request, err error) {
	status, code := classify(err)

	resp := ErrorResponse{Error: err.Error(), Code: code}

	var invErr *models.InventoryError
	if errors.As(err, &invErr) {
		resp.Details = map[string]any{
			"ticket_type_id": invErr.TicketTypeID,
			"requested":      invErr.Requested,
			"available":      invErr.Available,
		}
	}

	switch status {
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
		logger.Warn("transient failure", zap.String("path", r.URL.Path), zap.Error(err))
	case http.StatusInternalServerError:
		// Consistency failures are already logged with full context by the engine
		resp.Error = "internal error"
		logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}

	writeJSON(w, status, resp)
}

func classify(err error) (int, string) {
	switch {
	case models.IsFatal(err):
		return http.StatusInternalServerError, "reconciliation_required"
	case models.IsRetryable(err):
		return http.StatusServiceUnavailable, "retry"
	case errors.Is(err, models.ErrOrderNotFound):
		return http.StatusNotFound, "order_not_found"
	case errors.Is(err, models.ErrTicketTypeNotFound):
		return http.StatusNotFound, "ticket_type_not_found"
	case errors.Is(err, models.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, models.ErrCapacityExceeded):
		return http.StatusConflict, "capacity_exceeded"
	case errors.Is(err, models.ErrPurchaseLimitExceeded):
		return http.StatusConflict, "purchase_limit_exceeded"
	case errors.Is(err, models.ErrNoActiveTier):
		return http.StatusConflict, "not_on_sale"
	case errors.Is(err, models.ErrInvalidDiscountCode):
		return http.StatusUnprocessableEntity, "invalid_discount_code"
	case errors.Is(err, models.ErrInvalidQuantity), errors.Is(err, models.ErrInvalidInput):
		return http.StatusUnprocessableEntity, "invalid_input"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return errors.Join(models.ErrInvalidInput, err)
	}
	return nil
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.Join(models.ErrInvalidInput, err)
	}
	return id, nil
}

// buyerID reads the caller's user ID from the buyer header
func buyerID(r *http.Request) (uuid.UUID, error) {
	raw := r.Header.Get(middleware.BuyerHeader)
	if raw == "" {
		return uuid.Nil, errors.Join(models.ErrInvalidInput, errors.New("missing "+middleware.BuyerHeader+" header"))
	}
	return parseID(raw)
}
