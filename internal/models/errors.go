package models

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Common errors used throughout the engine
var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrTicketTypeNotFound  = errors.New("ticket type not found")
	ErrFeeScheduleNotFound = errors.New("fee schedule not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrDuplicateEntry      = errors.New("duplicate entry")

	// User-visible, recoverable by changing the request
	ErrCapacityExceeded      = errors.New("not enough tickets left")
	ErrNoActiveTier          = errors.New("ticket type is not on sale")
	ErrInvalidDiscountCode   = errors.New("discount code does not match an active tier")
	ErrPurchaseLimitExceeded = errors.New("purchase limit per person exceeded")
	ErrInvalidQuantity       = errors.New("invalid quantity")

	// Caller bug: operation not valid for the order's current state
	ErrInvalidState = errors.New("operation not valid for current order state")

	// Fatal consistency failure, surfaced for reconciliation
	ErrInsufficientHold = errors.New("insufficient held quantity")

	// Store transport or transaction failure, safe to retry the whole call
	ErrTransientStore = errors.New("transient store error")
)

// InventoryError reports a reservation rejected by the oversell guard.
type InventoryError struct {
	TicketTypeID uuid.UUID
	Requested    int
	Available    int
}

func (e *InventoryError) Error() string {
	return fmt.Sprintf("not enough tickets left for ticket type %s (requested: %d, available: %d)",
		e.TicketTypeID, e.Requested, e.Available)
}

func (e *InventoryError) Unwrap() error {
	return ErrCapacityExceeded
}

// StateError reports an operation attempted against an order outside the
// state that operation requires.
type StateError struct {
	OrderID   uuid.UUID
	Status    OrderStatus
	Operation string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s order %s in status %s", e.Operation, e.OrderID, e.Status)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}

// ReconciliationError marks a payment whose ledger commit failed after funds
// were recorded. It must never be retried automatically.
type ReconciliationError struct {
	OrderID           uuid.UUID
	TicketTypeID      uuid.UUID
	ProviderReference string
	Err               error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("payment %q for order %s needs reconciliation: ledger commit failed for ticket type %s: %v",
		e.ProviderReference, e.OrderID, e.TicketTypeID, e.Err)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}

// IsUserError reports whether err is recoverable by correcting the request.
func IsUserError(err error) bool {
	return errors.Is(err, ErrCapacityExceeded) ||
		errors.Is(err, ErrNoActiveTier) ||
		errors.Is(err, ErrInvalidDiscountCode) ||
		errors.Is(err, ErrPurchaseLimitExceeded) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidInput)
}

// IsFatal reports whether err signals a ledger consistency failure.
func IsFatal(err error) bool {
	var recErr *ReconciliationError
	return errors.As(err, &recErr) || errors.Is(err, ErrInsufficientHold)
}

// IsRetryable reports whether the whole call may be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientStore)
}
