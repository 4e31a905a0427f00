package services

import (
	"context"
	"time"

	"event-ticketing-engine/internal/models"

	"github.com/google/uuid"
)

// Reader is the read side shared by Store and StoreTx. Missing rows are
// reported with the models.ErrXNotFound sentinels.
type Reader interface {
	GetTicketType(ctx context.Context, id uuid.UUID) (*models.TicketType, error)
	GetFeeSchedule(ctx context.Context, id uuid.UUID) (*models.FeeSchedule, error)
	GetLedger(ctx context.Context, ticketTypeID uuid.UUID) (*models.LedgerEntry, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindOpenCart(ctx context.Context, userID uuid.UUID) (*models.Order, error)
	ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]*models.OrderItem, error)
	ListPayments(ctx context.Context, orderID uuid.UUID) ([]*models.Payment, error)
}

// StoreTx is a unit of work. Row locks taken through it are held until the
// transaction ends.
type StoreTx interface {
	Reader

	// LockOrder reads the order row under an exclusive lock.
	LockOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// LockLedgers locks ledger rows in ascending ticket-type ID order,
	// whatever the order of ids.
	LockLedgers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.LedgerEntry, error)
	UpdateLedger(ctx context.Context, entry *models.LedgerEntry) error
	CreateLedger(ctx context.Context, entry *models.LedgerEntry) error

	// CreateCart inserts cart unless its owner already has an open one, in
	// which case the existing cart is returned.
	CreateCart(ctx context.Context, cart *models.Order) (*models.Order, error)
	UpdateOrder(ctx context.Context, order *models.Order) error
	SaveOrderItem(ctx context.Context, item *models.OrderItem) error
	DeleteOrderItem(ctx context.Context, orderID, ticketTypeID uuid.UUID) error

	// InsertPayment returns false when the provider reference was already
	// recorded for the order.
	InsertPayment(ctx context.Context, payment *models.Payment) (bool, error)

	SaveTicketType(ctx context.Context, tt *models.TicketType) error
	SaveFeeSchedule(ctx context.Context, fs *models.FeeSchedule) error
}

// Store is the transactional store the engine runs on.
type Store interface {
	Reader

	// InTx runs fn in one transaction, committing when fn returns nil.
	// Lock timeouts, deadlocks, serialization and connection failures are
	// reported wrapping models.ErrTransientStore.
	InTx(ctx context.Context, fn func(tx StoreTx) error) error

	// ListStaleCarts returns open carts last mutated before cutoff, ordered
	// by (updated_at, id). A non-nil after skips every cart at or before it.
	ListStaleCarts(ctx context.Context, cutoff time.Time, after *StaleCartCursor, limit int) ([]*models.Order, error)
}

// StaleCartCursor is a position in the ListStaleCarts ordering
type StaleCartCursor struct {
	UpdatedAt time.Time
	ID        uuid.UUID
}

// CursorAfter returns the position of order
func CursorAfter(order *models.Order) *StaleCartCursor {
	return &StaleCartCursor{UpdatedAt: order.UpdatedAt, ID: order.ID}
}

// EventPublisher delivers domain events after commit. Callers treat it as
// fire and forget, so implementations should return without waiting on a
// broker (see events.AsyncPublisher).
type EventPublisher interface {
	Publish(ctx context.Context, event models.DomainEvent) error
}

// AvailabilityInvalidator drops cached availability for ticket types whose
// holds changed outside a request.
type AvailabilityInvalidator interface {
	Invalidate(ctx context.Context, ticketTypeIDs ...uuid.UUID)
}
