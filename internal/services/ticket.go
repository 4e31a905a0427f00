package services

import (
	"context"
	"fmt"

	"event-ticketing-engine/internal/clock"
	"event-ticketing-engine/internal/models"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// InventoryLedger owns the per-ticket-type capacity rows. Every mutation
// locks the row, checks the invariant and writes it back in one transaction.
type InventoryLedger struct {
	store  Store
	clock  clock.Clock
	logger *zap.Logger
}

// NewInventoryLedger creates a new inventory ledger
func NewInventoryLedger(store Store, clk clock.Clock, logger *zap.Logger) *InventoryLedger {
	return &InventoryLedger{
		store:  store,
		clock:  clk,
		logger: logger,
	}
}

// Reserve changes the held quantity of a ticket type by delta, which may be
// negative. It fails with a *models.InventoryError when the change would
// oversell or drive held below zero.
func (l *InventoryLedger) Reserve(ctx context.Context, ticketTypeID uuid.UUID, delta int) (*models.LedgerEntry, error) {
	return l.mutate(ctx, "ledger.reserve", ticketTypeID, delta, func(entry *models.LedgerEntry) error {
		return entry.Hold(delta)
	})
}

// CommitSale moves qty units of a ticket type from held to sold
func (l *InventoryLedger) CommitSale(ctx context.Context, ticketTypeID uuid.UUID, qty int) (*models.LedgerEntry, error) {
	return l.mutate(ctx, "ledger.commit_sale", ticketTypeID, qty, func(entry *models.LedgerEntry) error {
		return entry.CommitSale(qty)
	})
}

// Release returns qty held units of a ticket type to the pool
func (l *InventoryLedger) Release(ctx context.Context, ticketTypeID uuid.UUID, qty int) (*models.LedgerEntry, error) {
	return l.mutate(ctx, "ledger.release", ticketTypeID, qty, func(entry *models.LedgerEntry) error {
		return entry.Release(qty)
	})
}

// AdjustCapacity sets the total of a ticket type. It refuses to go below
// the units already held or sold.
func (l *InventoryLedger) AdjustCapacity(ctx context.Context, ticketTypeID uuid.UUID, total int) (*models.LedgerEntry, error) {
	if total < 0 {
		return nil, fmt.Errorf("%w: capacity cannot be negative", models.ErrInvalidQuantity)
	}
	return l.mutate(ctx, "ledger.adjust_capacity", ticketTypeID, total, func(entry *models.LedgerEntry) error {
		return entry.SetTotal(total)
	})
}

// Remaining returns total - held - sold. The figure is advisory: a later
// Reserve re-checks it under the row lock.
func (l *InventoryLedger) Remaining(ctx context.Context, ticketTypeID uuid.UUID) (int, error) {
	ctx, span := startSpan(ctx, "ledger.remaining", attribute.String("ticket_type.id", ticketTypeID.String()))

	entry, err := l.store.GetLedger(ctx, ticketTypeID)
	finishSpan(span, err)
	if err != nil {
		return 0, err
	}
	return entry.Remaining(), nil
}

// Entry returns the committed ledger row of a ticket type
func (l *InventoryLedger) Entry(ctx context.Context, ticketTypeID uuid.UUID) (*models.LedgerEntry, error) {
	return l.store.GetLedger(ctx, ticketTypeID)
}

// Provision creates the ledger row and ticket type together
func (l *InventoryLedger) Provision(ctx context.Context, tt *models.TicketType) error {
	ctx, span := startSpan(ctx, "ledger.provision", attribute.String("ticket_type.id", tt.ID.String()))

	err := l.store.InTx(ctx, func(tx StoreTx) error {
		if err := tx.SaveTicketType(ctx, tt); err != nil {
			return err
		}
		return tx.CreateLedger(ctx, &models.LedgerEntry{
			TicketTypeID: tt.ID,
			Total:        tt.Capacity,
			UpdatedAt:    l.clock.Now(),
		})
	})
	finishSpan(span, err)
	if err != nil {
		return fmt.Errorf("failed to provision ticket type %s: %w", tt.ID, err)
	}

	l.logger.Info("ticket type provisioned",
		zap.String("ticket_type_id", tt.ID.String()),
		zap.Int("capacity", tt.Capacity),
	)
	return nil
}

func (l *InventoryLedger) mutate(ctx context.Context, op string, ticketTypeID uuid.UUID, amount int, apply func(*models.LedgerEntry) error) (*models.LedgerEntry, error) {
	ctx, span := startSpan(ctx, op,
		attribute.String("ticket_type.id", ticketTypeID.String()),
		attribute.Int("ledger.amount", amount),
	)

	var result *models.LedgerEntry
	err := l.store.InTx(ctx, func(tx StoreTx) error {
		entries, err := tx.LockLedgers(ctx, []uuid.UUID{ticketTypeID})
		if err != nil {
			return err
		}
		entry := entries[ticketTypeID]

		if err := apply(entry); err != nil {
			return err
		}
		entry.UpdatedAt = l.clock.Now()

		if err := tx.UpdateLedger(ctx, entry); err != nil {
			return err
		}
		result = entry
		return nil
	})
	finishSpan(span, err)

	if err != nil {
		if models.IsFatal(err) {
			l.logger.Error("ledger consistency check failed",
				zap.String("operation", op),
				zap.String("ticket_type_id", ticketTypeID.String()),
				zap.Int("amount", amount),
				zap.Error(err),
			)
		}
		return nil, err
	}
	return result, nil
}
