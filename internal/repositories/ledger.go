package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"event-ticketing-engine/internal/models"

	"github.com/google/uuid"
)

const ledgerColumns = `ticket_type_id, total, held, sold, updated_at`

func scanLedger(row interface{ Scan(...any) error }) (*models.LedgerEntry, error) {
	entry := &models.LedgerEntry{}
	err := row.Scan(&entry.TicketTypeID, &entry.Total, &entry.Held, &entry.Sold, &entry.UpdatedAt)
	return entry, err
}

// GetLedger reads a ledger row without locking it
func (r *queries) GetLedger(ctx context.Context, ticketTypeID uuid.UUID) (*models.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM inventory_ledger WHERE ticket_type_id = $1`

	entry, err := scanLedger(r.q.QueryRowContext(ctx, query, ticketTypeID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrTicketTypeNotFound
		}
		return nil, classifyError(fmt.Errorf("failed to get ledger: %w", err))
	}
	return entry, nil
}

// LockLedgers locks ledger rows one at a time in ascending ticket-type ID
// order, so two transactions touching the same rows cannot deadlock.
func (r *txStore) LockLedgers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM inventory_ledger WHERE ticket_type_id = $1 FOR UPDATE`

	entries := make(map[uuid.UUID]*models.LedgerEntry, len(ids))
	for _, id := range models.SortIDs(ids) {
		entry, err := scanLedger(r.tx.QueryRowContext(ctx, query, id))
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, fmt.Errorf("ledger for %s: %w", id, models.ErrTicketTypeNotFound)
			}
			return nil, fmt.Errorf("failed to lock ledger: %w", err)
		}
		entries[id] = entry
	}
	return entries, nil
}

// UpdateLedger writes back a locked ledger row. The table's CHECK
// constraint backs the in-memory invariant check.
func (r *txStore) UpdateLedger(ctx context.Context, entry *models.LedgerEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE inventory_ledger
		SET total = $2, held = $3, sold = $4, updated_at = $5
		WHERE ticket_type_id = $1`

	result, err := r.tx.ExecContext(ctx, query, entry.TicketTypeID, entry.Total, entry.Held, entry.Sold, entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update ledger: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return models.ErrTicketTypeNotFound
	}
	return nil
}

// CreateLedger inserts the ledger row of a new ticket type
func (r *txStore) CreateLedger(ctx context.Context, entry *models.LedgerEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO inventory_ledger (` + ledgerColumns + `)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.tx.ExecContext(ctx, query, entry.TicketTypeID, entry.Total, entry.Held, entry.Sold, entry.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("ledger for ticket type %s: %w", entry.TicketTypeID, models.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create ledger: %w", err)
	}
	return nil
}
