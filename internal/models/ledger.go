package models

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// LedgerEntry is the capacity accounting row of one ticket type.
// Invariant: 0 <= Held, 0 <= Sold, Held+Sold <= Total.
type LedgerEntry struct {
	TicketTypeID uuid.UUID `json:"ticket_type_id" db:"ticket_type_id"`
	Total        int       `json:"total" db:"total"`
	Held         int       `json:"held" db:"held"`
	Sold         int       `json:"sold" db:"sold"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Validate checks the ledger invariant
func (l *LedgerEntry) Validate() error {
	if l.Total < 0 || l.Held < 0 || l.Sold < 0 {
		return errors.New("ledger counters cannot be negative")
	}
	if l.Held+l.Sold > l.Total {
		return fmt.Errorf("ledger for ticket type %s is oversold: held %d + sold %d > total %d",
			l.TicketTypeID, l.Held, l.Sold, l.Total)
	}
	return nil
}

// Remaining returns the advisory number of units still available
func (l *LedgerEntry) Remaining() int {
	remaining := l.Total - l.Held - l.Sold
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Hold adjusts the held counter by delta, which may be negative.
func (l *LedgerEntry) Hold(delta int) error {
	if l.Held+l.Sold+delta > l.Total || l.Held+delta < 0 {
		return &InventoryError{
			TicketTypeID: l.TicketTypeID,
			Requested:    delta,
			Available:    l.Remaining(),
		}
	}
	l.Held += delta
	return nil
}

// CommitSale moves qty units from held to sold.
func (l *LedgerEntry) CommitSale(qty int) error {
	if qty < 0 {
		return ErrInvalidQuantity
	}
	if l.Held < qty {
		return fmt.Errorf("%w: ticket type %s holds %d, cannot sell %d",
			ErrInsufficientHold, l.TicketTypeID, l.Held, qty)
	}
	l.Held -= qty
	l.Sold += qty
	return nil
}

// Release returns qty held units to the pool.
func (l *LedgerEntry) Release(qty int) error {
	if qty < 0 {
		return ErrInvalidQuantity
	}
	if l.Held < qty {
		return fmt.Errorf("%w: ticket type %s holds %d, cannot release %d",
			ErrInsufficientHold, l.TicketTypeID, l.Held, qty)
	}
	l.Held -= qty
	return nil
}

// SetTotal changes capacity; it refuses to drop below what is already
// held or sold.
func (l *LedgerEntry) SetTotal(total int) error {
	if total < l.Held+l.Sold {
		return &InventoryError{
			TicketTypeID: l.TicketTypeID,
			Requested:    total,
			Available:    l.Held + l.Sold,
		}
	}
	l.Total = total
	return nil
}

// SortIDs returns a sorted copy of ids without duplicates. Row locks are
// always acquired in this order.
func SortIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	sorted := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})
	return sorted
}
