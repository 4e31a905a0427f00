package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"event-ticketing-engine/internal/models"

	"github.com/google/uuid"
)

// ListPayments returns the payments recorded for an order
func (r *queries) ListPayments(ctx context.Context, orderID uuid.UUID) ([]*models.Payment, error) {
	query := `
		SELECT id, order_id, provider_reference, amount_cents, outcome, created_by, created_at
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at, id`

	rows, err := r.q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, classifyError(fmt.Errorf("failed to list payments: %w", err))
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p := &models.Payment{}
		var createdBy uuid.NullUUID
		if err := rows.Scan(&p.ID, &p.OrderID, &p.ProviderReference, &p.AmountCents, &p.Outcome, &createdBy, &p.CreatedAt); err != nil {
			return nil, classifyError(fmt.Errorf("failed to scan payment: %w", err))
		}
		if createdBy.Valid {
			id := createdBy.UUID
			p.CreatedBy = &id
		}
		payments = append(payments, p)
	}

	if err := rows.Err(); err != nil {
		return nil, classifyError(fmt.Errorf("failed to iterate payments: %w", err))
	}
	return payments, nil
}

// InsertPayment records a payment result. The unique constraint on
// (order_id, provider_reference) makes a replayed result a no-op.
func (r *txStore) InsertPayment(ctx context.Context, p *models.Payment) (bool, error) {
	query := `
		INSERT INTO payments (id, order_id, provider_reference, amount_cents, outcome, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (order_id, provider_reference) DO NOTHING
		RETURNING id`

	var id uuid.UUID
	err := r.tx.QueryRowContext(ctx, query,
		p.ID,
		p.OrderID,
		p.ProviderReference,
		p.AmountCents,
		p.Outcome,
		nullUUID(p.CreatedBy),
		p.CreatedAt,
	).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert payment: %w", err)
	}
	return true, nil
}
