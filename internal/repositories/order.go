package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"event-ticketing-engine/internal/models"
	"event-ticketing-engine/internal/services"

	"github.com/google/uuid"
)

const orderColumns = `id, user_id, on_behalf_of_user_id, status, order_number, version, created_at, updated_at, paid_at`

func scanOrder(row interface{ Scan(...any) error }) (*models.Order, error) {
	order := &models.Order{}
	var onBehalfOf uuid.NullUUID
	var orderNumber sql.NullString
	var paidAt sql.NullTime

	err := row.Scan(
		&order.ID,
		&order.UserID,
		&onBehalfOf,
		&order.Status,
		&orderNumber,
		&order.Version,
		&order.CreatedAt,
		&order.UpdatedAt,
		&paidAt,
	)
	if err != nil {
		return nil, err
	}

	if onBehalfOf.Valid {
		id := onBehalfOf.UUID
		order.OnBehalfOfUserID = &id
	}
	order.OrderNumber = orderNumber.String
	if paidAt.Valid {
		t := paidAt.Time
		order.PaidAt = &t
	}
	return order, nil
}

// GetOrder retrieves an order by ID
func (r *queries) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrOrderNotFound
		}
		return nil, classifyError(fmt.Errorf("failed to get order: %w", err))
	}
	return order, nil
}

// FindOpenCart retrieves the owner's open cart
func (r *queries) FindOpenCart(ctx context.Context, userID uuid.UUID) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 AND status = $2`

	order, err := scanOrder(r.q.QueryRowContext(ctx, query, userID, models.OrderOpen))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrOrderNotFound
		}
		return nil, classifyError(fmt.Errorf("failed to find open cart: %w", err))
	}
	return order, nil
}

// ListOrderItems returns the items of an order
func (r *queries) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]*models.OrderItem, error) {
	query := `
		SELECT id, order_id, ticket_type_id, pricing_tier_id, quantity, unit_price_cents, fee_cents, redemption_code, created_at, updated_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at, ticket_type_id`

	rows, err := r.q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, classifyError(fmt.Errorf("failed to list order items: %w", err))
	}
	defer rows.Close()

	var items []*models.OrderItem
	for rows.Next() {
		item := &models.OrderItem{}
		var code sql.NullString
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.TicketTypeID,
			&item.PricingTierID,
			&item.Quantity,
			&item.UnitPriceCents,
			&item.FeeCents,
			&code,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, classifyError(fmt.Errorf("failed to scan order item: %w", err))
		}
		item.RedemptionCode = code.String
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, classifyError(fmt.Errorf("failed to iterate order items: %w", err))
	}
	return items, nil
}

// ListStaleCarts returns open carts last mutated before cutoff, keyset
// paginated on (updated_at, id)
func (s *Store) ListStaleCarts(ctx context.Context, cutoff time.Time, after *services.StaleCartCursor, limit int) ([]*models.Order, error) {
	args := []interface{}{models.OrderOpen, cutoff}
	keyset := ""
	if after != nil {
		keyset = "AND (updated_at, id) > ($3, $4)"
		args = append(args, after.UpdatedAt, after.ID)
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = $1 AND updated_at < $2 %s
		ORDER BY updated_at, id
		LIMIT $%d`, keyset, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyError(fmt.Errorf("failed to list stale carts: %w", err))
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, classifyError(fmt.Errorf("failed to scan order: %w", err))
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, classifyError(fmt.Errorf("failed to iterate stale carts: %w", err))
	}
	return orders, nil
}

// LockOrder reads an order under FOR UPDATE
func (r *txStore) LockOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	order, err := scanOrder(r.tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}
	return order, nil
}

// CreateCart inserts a new open cart. The partial unique index on
// (user_id) WHERE status = 'draft' turns a concurrent second insert into a
// no-op, after which the winner's cart is returned.
func (r *txStore) CreateCart(ctx context.Context, cart *models.Order) (*models.Order, error) {
	if err := cart.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO orders (id, user_id, on_behalf_of_user_id, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) WHERE status = 'draft' DO NOTHING
		RETURNING ` + orderColumns

	created, err := scanOrder(r.tx.QueryRowContext(ctx, query,
		cart.ID,
		cart.UserID,
		nullUUID(cart.OnBehalfOfUserID),
		cart.Status,
		cart.Version,
		cart.CreatedAt,
		cart.UpdatedAt,
	))
	if err == nil {
		return created, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}

	return r.FindOpenCart(ctx, cart.UserID)
}

// UpdateOrder writes the mutable fields of a locked order. An order number
// already taken by another order is regenerated in place.
func (r *txStore) UpdateOrder(ctx context.Context, order *models.Order) error {
	if err := order.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if order.OrderNumber != "" {
		if err := r.claimOrderNumber(ctx, order); err != nil {
			return err
		}
	}

	query := `
		UPDATE orders
		SET on_behalf_of_user_id = $2, status = $3, order_number = $4, version = $5, updated_at = $6, paid_at = $7
		WHERE id = $1`

	var paidAt sql.NullTime
	if order.PaidAt != nil {
		paidAt = sql.NullTime{Time: *order.PaidAt, Valid: true}
	}

	result, err := r.tx.ExecContext(ctx, query,
		order.ID,
		nullUUID(order.OnBehalfOfUserID),
		order.Status,
		sql.NullString{String: order.OrderNumber, Valid: order.OrderNumber != ""},
		order.Version,
		order.UpdatedAt,
		paidAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// A concurrent payment took the number after the check; a
			// retry draws a fresh one.
			return fmt.Errorf("%w: order number %s: %w", models.ErrTransientStore, order.OrderNumber, models.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to update order: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return models.ErrOrderNotFound
	}
	return nil
}

// claimOrderNumber regenerates order.OrderNumber until no other order holds it
func (r *txStore) claimOrderNumber(ctx context.Context, order *models.Order) error {
	for i := 0; i < models.MaxOrderNumberAttempts; i++ {
		var exists bool
		err := r.tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM orders WHERE order_number = $1 AND id <> $2)",
			order.OrderNumber, order.ID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check order number uniqueness: %w", err)
		}
		if !exists {
			return nil
		}
		order.RenewOrderNumber()
	}
	return fmt.Errorf("%w: no free order number after %d attempts: %w", models.ErrTransientStore, models.MaxOrderNumberAttempts, models.ErrDuplicateEntry)
}

// SaveOrderItem upserts the line of an order for one ticket type
func (r *txStore) SaveOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (id, order_id, ticket_type_id, pricing_tier_id, quantity, unit_price_cents, fee_cents, redemption_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (order_id, ticket_type_id) DO UPDATE SET
			pricing_tier_id = EXCLUDED.pricing_tier_id,
			quantity = EXCLUDED.quantity,
			unit_price_cents = EXCLUDED.unit_price_cents,
			fee_cents = EXCLUDED.fee_cents,
			redemption_code = EXCLUDED.redemption_code,
			updated_at = EXCLUDED.updated_at`

	_, err := r.tx.ExecContext(ctx, query,
		item.ID,
		item.OrderID,
		item.TicketTypeID,
		item.PricingTierID,
		item.Quantity,
		item.UnitPriceCents,
		item.FeeCents,
		sql.NullString{String: item.RedemptionCode, Valid: item.RedemptionCode != ""},
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save order item: %w", err)
	}
	return nil
}

// DeleteOrderItem removes the line of an order for one ticket type
func (r *txStore) DeleteOrderItem(ctx context.Context, orderID, ticketTypeID uuid.UUID) error {
	_, err := r.tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1 AND ticket_type_id = $2`, orderID, ticketTypeID)
	if err != nil {
		return fmt.Errorf("failed to delete order item: %w", err)
	}
	return nil
}
