package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"event-ticketing-engine/internal/models"

	"github.com/google/uuid"
)

// queries holds the SQL shared by the pooled store and its transactions
type queries struct {
	q querier
}

// GetTicketType retrieves a ticket type and its pricing tiers
func (r *queries) GetTicketType(ctx context.Context, id uuid.UUID) (*models.TicketType, error) {
	query := `
		SELECT id, event_id, name, capacity, status, sale_start, sale_end, limit_per_person, fee_schedule_id, created_at
		FROM ticket_types
		WHERE id = $1`

	tt := &models.TicketType{}
	var saleStart, saleEnd sql.NullTime
	var feeScheduleID uuid.NullUUID

	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&tt.ID,
		&tt.EventID,
		&tt.Name,
		&tt.Capacity,
		&tt.Status,
		&saleStart,
		&saleEnd,
		&tt.LimitPerPerson,
		&feeScheduleID,
		&tt.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrTicketTypeNotFound
		}
		return nil, classifyError(fmt.Errorf("failed to get ticket type: %w", err))
	}

	tt.SaleStart = saleStart.Time
	tt.SaleEnd = saleEnd.Time
	if feeScheduleID.Valid {
		id := feeScheduleID.UUID
		tt.FeeScheduleID = &id
	}

	tiers, err := r.listPricingTiers(ctx, tt.ID)
	if err != nil {
		return nil, err
	}
	tt.Tiers = tiers

	return tt, nil
}

// listPricingTiers returns the tiers of a ticket type by window start
func (r *queries) listPricingTiers(ctx context.Context, ticketTypeID uuid.UUID) ([]models.PricingTier, error) {
	query := `
		SELECT id, ticket_type_id, name, starts_at, ends_at, price_cents, discount_code, discount_cents, discount_percent, box_office_only
		FROM pricing_tiers
		WHERE ticket_type_id = $1
		ORDER BY starts_at, id`

	rows, err := r.q.QueryContext(ctx, query, ticketTypeID)
	if err != nil {
		return nil, classifyError(fmt.Errorf("failed to get pricing tiers: %w", err))
	}
	defer rows.Close()

	var tiers []models.PricingTier
	for rows.Next() {
		var tier models.PricingTier
		var code sql.NullString
		if err := rows.Scan(
			&tier.ID,
			&tier.TicketTypeID,
			&tier.Name,
			&tier.StartsAt,
			&tier.EndsAt,
			&tier.PriceCents,
			&code,
			&tier.DiscountCents,
			&tier.DiscountPercent,
			&tier.BoxOfficeOnly,
		); err != nil {
			return nil, classifyError(fmt.Errorf("failed to scan pricing tier: %w", err))
		}
		tier.DiscountCode = code.String
		tiers = append(tiers, tier)
	}

	if err := rows.Err(); err != nil {
		return nil, classifyError(fmt.Errorf("failed to iterate pricing tiers: %w", err))
	}
	return tiers, nil
}

// GetFeeSchedule retrieves a fee schedule
func (r *queries) GetFeeSchedule(ctx context.Context, id uuid.UUID) (*models.FeeSchedule, error) {
	query := `
		SELECT id, name, flat_cents, percent_basis_points, base, compound, created_at
		FROM fee_schedules
		WHERE id = $1`

	fs := &models.FeeSchedule{}
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&fs.ID,
		&fs.Name,
		&fs.FlatCents,
		&fs.PercentBasisPoints,
		&fs.Base,
		&fs.Compound,
		&fs.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrFeeScheduleNotFound
		}
		return nil, classifyError(fmt.Errorf("failed to get fee schedule: %w", err))
	}
	return fs, nil
}

// SaveTicketType upserts a ticket type and replaces its pricing tiers
func (r *txStore) SaveTicketType(ctx context.Context, tt *models.TicketType) error {
	if err := tt.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO ticket_types (id, event_id, name, capacity, status, sale_start, sale_end, limit_per_person, fee_schedule_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			event_id = EXCLUDED.event_id,
			name = EXCLUDED.name,
			capacity = EXCLUDED.capacity,
			status = EXCLUDED.status,
			sale_start = EXCLUDED.sale_start,
			sale_end = EXCLUDED.sale_end,
			limit_per_person = EXCLUDED.limit_per_person,
			fee_schedule_id = EXCLUDED.fee_schedule_id`

	createdAt := tt.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := r.tx.ExecContext(ctx, query,
		tt.ID,
		tt.EventID,
		tt.Name,
		tt.Capacity,
		tt.Status,
		nullTime(tt.SaleStart),
		nullTime(tt.SaleEnd),
		tt.LimitPerPerson,
		nullUUID(tt.FeeScheduleID),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save ticket type: %w", err)
	}

	if _, err := r.tx.ExecContext(ctx, `DELETE FROM pricing_tiers WHERE ticket_type_id = $1`, tt.ID); err != nil {
		return fmt.Errorf("failed to clear pricing tiers: %w", err)
	}

	for _, tier := range tt.Tiers {
		if tier.ID == uuid.Nil {
			tier.ID = uuid.New()
		}
		_, err := r.tx.ExecContext(ctx, `
			INSERT INTO pricing_tiers (id, ticket_type_id, name, starts_at, ends_at, price_cents, discount_code, discount_cents, discount_percent, box_office_only)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			tier.ID,
			tt.ID,
			tier.Name,
			tier.StartsAt,
			tier.EndsAt,
			tier.PriceCents,
			sql.NullString{String: tier.DiscountCode, Valid: tier.DiscountCode != ""},
			tier.DiscountCents,
			tier.DiscountPercent,
			tier.BoxOfficeOnly,
		)
		if err != nil {
			return fmt.Errorf("failed to save pricing tier %q: %w", tier.Name, err)
		}
	}

	return nil
}

// SaveFeeSchedule upserts a fee schedule
func (r *txStore) SaveFeeSchedule(ctx context.Context, fs *models.FeeSchedule) error {
	if err := fs.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO fee_schedules (id, name, flat_cents, percent_basis_points, base, compound)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			flat_cents = EXCLUDED.flat_cents,
			percent_basis_points = EXCLUDED.percent_basis_points,
			base = EXCLUDED.base,
			compound = EXCLUDED.compound`

	_, err := r.tx.ExecContext(ctx, query, fs.ID, fs.Name, fs.FlatCents, fs.PercentBasisPoints, fs.Base, fs.Compound)
	if err != nil {
		return fmt.Errorf("failed to save fee schedule: %w", err)
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
