package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"event-ticketing-engine/internal/models"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// PriceOptions qualifies a price lookup
type PriceOptions struct {
	DiscountCode string
	// BoxOffice admits tiers reserved for sales at the venue
	BoxOffice bool
}

// PricingResolver picks the pricing tier in effect for a ticket type and
// computes the per-unit price and fee. Nothing is cached: tiers and codes
// may change between calls.
type PricingResolver struct {
	store       Reader
	defaultFees *models.FeeSchedule
	logger      *zap.Logger
}

// NewPricingResolver creates a pricing resolver. defaultFees applies to
// ticket types without their own fee schedule and may be nil.
func NewPricingResolver(store Reader, defaultFees *models.FeeSchedule, logger *zap.Logger) *PricingResolver {
	return &PricingResolver{
		store:       store,
		defaultFees: defaultFees,
		logger:      logger,
	}
}

// PriceFor resolves the price of quantity units of a ticket type at the
// given time
func (p *PricingResolver) PriceFor(ctx context.Context, ticketTypeID uuid.UUID, quantity int, at time.Time, opts PriceOptions) (*models.PriceQuote, error) {
	ctx, span := startSpan(ctx, "pricing.price_for",
		attribute.String("ticket_type.id", ticketTypeID.String()),
		attribute.Int("quantity", quantity),
	)

	var quote *models.PriceQuote
	tt, err := p.store.GetTicketType(ctx, ticketTypeID)
	if err == nil {
		quote, err = p.Quote(ctx, p.store, tt, quantity, at, opts)
	}
	finishSpan(span, err)
	return quote, err
}

// Quote prices a ticket type already loaded by the caller, reading the fee
// schedule through r so it can run inside the caller's transaction.
func (p *PricingResolver) Quote(ctx context.Context, r Reader, tt *models.TicketType, quantity int, at time.Time, opts PriceOptions) (*models.PriceQuote, error) {
	if quantity < 0 {
		return nil, fmt.Errorf("%w: %d", models.ErrInvalidQuantity, quantity)
	}

	tier, base, err := selectTier(tt, at, opts)
	if err != nil {
		return nil, err
	}

	list := tier.PriceCents
	unit := tier.PriceCents
	if base != nil {
		list = base.PriceCents
	}
	if tier.IsRelative() {
		unit = tier.DiscountFrom(base.PriceCents)
	}

	fees, err := p.feeScheduleFor(ctx, r, tt)
	if err != nil {
		return nil, err
	}

	quote := &models.PriceQuote{
		TicketTypeID:   tt.ID,
		TierID:         tier.ID,
		Quantity:       quantity,
		ListPriceCents: list,
		UnitPriceCents: unit,
		FeeCents:       fees.FeeFor(list, unit),
	}
	if tier.IsRestricted() {
		quote.RedemptionCode = strings.TrimSpace(opts.DiscountCode)
	}
	return quote, nil
}

func (p *PricingResolver) feeScheduleFor(ctx context.Context, r Reader, tt *models.TicketType) (*models.FeeSchedule, error) {
	if tt.FeeScheduleID == nil {
		return p.defaultFees, nil
	}

	fees, err := r.GetFeeSchedule(ctx, *tt.FeeScheduleID)
	if err != nil {
		if errors.Is(err, models.ErrFeeScheduleNotFound) {
			p.logger.Warn("fee schedule missing, using default",
				zap.String("ticket_type_id", tt.ID.String()),
				zap.String("fee_schedule_id", tt.FeeScheduleID.String()),
			)
			return p.defaultFees, nil
		}
		return nil, fmt.Errorf("failed to get fee schedule: %w", err)
	}
	return fees, nil
}

// selectTier returns the tier to charge and the unrestricted tier it is
// measured against. base is nil only when no unrestricted tier is active
// and the chosen tier carries its own absolute price.
func selectTier(tt *models.TicketType, at time.Time, opts PriceOptions) (tier, base *models.PricingTier, err error) {
	if !tt.IsOnSale(at) {
		return nil, nil, fmt.Errorf("%w: ticket type %s", models.ErrNoActiveTier, tt.ID)
	}

	var active []*models.PricingTier
	for i := range tt.Tiers {
		t := &tt.Tiers[i]
		if !t.ActiveAt(at) {
			continue
		}
		if t.BoxOfficeOnly && !opts.BoxOffice {
			continue
		}
		active = append(active, t)
	}
	if len(active) == 0 {
		return nil, nil, fmt.Errorf("%w: ticket type %s at %s", models.ErrNoActiveTier, tt.ID, at.Format(time.RFC3339))
	}

	for _, t := range active {
		if t.IsRestricted() {
			continue
		}
		if base == nil || betterBase(t, base, opts.BoxOffice) {
			base = t
		}
	}

	code := strings.TrimSpace(opts.DiscountCode)
	if code == "" {
		if base == nil {
			return nil, nil, fmt.Errorf("%w: ticket type %s requires a discount code", models.ErrNoActiveTier, tt.ID)
		}
		return base, base, nil
	}

	for _, t := range active {
		if !t.MatchesCode(code) {
			continue
		}
		if t.IsRelative() && base == nil {
			return nil, nil, fmt.Errorf("%w: no price to discount for ticket type %s", models.ErrNoActiveTier, tt.ID)
		}
		if tier == nil || t.StartsAt.After(tier.StartsAt) {
			tier = t
		}
	}
	if tier == nil {
		return nil, nil, fmt.Errorf("%w: %q", models.ErrInvalidDiscountCode, code)
	}
	return tier, base, nil
}

// betterBase orders overlapping unrestricted tiers: box office first when
// selling at the venue, then the most recently started, then the cheapest.
func betterBase(candidate, current *models.PricingTier, boxOffice bool) bool {
	if boxOffice && candidate.BoxOfficeOnly != current.BoxOfficeOnly {
		return candidate.BoxOfficeOnly
	}
	if !candidate.StartsAt.Equal(current.StartsAt) {
		return candidate.StartsAt.After(current.StartsAt)
	}
	if candidate.PriceCents != current.PriceCents {
		return candidate.PriceCents < current.PriceCents
	}
	return candidate.ID.String() < current.ID.String()
}
