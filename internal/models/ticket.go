package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TicketTypeStatus represents the sale status of a ticket type
type TicketTypeStatus string

const (
	TicketTypePublished TicketTypeStatus = "published"
	TicketTypeCancelled TicketTypeStatus = "cancelled"
)

// TicketType represents a type of ticket for an event
type TicketType struct {
	ID             uuid.UUID        `json:"id" db:"id" yaml:"id"`
	EventID        uuid.UUID        `json:"event_id" db:"event_id" yaml:"event_id"`
	Name           string           `json:"name" db:"name" yaml:"name"`
	Capacity       int              `json:"capacity" db:"capacity" yaml:"capacity"`
	Status         TicketTypeStatus `json:"status" db:"status" yaml:"status"`
	SaleStart      time.Time        `json:"sale_start" db:"sale_start" yaml:"sale_start"`
	SaleEnd        time.Time        `json:"sale_end" db:"sale_end" yaml:"sale_end"`
	LimitPerPerson int              `json:"limit_per_person" db:"limit_per_person" yaml:"limit_per_person"` // 0 means unlimited
	FeeScheduleID  *uuid.UUID       `json:"fee_schedule_id,omitempty" db:"fee_schedule_id" yaml:"fee_schedule_id"`
	Tiers          []PricingTier    `json:"tiers" yaml:"tiers"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at" yaml:"-"`
}

// PricingTier is a time-boxed price for a ticket type. The window is
// half-open: [StartsAt, EndsAt).
type PricingTier struct {
	ID           uuid.UUID `json:"id" db:"id" yaml:"id"`
	TicketTypeID uuid.UUID `json:"ticket_type_id" db:"ticket_type_id" yaml:"-"`
	Name         string    `json:"name" db:"name" yaml:"name"`
	StartsAt     time.Time `json:"starts_at" db:"starts_at" yaml:"starts_at"`
	EndsAt       time.Time `json:"ends_at" db:"ends_at" yaml:"ends_at"`
	PriceCents   int64     `json:"price_cents" db:"price_cents" yaml:"price_cents"`

	// DiscountCode restricts the tier to buyers presenting the code.
	DiscountCode string `json:"discount_code,omitempty" db:"discount_code" yaml:"discount_code"`
	// DiscountCents and DiscountPercent derive the price from the
	// unrestricted tier active at the same time. Only valid with a code.
	DiscountCents   int64 `json:"discount_cents,omitempty" db:"discount_cents" yaml:"discount_cents"`
	DiscountPercent int   `json:"discount_percent,omitempty" db:"discount_percent" yaml:"discount_percent"`

	BoxOfficeOnly bool `json:"box_office_only" db:"box_office_only" yaml:"box_office_only"`
}

// Validate validates the ticket type and its tiers
func (tt *TicketType) Validate() error {
	if err := validateTicketTypeName(tt.Name); err != nil {
		return err
	}

	if err := validateTicketTypeCapacity(tt.Capacity); err != nil {
		return err
	}

	if err := tt.validateStatus(); err != nil {
		return err
	}

	if !tt.SaleStart.IsZero() && !tt.SaleEnd.IsZero() && !tt.SaleStart.Before(tt.SaleEnd) {
		return errors.New("sale start date must be before sale end date")
	}

	if tt.LimitPerPerson < 0 {
		return errors.New("limit per person cannot be negative")
	}

	for i := range tt.Tiers {
		if err := tt.Tiers[i].Validate(); err != nil {
			return err
		}
	}

	return nil
}

// validateStatus validates the ticket type status
func (tt *TicketType) validateStatus() error {
	switch tt.Status {
	case TicketTypePublished, TicketTypeCancelled:
		return nil
	default:
		return errors.New("invalid ticket type status")
	}
}

// validateTicketTypeName validates a ticket type name
func validateTicketTypeName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("ticket type name is required")
	}

	if len(name) > 100 {
		return errors.New("ticket type name must be less than 100 characters")
	}

	return nil
}

// validateTicketTypeCapacity validates a ticket type capacity
func validateTicketTypeCapacity(capacity int) error {
	if capacity < 0 {
		return errors.New("ticket capacity cannot be negative")
	}

	// Maximum of 1,000,000 tickets per type
	if capacity > 1000000 {
		return errors.New("ticket capacity cannot exceed 1,000,000")
	}

	return nil
}

// IsOnSale reports whether the ticket type accepts holds at the given time.
// A zero SaleStart or SaleEnd leaves that side of the window open.
func (tt *TicketType) IsOnSale(at time.Time) bool {
	if tt.Status != TicketTypePublished {
		return false
	}
	if !tt.SaleStart.IsZero() && at.Before(tt.SaleStart) {
		return false
	}
	if !tt.SaleEnd.IsZero() && !at.Before(tt.SaleEnd) {
		return false
	}
	return true
}

// Validate validates a pricing tier
func (p *PricingTier) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("pricing tier name is required")
	}

	if p.StartsAt.IsZero() || p.EndsAt.IsZero() {
		return errors.New("pricing tier window is required")
	}

	if !p.StartsAt.Before(p.EndsAt) {
		return errors.New("pricing tier must start before it ends")
	}

	if p.PriceCents < 0 {
		return errors.New("pricing tier price cannot be negative")
	}

	if p.DiscountCents < 0 || p.DiscountPercent < 0 {
		return errors.New("pricing tier discount cannot be negative")
	}

	if p.IsRelative() && !p.IsRestricted() {
		return errors.New("relative discounts require a discount code")
	}

	return nil
}

// ActiveAt reports whether at falls inside [StartsAt, EndsAt)
func (p *PricingTier) ActiveAt(at time.Time) bool {
	return !at.Before(p.StartsAt) && at.Before(p.EndsAt)
}

// IsRestricted returns true if the tier requires a discount code
func (p *PricingTier) IsRestricted() bool {
	return p.DiscountCode != ""
}

// IsRelative returns true if the tier discounts another tier's price
// instead of carrying its own
func (p *PricingTier) IsRelative() bool {
	return p.DiscountCents > 0 || p.DiscountPercent > 0
}

// MatchesCode compares codes ignoring case and surrounding whitespace
func (p *PricingTier) MatchesCode(code string) bool {
	return p.IsRestricted() && strings.EqualFold(strings.TrimSpace(code), strings.TrimSpace(p.DiscountCode))
}

// DiscountFrom applies a relative discount to list, clamped to [0, list].
func (p *PricingTier) DiscountFrom(list int64) int64 {
	price := list
	if p.DiscountPercent > 0 {
		percent := int64(p.DiscountPercent)
		if percent > 100 {
			percent = 100
		}
		price -= (list*percent + 50) / 100
	}
	if p.DiscountCents > 0 {
		price -= p.DiscountCents
	}
	if price < 0 {
		return 0
	}
	if price > list {
		return list
	}
	return price
}

// PriceQuote is the outcome of resolving a price for one cart line
type PriceQuote struct {
	TicketTypeID   uuid.UUID `json:"ticket_type_id"`
	TierID         uuid.UUID `json:"tier_id"`
	Quantity       int       `json:"quantity"`
	ListPriceCents int64     `json:"list_price_cents"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	FeeCents       int64     `json:"fee_cents"` // per unit
	RedemptionCode string    `json:"redemption_code,omitempty"`
}

// LineTotalCents returns (unit + fee) * quantity
func (q *PriceQuote) LineTotalCents() int64 {
	return (q.UnitPriceCents + q.FeeCents) * int64(q.Quantity)
}
