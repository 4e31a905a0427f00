package models

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// OrderStatus represents the status of an order. A cart is an order in
// the draft (open) status.
type OrderStatus string

const (
	OrderOpen      OrderStatus = "draft"
	OrderPaid      OrderStatus = "paid"
	OrderCancelled OrderStatus = "cancelled"
	OrderExpired   OrderStatus = "expired"
)

// Order represents a cart or a finalized order
type Order struct {
	ID               uuid.UUID   `json:"id" db:"id"`
	UserID           uuid.UUID   `json:"user_id" db:"user_id"`
	OnBehalfOfUserID *uuid.UUID  `json:"on_behalf_of_user_id,omitempty" db:"on_behalf_of_user_id"`
	Status           OrderStatus `json:"status" db:"status"`
	OrderNumber      string      `json:"order_number,omitempty" db:"order_number"`
	Version          int64       `json:"version" db:"version"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at" db:"updated_at"` // last mutation, expiry reference
	PaidAt           *time.Time  `json:"paid_at,omitempty" db:"paid_at"`
}

// OrderItem is one ticket-type line of an order. Prices are per-unit
// snapshots taken by the last mutation that touched the line.
type OrderItem struct {
	ID             uuid.UUID `json:"id" db:"id"`
	OrderID        uuid.UUID `json:"order_id" db:"order_id"`
	TicketTypeID   uuid.UUID `json:"ticket_type_id" db:"ticket_type_id"`
	PricingTierID  uuid.UUID `json:"pricing_tier_id" db:"pricing_tier_id"`
	Quantity       int       `json:"quantity" db:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents" db:"unit_price_cents"`
	FeeCents       int64     `json:"fee_cents" db:"fee_cents"`
	RedemptionCode string    `json:"redemption_code,omitempty" db:"redemption_code"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// UpdateOrderItem is one requested line of an update_quantities call
type UpdateOrderItem struct {
	TicketTypeID   uuid.UUID `json:"ticket_type_id"`
	Quantity       int       `json:"quantity"`
	RedemptionCode string    `json:"redemption_code,omitempty"`
}

// Maximum quantity of one ticket type in a single cart
const MaxLineQuantity = 10000

var (
	// Order number format: ORD-YYYYMMDD-XXXXXX (e.g., ORD-20240101-123456)
	orderNumberRegex = regexp.MustCompile(`^ORD-\d{8}-\d{6}$`)
)

// NewCart returns an empty open order owned by userID
func NewCart(userID uuid.UUID, now time.Time) *Order {
	return &Order{
		ID:        uuid.New(),
		UserID:    userID,
		Status:    OrderOpen,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate validates the order data
func (o *Order) Validate() error {
	if o.UserID == uuid.Nil {
		return errors.New("order owner is required")
	}

	if err := validateOrderStatus(o.Status); err != nil {
		return err
	}

	if o.Status == OrderPaid {
		if !orderNumberRegex.MatchString(o.OrderNumber) {
			return errors.New("order number format is invalid")
		}
		if o.PaidAt == nil {
			return errors.New("paid order must record its payment time")
		}
	}

	return nil
}

// validateOrderStatus validates an order status
func validateOrderStatus(status OrderStatus) error {
	switch status {
	case OrderOpen, OrderPaid, OrderCancelled, OrderExpired:
		return nil
	default:
		return errors.New("invalid order status")
	}
}

// Validate validates a requested cart line
func (u *UpdateOrderItem) Validate() error {
	if u.TicketTypeID == uuid.Nil {
		return fmt.Errorf("%w: ticket type is required", ErrInvalidInput)
	}
	if u.Quantity < 0 || u.Quantity > MaxLineQuantity {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, u.Quantity)
	}
	if len(u.RedemptionCode) > 100 {
		return fmt.Errorf("%w: redemption code too long", ErrInvalidInput)
	}
	return nil
}

// MaxOrderNumberAttempts bounds how often a colliding order number is redrawn
const MaxOrderNumberAttempts = 5

// GenerateOrderNumber generates a unique order number for the given day
func GenerateOrderNumber(now time.Time) string {
	dateStr := now.Format("20060102")

	// Generate a 6-digit random number using crypto/rand for better uniqueness
	max := big.NewInt(1000000)
	randomNum, err := rand.Int(rand.Reader, max)
	if err != nil {
		// Fallback to timestamp-based generation if crypto/rand fails
		randomPart := now.UnixNano() % 1000000
		return fmt.Sprintf("ORD-%s-%06d", dateStr, randomPart)
	}

	return fmt.Sprintf("ORD-%s-%06d", dateStr, randomNum.Int64())
}

// RenewOrderNumber draws a new order number for the day the order was paid
func (o *Order) RenewOrderNumber() {
	day := o.UpdatedAt
	if o.PaidAt != nil {
		day = *o.PaidAt
	}
	o.OrderNumber = GenerateOrderNumber(day)
}

// IsOpen returns true if the order is still a mutable cart
func (o *Order) IsOpen() bool {
	return o.Status == OrderOpen
}

// IsPaid returns true if the order is paid
func (o *Order) IsPaid() bool {
	return o.Status == OrderPaid
}

// IsTerminal returns true once no further transition is possible
func (o *Order) IsTerminal() bool {
	return o.Status != OrderOpen
}

// CanTransitionTo reports whether next is reachable from the current status.
// Every transition starts from open; nothing leaves a terminal status.
func (o *Order) CanTransitionTo(next OrderStatus) bool {
	if o.Status != OrderOpen {
		return false
	}
	switch next {
	case OrderPaid, OrderCancelled, OrderExpired:
		return true
	default:
		return false
	}
}

// TransitionTo moves the order to next and records the mutation
func (o *Order) TransitionTo(next OrderStatus, now time.Time) error {
	if !o.CanTransitionTo(next) {
		return &StateError{OrderID: o.ID, Status: o.Status, Operation: "move to " + string(next)}
	}
	o.Status = next
	if next == OrderPaid {
		paidAt := now
		o.PaidAt = &paidAt
		if o.OrderNumber == "" {
			o.OrderNumber = GenerateOrderNumber(now)
		}
	}
	o.Touch(now)
	return nil
}

// RequireOpen returns a StateError naming operation unless the order is open
func (o *Order) RequireOpen(operation string) error {
	if !o.IsOpen() {
		return &StateError{OrderID: o.ID, Status: o.Status, Operation: operation}
	}
	return nil
}

// Touch bumps the optimistic version and the last-mutation timestamp
func (o *Order) Touch(now time.Time) {
	o.Version++
	o.UpdatedAt = now
}

// IsStale returns true if the order is open and untouched for longer than ttl
func (o *Order) IsStale(ttl time.Duration, now time.Time) bool {
	return o.IsOpen() && now.Sub(o.UpdatedAt) > ttl
}

// SetBehalfOf records a distinct ticket recipient. Passing the owner or
// uuid.Nil clears it.
func (o *Order) SetBehalfOf(recipient uuid.UUID) {
	if recipient == uuid.Nil || recipient == o.UserID {
		o.OnBehalfOfUserID = nil
		return
	}
	r := recipient
	o.OnBehalfOfUserID = &r
}

// RecipientID returns who the tickets are for
func (o *Order) RecipientID() uuid.UUID {
	if o.OnBehalfOfUserID != nil {
		return *o.OnBehalfOfUserID
	}
	return o.UserID
}

// LineTotalCents returns (unit + fee) * quantity
func (i *OrderItem) LineTotalCents() int64 {
	return (i.UnitPriceCents + i.FeeCents) * int64(i.Quantity)
}

// ApplyQuote snapshots a resolved price onto the item
func (i *OrderItem) ApplyQuote(q *PriceQuote, now time.Time) {
	i.Quantity = q.Quantity
	i.PricingTierID = q.TierID
	i.UnitPriceCents = q.UnitPriceCents
	i.FeeCents = q.FeeCents
	i.RedemptionCode = q.RedemptionCode
	i.UpdatedAt = now
}

// CalculateTotal returns sum(unit_price * quantity + fee * quantity)
func CalculateTotal(items []*OrderItem) int64 {
	var total int64
	for _, item := range items {
		total += item.LineTotalCents()
	}
	return total
}

// OrderTotals breaks a total down for display
type OrderTotals struct {
	SubtotalCents int64 `json:"subtotal_cents"`
	FeesCents     int64 `json:"fees_cents"`
	TotalCents    int64 `json:"total_cents"`
	ItemCount     int   `json:"item_count"`
}

// SummarizeItems computes the totals breakdown for items
func SummarizeItems(items []*OrderItem) OrderTotals {
	var totals OrderTotals
	for _, item := range items {
		qty := int64(item.Quantity)
		totals.SubtotalCents += item.UnitPriceCents * qty
		totals.FeesCents += item.FeeCents * qty
		totals.ItemCount += item.Quantity
	}
	totals.TotalCents = totals.SubtotalCents + totals.FeesCents
	return totals
}
