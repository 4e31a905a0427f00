package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"event-ticketing-engine/internal/clock"
	"event-ticketing-engine/internal/models"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// UpdateOptions qualifies an UpdateQuantities call
type UpdateOptions struct {
	// BoxOffice prices the lines as a sale at the venue
	BoxOffice bool
}

// CartView is an order with its items and totals
type CartView struct {
	Order  *models.Order       `json:"order"`
	Items  []*models.OrderItem `json:"items"`
	Totals models.OrderTotals  `json:"totals"`
}

// CartService is the cart and order engine. Each exported method owns its
// transaction boundary.
type CartService struct {
	store   Store
	pricing *PricingResolver
	clock   clock.Clock
	events  EventPublisher
	logger  *zap.Logger
}

// NewCartService creates a new cart service. events may be nil.
func NewCartService(store Store, pricing *PricingResolver, clk clock.Clock, events EventPublisher, logger *zap.Logger) *CartService {
	return &CartService{
		store:   store,
		pricing: pricing,
		clock:   clk,
		events:  events,
		logger:  logger,
	}
}

// FindOrCreateCart returns the buyer's open cart, creating one if needed.
// Concurrent calls for the same buyer converge on a single cart.
func (s *CartService) FindOrCreateCart(ctx context.Context, userID uuid.UUID) (*models.Order, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: buyer is required", models.ErrInvalidInput)
	}

	ctx, span := startSpan(ctx, "cart.find_or_create", attribute.String("user.id", userID.String()))

	cart, err := s.store.FindOpenCart(ctx, userID)
	if errors.Is(err, models.ErrOrderNotFound) {
		err = s.store.InTx(ctx, func(tx StoreTx) error {
			created, err := tx.CreateCart(ctx, models.NewCart(userID, s.clock.Now()))
			if err != nil {
				return err
			}
			cart = created
			return nil
		})
	}
	finishSpan(span, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return cart, nil
}

// GetCart returns an order with its items and totals
func (s *CartService) GetCart(ctx context.Context, cartID uuid.UUID) (*CartView, error) {
	order, err := s.store.GetOrder(ctx, cartID)
	if err != nil {
		return nil, err
	}

	items, err := s.store.ListOrderItems(ctx, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}

	return &CartView{Order: order, Items: items, Totals: models.SummarizeItems(items)}, nil
}

// UpdateQuantities sets the quantity of every requested line. Holds are
// adjusted by the difference from the current line, prices are resolved
// again and a zero quantity removes the line. The lines are applied in one
// transaction: if any fails, none is.
func (s *CartService) UpdateQuantities(ctx context.Context, cartID uuid.UUID, lines []models.UpdateOrderItem, opts UpdateOptions) (*CartView, error) {
	if err := validateLines(lines); err != nil {
		return nil, err
	}

	ctx, span := startSpan(ctx, "cart.update_quantities",
		attribute.String("order.id", cartID.String()),
		attribute.Int("cart.lines", len(lines)),
	)

	var view *CartView
	err := s.store.InTx(ctx, func(tx StoreTx) error {
		order, err := tx.LockOrder(ctx, cartID)
		if err != nil {
			return err
		}
		if err := order.RequireOpen("update quantities of"); err != nil {
			return err
		}

		items, err := tx.ListOrderItems(ctx, cartID)
		if err != nil {
			return err
		}
		current := make(map[uuid.UUID]*models.OrderItem, len(items))
		for _, item := range items {
			current[item.TicketTypeID] = item
		}

		ids := make([]uuid.UUID, 0, len(lines))
		for _, line := range lines {
			ids = append(ids, line.TicketTypeID)
		}
		ledgers, err := tx.LockLedgers(ctx, ids)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		for _, line := range lines {
			if err := s.applyLine(ctx, tx, order, current[line.TicketTypeID], ledgers[line.TicketTypeID], line, now, opts); err != nil {
				return err
			}
		}

		for _, id := range models.SortIDs(ids) {
			entry := ledgers[id]
			entry.UpdatedAt = now
			if err := tx.UpdateLedger(ctx, entry); err != nil {
				return err
			}
		}

		order.Touch(now)
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}

		items, err = tx.ListOrderItems(ctx, cartID)
		if err != nil {
			return err
		}
		view = &CartView{Order: order, Items: items, Totals: models.SummarizeItems(items)}
		return nil
	})
	finishSpan(span, err)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("cart quantities updated",
		zap.String("order_id", cartID.String()),
		zap.Int("lines", len(lines)),
		zap.Int64("total_cents", view.Totals.TotalCents),
	)
	return view, nil
}

func validateLines(lines []models.UpdateOrderItem) error {
	if len(lines) == 0 {
		return fmt.Errorf("%w: no lines to update", models.ErrInvalidInput)
	}

	seen := make(map[uuid.UUID]bool, len(lines))
	for i := range lines {
		if err := lines[i].Validate(); err != nil {
			return err
		}
		if seen[lines[i].TicketTypeID] {
			return fmt.Errorf("%w: ticket type %s listed twice", models.ErrInvalidInput, lines[i].TicketTypeID)
		}
		seen[lines[i].TicketTypeID] = true
	}
	return nil
}

// applyLine moves the hold of one line to the requested quantity and
// snapshots its price. entry must already be locked.
func (s *CartService) applyLine(ctx context.Context, tx StoreTx, order *models.Order, item *models.OrderItem, entry *models.LedgerEntry, line models.UpdateOrderItem, now time.Time, opts UpdateOptions) error {
	held := 0
	if item != nil {
		held = item.Quantity
	}

	if line.Quantity == 0 {
		if item == nil {
			return nil
		}
		if err := entry.Release(held); err != nil {
			return err
		}
		return tx.DeleteOrderItem(ctx, order.ID, line.TicketTypeID)
	}

	tt, err := tx.GetTicketType(ctx, line.TicketTypeID)
	if err != nil {
		return err
	}
	if tt.LimitPerPerson > 0 && line.Quantity > tt.LimitPerPerson {
		return fmt.Errorf("%w: ticket type %s allows %d per buyer, requested %d",
			models.ErrPurchaseLimitExceeded, tt.ID, tt.LimitPerPerson, line.Quantity)
	}

	quote, err := s.pricing.Quote(ctx, tx, tt, line.Quantity, now, PriceOptions{
		DiscountCode: line.RedemptionCode,
		BoxOffice:    opts.BoxOffice,
	})
	if err != nil {
		return err
	}

	if delta := line.Quantity - held; delta != 0 {
		if err := entry.Hold(delta); err != nil {
			return err
		}
	}

	if item == nil {
		item = &models.OrderItem{
			ID:           uuid.New(),
			OrderID:      order.ID,
			TicketTypeID: line.TicketTypeID,
			CreatedAt:    now,
		}
	}
	item.ApplyQuote(quote, now)
	return tx.SaveOrderItem(ctx, item)
}

// CalculateTotal returns sum(unit_price * quantity + fee * quantity) over
// the order's current items
func (s *CartService) CalculateTotal(ctx context.Context, cartID uuid.UUID) (int64, error) {
	if _, err := s.store.GetOrder(ctx, cartID); err != nil {
		return 0, err
	}

	items, err := s.store.ListOrderItems(ctx, cartID)
	if err != nil {
		return 0, fmt.Errorf("failed to get order items: %w", err)
	}
	return models.CalculateTotal(items), nil
}

// SetBehalfOfUser records who the tickets are for. Ownership and payment
// responsibility stay with the buyer.
func (s *CartService) SetBehalfOfUser(ctx context.Context, cartID, recipientID uuid.UUID) (*models.Order, error) {
	ctx, span := startSpan(ctx, "cart.set_behalf_of",
		attribute.String("order.id", cartID.String()),
		attribute.String("recipient.id", recipientID.String()),
	)

	var order *models.Order
	err := s.store.InTx(ctx, func(tx StoreTx) error {
		locked, err := tx.LockOrder(ctx, cartID)
		if err != nil {
			return err
		}
		if err := locked.RequireOpen("set recipient of"); err != nil {
			return err
		}

		locked.SetBehalfOf(recipientID)
		locked.Touch(s.clock.Now())
		if err := tx.UpdateOrder(ctx, locked); err != nil {
			return err
		}
		order = locked
		return nil
	})
	finishSpan(span, err)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Cancel releases every hold of an open cart and marks it cancelled. The
// items are kept for the record.
func (s *CartService) Cancel(ctx context.Context, cartID uuid.UUID) (*models.Order, error) {
	ctx, span := startSpan(ctx, "cart.cancel", attribute.String("order.id", cartID.String()))

	var (
		order *models.Order
		items []*models.OrderItem
	)
	err := s.store.InTx(ctx, func(tx StoreTx) error {
		locked, err := tx.LockOrder(ctx, cartID)
		if err != nil {
			return err
		}
		if err := locked.RequireOpen("cancel"); err != nil {
			return err
		}

		items, err = releaseHolds(ctx, tx, locked, s.clock.Now())
		if err != nil {
			return err
		}

		if err := locked.TransitionTo(models.OrderCancelled, s.clock.Now()); err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, locked); err != nil {
			return err
		}
		order = locked
		return nil
	})
	finishSpan(span, err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("cart cancelled", zap.String("order_id", cartID.String()))
	publish(ctx, s.events, s.logger, models.NewOrderEvent(models.EventCartCancelled, order, items, s.clock.Now()))
	return order, nil
}

// releaseHolds returns every held unit of a locked order to its ledger row.
// Rows are locked in ticket-type order.
func releaseHolds(ctx context.Context, tx StoreTx, order *models.Order, now time.Time) ([]*models.OrderItem, error) {
	items, err := tx.ListOrderItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return items, nil
	}

	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.TicketTypeID)
	}
	ledgers, err := tx.LockLedgers(ctx, ids)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		if err := ledgers[item.TicketTypeID].Release(item.Quantity); err != nil {
			return nil, err
		}
	}
	for _, id := range models.SortIDs(ids) {
		ledgers[id].UpdatedAt = now
		if err := tx.UpdateLedger(ctx, ledgers[id]); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// publish delivers an event after commit. Delivery failures are logged and
// never undo the committed transition.
func publish(ctx context.Context, events EventPublisher, logger *zap.Logger, event models.DomainEvent) {
	if events == nil {
		return
	}
	if err := events.Publish(ctx, event); err != nil {
		logger.Warn("failed to publish event",
			zap.String("type", string(event.Type)),
			zap.String("order_id", event.OrderID.String()),
			zap.Error(err),
		)
	}
}
