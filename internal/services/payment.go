package services

import (
	"context"
	"fmt"
	"time"

	"event-ticketing-engine/internal/clock"
	"event-ticketing-engine/internal/models"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// PaymentService records gateway results against orders and completes
// them once they are paid in full. It never talks to a gateway itself.
type PaymentService struct {
	store  Store
	clock  clock.Clock
	events EventPublisher
	logger *zap.Logger
}

// NewPaymentService creates a new payment service. events may be nil.
func NewPaymentService(store Store, clk clock.Clock, events EventPublisher, logger *zap.Logger) *PaymentService {
	return &PaymentService{
		store:  store,
		clock:  clk,
		events: events,
		logger: logger,
	}
}

// ApplyPayment records result against an open order. When the successful
// payments cover the order total, every held unit is committed as sold and
// the order becomes paid. Replaying a provider reference already recorded
// for the order returns the earlier outcome without side effects.
//
// A ledger commit failure is returned as a *models.ReconciliationError and
// must not be retried.
func (s *PaymentService) ApplyPayment(ctx context.Context, orderID uuid.UUID, result models.PaymentResult) (*models.PaymentApplication, error) {
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidInput, err)
	}

	ctx, span := startSpan(ctx, "payment.apply",
		attribute.String("order.id", orderID.String()),
		attribute.String("payment.reference", result.ProviderReference),
		attribute.Int64("payment.amount_cents", result.AmountCents),
		attribute.String("payment.outcome", string(result.Outcome)),
	)

	var (
		app   *models.PaymentApplication
		items []*models.OrderItem
	)
	err := s.store.InTx(ctx, func(tx StoreTx) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		payment := models.NewPayment(orderID, result, now)

		payments, err := tx.ListPayments(ctx, orderID)
		if err != nil {
			return err
		}
		items, err = tx.ListOrderItems(ctx, orderID)
		if err != nil {
			return err
		}
		total := models.CalculateTotal(items)

		for _, prior := range payments {
			if prior.ProviderReference == payment.ProviderReference {
				app = &models.PaymentApplication{
					Order:      order,
					Payment:    prior,
					PaidCents:  models.SumSucceeded(payments),
					TotalCents: total,
					Duplicate:  true,
					Completed:  order.IsPaid(),
				}
				return nil
			}
		}

		if err := order.RequireOpen("apply payment to"); err != nil {
			return err
		}
		if len(items) == 0 {
			return &models.StateError{OrderID: order.ID, Status: order.Status, Operation: "apply payment to empty"}
		}

		inserted, err := tx.InsertPayment(ctx, payment)
		if err != nil {
			return err
		}
		if !inserted {
			// Inserts are serialized by the order lock
			return fmt.Errorf("%w: payment %q recorded concurrently", models.ErrTransientStore, payment.ProviderReference)
		}

		paid := models.SumSucceeded(append(payments, payment))
		app = &models.PaymentApplication{
			Order:      order,
			Payment:    payment,
			PaidCents:  paid,
			TotalCents: total,
		}

		if payment.IsSucceeded() && paid >= total {
			if err := s.commitSale(ctx, tx, order, items, payment, now); err != nil {
				return err
			}
			if err := order.TransitionTo(models.OrderPaid, now); err != nil {
				return err
			}
			app.Completed = true
		} else {
			order.Touch(now)
		}

		return tx.UpdateOrder(ctx, order)
	})
	finishSpan(span, err)
	if err != nil {
		return nil, err
	}

	if app.Duplicate {
		s.logger.Info("duplicate payment result ignored",
			zap.String("order_id", orderID.String()),
			zap.String("provider_reference", result.ProviderReference),
		)
		return app, nil
	}

	s.logger.Info("payment recorded",
		zap.String("order_id", orderID.String()),
		zap.String("provider_reference", app.Payment.ProviderReference),
		zap.String("outcome", string(app.Payment.Outcome)),
		zap.Int64("paid_cents", app.PaidCents),
		zap.Int64("total_cents", app.TotalCents),
		zap.Bool("completed", app.Completed),
	)
	if app.Completed {
		publish(ctx, s.events, s.logger, models.NewOrderEvent(models.EventOrderPaid, app.Order, items, s.clock.Now()))
	}
	return app, nil
}

// commitSale converts the holds of every item to sales
func (s *PaymentService) commitSale(ctx context.Context, tx StoreTx, order *models.Order, items []*models.OrderItem, payment *models.Payment, now time.Time) error {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.TicketTypeID)
	}
	ledgers, err := tx.LockLedgers(ctx, ids)
	if err != nil {
		return err
	}

	for _, item := range items {
		if err := ledgers[item.TicketTypeID].CommitSale(item.Quantity); err != nil {
			recErr := &models.ReconciliationError{
				OrderID:           order.ID,
				TicketTypeID:      item.TicketTypeID,
				ProviderReference: payment.ProviderReference,
				Err:               err,
			}
			s.logger.Error("payment needs manual reconciliation",
				zap.String("order_id", order.ID.String()),
				zap.String("ticket_type_id", item.TicketTypeID.String()),
				zap.String("provider_reference", payment.ProviderReference),
				zap.Int64("amount_cents", payment.AmountCents),
				zap.Int("quantity", item.Quantity),
				zap.Error(err),
			)
			return recErr
		}
	}

	for _, id := range models.SortIDs(ids) {
		ledgers[id].UpdatedAt = now
		if err := tx.UpdateLedger(ctx, ledgers[id]); err != nil {
			return err
		}
	}
	return nil
}
