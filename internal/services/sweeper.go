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

const defaultSweepBatchSize = 100

// SweepResult counts what one SweepExpired call did
type SweepResult struct {
	Examined int `json:"examined"`
	Expired  int `json:"expired"`
	Skipped  int `json:"skipped"` // paid, cancelled or touched since listed
	Failed   int `json:"failed"`
}

// Sweeper expires open carts that have not been touched for longer than
// the cart TTL, releasing their holds.
type Sweeper struct {
	store        Store
	clock        clock.Clock
	events       EventPublisher
	availability AvailabilityInvalidator
	logger       *zap.Logger
	batchSize    int
}

// NewSweeper creates a new sweeper. events may be nil.
func NewSweeper(store Store, clk clock.Clock, events EventPublisher, logger *zap.Logger, batchSize int) *Sweeper {
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}

	return &Sweeper{
		store:     store,
		clock:     clk,
		events:    events,
		logger:    logger,
		batchSize: batchSize,
	}
}

// WithAvailability makes the sweeper drop cached availability for the
// ticket types of every cart it expires.
func (s *Sweeper) WithAvailability(availability AvailabilityInvalidator) *Sweeper {
	s.availability = availability
	return s
}

// SweepExpired expires every open cart last mutated more than ttl before
// now. Each cart is handled in its own transaction and re-checked under
// its lock, so concurrent sweepers and payments are safe. Failures on one
// cart do not stop the sweep; the first is returned with the counts.
func (s *Sweeper) SweepExpired(ctx context.Context, ttl time.Duration, now time.Time) (SweepResult, error) {
	ctx, span := startSpan(ctx, "sweeper.sweep_expired", attribute.String("cart.ttl", ttl.String()))

	var (
		result   SweepResult
		firstErr error
	)
	cutoff := now.Add(-ttl)
	var after *StaleCartCursor

	for {
		stale, err := s.store.ListStaleCarts(ctx, cutoff, after, s.batchSize)
		if err != nil {
			finishSpan(span, err)
			return result, fmt.Errorf("failed to list stale carts: %w", err)
		}

		for _, cart := range stale {
			result.Examined++

			expired, err := s.expireCart(ctx, cart, ttl, now)
			switch {
			case err != nil:
				result.Failed++
				if firstErr == nil {
					firstErr = err
				}
				s.logger.Error("failed to expire cart",
					zap.String("order_id", cart.ID.String()),
					zap.Error(err),
				)
			case expired:
				result.Expired++
			default:
				result.Skipped++
			}
		}

		if len(stale) < s.batchSize {
			break
		}
		// Failed carts stay stale, so the next page starts past them.
		after = CursorAfter(stale[len(stale)-1])
	}

	span.SetAttributes(
		attribute.Int("sweep.examined", result.Examined),
		attribute.Int("sweep.expired", result.Expired),
		attribute.Int("sweep.failed", result.Failed),
	)
	finishSpan(span, firstErr)

	if result.Examined > 0 {
		s.logger.Info("expired carts swept",
			zap.Int("examined", result.Examined),
			zap.Int("expired", result.Expired),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed),
		)
	}
	return result, firstErr
}

// expireCart reports false when the cart changed since it was listed
func (s *Sweeper) expireCart(ctx context.Context, listed *models.Order, ttl time.Duration, now time.Time) (bool, error) {
	var (
		order *models.Order
		items []*models.OrderItem
	)
	err := s.store.InTx(ctx, func(tx StoreTx) error {
		locked, err := tx.LockOrder(ctx, listed.ID)
		if err != nil {
			return err
		}
		if !locked.IsStale(ttl, now) {
			return nil
		}

		items, err = releaseHolds(ctx, tx, locked, now)
		if err != nil {
			return err
		}
		if err := locked.TransitionTo(models.OrderExpired, now); err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, locked); err != nil {
			return err
		}
		order = locked
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrOrderNotFound) {
			return false, nil
		}
		return false, err
	}
	if order == nil {
		return false, nil
	}

	if s.availability != nil {
		ids := make([]uuid.UUID, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.TicketTypeID)
		}
		s.availability.Invalidate(ctx, ids...)
	}
	publish(ctx, s.events, s.logger, models.NewOrderEvent(models.EventCartExpired, order, items, now))
	return true, nil
}

// Run sweeps on every tick of interval until ctx is done
func (s *Sweeper) Run(ctx context.Context, interval, ttl time.Duration) error {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("cart sweeper started",
		zap.Duration("interval", interval),
		zap.Duration("ttl", ttl),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("cart sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.SweepExpired(ctx, ttl, s.clock.Now()); err != nil {
				s.logger.Warn("cart sweep incomplete", zap.Error(err), zap.Bool("retryable", models.IsRetryable(err)))
			}
		}
	}
}
