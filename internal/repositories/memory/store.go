// Package memory is an in-process implementation of the engine's store.
// It mirrors the Postgres store's locking: exclusive row locks held until
// the transaction ends, writes buffered and applied on commit.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"event-ticketing-engine/internal/models"
	"event-ticketing-engine/internal/services"

	"github.com/google/uuid"
)

const defaultLockTimeout = 5 * time.Second

// Store keeps committed state in maps guarded by mu. Row locks live in a
// separate table so a transaction can hold them across several calls.
type Store struct {
	mu           sync.RWMutex
	ticketTypes  map[uuid.UUID]*models.TicketType
	feeSchedules map[uuid.UUID]*models.FeeSchedule
	ledgers      map[uuid.UUID]*models.LedgerEntry
	orders       map[uuid.UUID]*models.Order
	items        map[uuid.UUID]map[uuid.UUID]*models.OrderItem // order -> ticket type -> item
	payments     map[uuid.UUID][]*models.Payment

	locksMu     sync.Mutex
	locks       map[string]chan struct{}
	lockTimeout time.Duration
}

// Option configures a Store
type Option func(*Store)

// WithLockTimeout bounds how long a transaction waits for a row lock
// before failing with a transient error.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// NewStore creates an empty store
func NewStore(opts ...Option) *Store {
	s := &Store{
		ticketTypes:  make(map[uuid.UUID]*models.TicketType),
		feeSchedules: make(map[uuid.UUID]*models.FeeSchedule),
		ledgers:      make(map[uuid.UUID]*models.LedgerEntry),
		orders:       make(map[uuid.UUID]*models.Order),
		items:        make(map[uuid.UUID]map[uuid.UUID]*models.OrderItem),
		payments:     make(map[uuid.UUID][]*models.Payment),
		locks:        make(map[string]chan struct{}),
		lockTimeout:  defaultLockTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ services.Store = (*Store)(nil)

// InTx runs fn in a transaction
func (s *Store) InTx(ctx context.Context, fn func(tx services.StoreTx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", models.ErrTransientStore, err)
	}

	tx := newTx(s)
	defer tx.releaseLocks()

	if err := fn(tx); err != nil {
		return err
	}

	tx.commit()
	return nil
}

// ListStaleCarts returns open carts last mutated before cutoff, ordered by
// (UpdatedAt, ID) and starting past after when it is set
func (s *Store) ListStaleCarts(ctx context.Context, cutoff time.Time, after *services.StaleCartCursor, limit int) ([]*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stale []*models.Order
	for _, order := range s.orders {
		if !order.IsOpen() || !order.UpdatedAt.Before(cutoff) {
			continue
		}
		if after != nil && !cursorLess(after.UpdatedAt, after.ID, order.UpdatedAt, order.ID) {
			continue
		}
		stale = append(stale, copyOrder(order))
	}

	sort.Slice(stale, func(i, j int) bool {
		return cursorLess(stale[i].UpdatedAt, stale[i].ID, stale[j].UpdatedAt, stale[j].ID)
	})
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

// cursorLess orders like Postgres compares (timestamptz, uuid) rows
func cursorLess(at time.Time, id uuid.UUID, bt time.Time, bid uuid.UUID) bool {
	if !at.Equal(bt) {
		return at.Before(bt)
	}
	return bytes.Compare(id[:], bid[:]) < 0
}

// GetTicketType retrieves a ticket type with its tiers
func (s *Store) GetTicketType(ctx context.Context, id uuid.UUID) (*models.TicketType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ticketTypeLocked(id)
}

func (s *Store) ticketTypeLocked(id uuid.UUID) (*models.TicketType, error) {
	tt, ok := s.ticketTypes[id]
	if !ok {
		return nil, models.ErrTicketTypeNotFound
	}
	return copyTicketType(tt), nil
}

// GetFeeSchedule retrieves a fee schedule
func (s *Store) GetFeeSchedule(ctx context.Context, id uuid.UUID) (*models.FeeSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feeScheduleLocked(id)
}

func (s *Store) feeScheduleLocked(id uuid.UUID) (*models.FeeSchedule, error) {
	fs, ok := s.feeSchedules[id]
	if !ok {
		return nil, models.ErrFeeScheduleNotFound
	}
	c := *fs
	return &c, nil
}

// GetLedger retrieves the ledger row of a ticket type
func (s *Store) GetLedger(ctx context.Context, ticketTypeID uuid.UUID) (*models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledgerLocked(ticketTypeID)
}

func (s *Store) ledgerLocked(ticketTypeID uuid.UUID) (*models.LedgerEntry, error) {
	entry, ok := s.ledgers[ticketTypeID]
	if !ok {
		return nil, models.ErrTicketTypeNotFound
	}
	c := *entry
	return &c, nil
}

// GetOrder retrieves an order
func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orderLocked(id)
}

func (s *Store) orderLocked(id uuid.UUID) (*models.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	return copyOrder(order), nil
}

// FindOpenCart returns the owner's open cart
func (s *Store) FindOpenCart(ctx context.Context, userID uuid.UUID) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.openCartLocked(userID)
}

func (s *Store) openCartLocked(userID uuid.UUID) (*models.Order, error) {
	for _, order := range s.orders {
		if order.UserID == userID && order.IsOpen() {
			return copyOrder(order), nil
		}
	}
	return nil, models.ErrOrderNotFound
}

// ListOrderItems returns the items of an order ordered by creation
func (s *Store) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]*models.OrderItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedItems(s.items[orderID]), nil
}

// ListPayments returns the payments recorded for an order
func (s *Store) ListPayments(ctx context.Context, orderID uuid.UUID) ([]*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payments := make([]*models.Payment, 0, len(s.payments[orderID]))
	for _, p := range s.payments[orderID] {
		c := *p
		payments = append(payments, &c)
	}
	return payments, nil
}

// acquire takes the row lock for key, waiting up to the lock timeout
func (s *Store) acquire(ctx context.Context, key string) error {
	s.locksMu.Lock()
	lock, ok := s.locks[key]
	if !ok {
		lock = make(chan struct{}, 1)
		s.locks[key] = lock
	}
	s.locksMu.Unlock()

	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()

	select {
	case lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for lock on %s: %w", models.ErrTransientStore, key, ctx.Err())
	case <-timer.C:
		return fmt.Errorf("%w: lock timeout on %s", models.ErrTransientStore, key)
	}
}

func (s *Store) release(key string) {
	s.locksMu.Lock()
	lock := s.locks[key]
	s.locksMu.Unlock()
	<-lock
}

func sortedItems(byType map[uuid.UUID]*models.OrderItem) []*models.OrderItem {
	items := make([]*models.OrderItem, 0, len(byType))
	for _, item := range byType {
		c := *item
		items = append(items, &c)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].TicketTypeID.String() < items[j].TicketTypeID.String()
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items
}

func copyOrder(o *models.Order) *models.Order {
	c := *o
	if o.OnBehalfOfUserID != nil {
		id := *o.OnBehalfOfUserID
		c.OnBehalfOfUserID = &id
	}
	if o.PaidAt != nil {
		t := *o.PaidAt
		c.PaidAt = &t
	}
	return &c
}

func copyTicketType(tt *models.TicketType) *models.TicketType {
	c := *tt
	if tt.FeeScheduleID != nil {
		id := *tt.FeeScheduleID
		c.FeeScheduleID = &id
	}
	c.Tiers = append([]models.PricingTier(nil), tt.Tiers...)
	return &c
}
