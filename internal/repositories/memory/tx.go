package memory

import (
	"context"
	"fmt"

	"event-ticketing-engine/internal/models"

	"github.com/google/uuid"
)

// tx buffers writes until commit. Reads see the transaction's own writes
// first, then committed state.
type tx struct {
	s *Store

	held     map[string]bool
	heldKeys []string

	ticketTypes  map[uuid.UUID]*models.TicketType
	feeSchedules map[uuid.UUID]*models.FeeSchedule
	ledgers      map[uuid.UUID]*models.LedgerEntry
	orders       map[uuid.UUID]*models.Order
	items        map[uuid.UUID]map[uuid.UUID]*models.OrderItem // full item set of every touched order
	payments     []*models.Payment
}

func newTx(s *Store) *tx {
	return &tx{
		s:            s,
		held:         make(map[string]bool),
		ticketTypes:  make(map[uuid.UUID]*models.TicketType),
		feeSchedules: make(map[uuid.UUID]*models.FeeSchedule),
		ledgers:      make(map[uuid.UUID]*models.LedgerEntry),
		orders:       make(map[uuid.UUID]*models.Order),
		items:        make(map[uuid.UUID]map[uuid.UUID]*models.OrderItem),
	}
}

func (t *tx) lock(ctx context.Context, key string) error {
	if t.held[key] {
		return nil
	}
	if err := t.s.acquire(ctx, key); err != nil {
		return err
	}
	t.held[key] = true
	t.heldKeys = append(t.heldKeys, key)
	return nil
}

func (t *tx) releaseLocks() {
	for i := len(t.heldKeys) - 1; i >= 0; i-- {
		t.s.release(t.heldKeys[i])
	}
	t.heldKeys = nil
	t.held = nil
}

func (t *tx) commit() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	for id, tt := range t.ticketTypes {
		t.s.ticketTypes[id] = tt
	}
	for id, fs := range t.feeSchedules {
		t.s.feeSchedules[id] = fs
	}
	for id, entry := range t.ledgers {
		t.s.ledgers[id] = entry
	}
	for id, order := range t.orders {
		t.s.orders[id] = order
	}
	for orderID, byType := range t.items {
		t.s.items[orderID] = byType
	}
	for _, p := range t.payments {
		t.s.payments[p.OrderID] = append(t.s.payments[p.OrderID], p)
	}
}

func orderKey(id uuid.UUID) string  { return "order:" + id.String() }
func ledgerKey(id uuid.UUID) string { return "ledger:" + id.String() }
func cartKey(id uuid.UUID) string   { return "cart:" + id.String() }

// Reads

func (t *tx) GetTicketType(ctx context.Context, id uuid.UUID) (*models.TicketType, error) {
	if tt, ok := t.ticketTypes[id]; ok {
		return copyTicketType(tt), nil
	}
	return t.s.GetTicketType(ctx, id)
}

func (t *tx) GetFeeSchedule(ctx context.Context, id uuid.UUID) (*models.FeeSchedule, error) {
	if fs, ok := t.feeSchedules[id]; ok {
		c := *fs
		return &c, nil
	}
	return t.s.GetFeeSchedule(ctx, id)
}

func (t *tx) GetLedger(ctx context.Context, ticketTypeID uuid.UUID) (*models.LedgerEntry, error) {
	if entry, ok := t.ledgers[ticketTypeID]; ok {
		c := *entry
		return &c, nil
	}
	return t.s.GetLedger(ctx, ticketTypeID)
}

func (t *tx) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if order, ok := t.orders[id]; ok {
		return copyOrder(order), nil
	}
	return t.s.GetOrder(ctx, id)
}

func (t *tx) FindOpenCart(ctx context.Context, userID uuid.UUID) (*models.Order, error) {
	for _, order := range t.orders {
		if order.UserID == userID && order.IsOpen() {
			return copyOrder(order), nil
		}
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for id, order := range t.s.orders {
		if order.UserID != userID || !order.IsOpen() {
			continue
		}
		// Closed by this transaction but not yet committed
		if pending, ok := t.orders[id]; ok && !pending.IsOpen() {
			continue
		}
		return copyOrder(order), nil
	}
	return nil, models.ErrOrderNotFound
}

func (t *tx) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]*models.OrderItem, error) {
	if byType, ok := t.items[orderID]; ok {
		return sortedItems(byType), nil
	}
	return t.s.ListOrderItems(ctx, orderID)
}

func (t *tx) ListPayments(ctx context.Context, orderID uuid.UUID) ([]*models.Payment, error) {
	payments, err := t.s.ListPayments(ctx, orderID)
	if err != nil {
		return nil, err
	}
	for _, p := range t.payments {
		if p.OrderID == orderID {
			c := *p
			payments = append(payments, &c)
		}
	}
	return payments, nil
}

// Locks and writes

func (t *tx) LockOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if err := t.lock(ctx, orderKey(id)); err != nil {
		return nil, err
	}
	return t.GetOrder(ctx, id)
}

func (t *tx) LockLedgers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.LedgerEntry, error) {
	entries := make(map[uuid.UUID]*models.LedgerEntry, len(ids))
	for _, id := range models.SortIDs(ids) {
		if err := t.lock(ctx, ledgerKey(id)); err != nil {
			return nil, err
		}
		entry, err := t.GetLedger(ctx, id)
		if err != nil {
			return nil, err
		}
		entries[id] = entry
	}
	return entries, nil
}

func (t *tx) UpdateLedger(ctx context.Context, entry *models.LedgerEntry) error {
	if !t.held[ledgerKey(entry.TicketTypeID)] {
		return fmt.Errorf("ledger row %s updated without lock", entry.TicketTypeID)
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	c := *entry
	t.ledgers[entry.TicketTypeID] = &c
	return nil
}

func (t *tx) CreateLedger(ctx context.Context, entry *models.LedgerEntry) error {
	if err := t.lock(ctx, ledgerKey(entry.TicketTypeID)); err != nil {
		return err
	}
	if _, err := t.GetLedger(ctx, entry.TicketTypeID); err == nil {
		return fmt.Errorf("ledger for ticket type %s: %w", entry.TicketTypeID, models.ErrDuplicateEntry)
	}
	return t.UpdateLedger(ctx, entry)
}

func (t *tx) CreateCart(ctx context.Context, cart *models.Order) (*models.Order, error) {
	// Serializes cart creation per owner, like the partial unique index
	if err := t.lock(ctx, cartKey(cart.UserID)); err != nil {
		return nil, err
	}
	if existing, err := t.FindOpenCart(ctx, cart.UserID); err == nil {
		return existing, nil
	}
	if err := t.lock(ctx, orderKey(cart.ID)); err != nil {
		return nil, err
	}
	t.orders[cart.ID] = copyOrder(cart)
	t.items[cart.ID] = make(map[uuid.UUID]*models.OrderItem)
	return copyOrder(cart), nil
}

func (t *tx) UpdateOrder(ctx context.Context, order *models.Order) error {
	if !t.held[orderKey(order.ID)] {
		return fmt.Errorf("order %s updated without lock", order.ID)
	}
	if _, err := t.GetOrder(ctx, order.ID); err != nil {
		return err
	}
	if order.OrderNumber != "" {
		if err := t.claimOrderNumber(order); err != nil {
			return err
		}
	}
	t.orders[order.ID] = copyOrder(order)
	return nil
}

// claimOrderNumber redraws order.OrderNumber while another order holds it
func (t *tx) claimOrderNumber(order *models.Order) error {
	for i := 0; i < models.MaxOrderNumberAttempts; i++ {
		if !t.orderNumberTaken(order.OrderNumber, order.ID) {
			return nil
		}
		order.RenewOrderNumber()
	}
	return fmt.Errorf("%w: no free order number after %d attempts: %w", models.ErrTransientStore, models.MaxOrderNumberAttempts, models.ErrDuplicateEntry)
}

func (t *tx) orderNumberTaken(number string, self uuid.UUID) bool {
	for id, o := range t.orders {
		if id != self && o.OrderNumber == number {
			return true
		}
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for id, o := range t.s.orders {
		if id == self || o.OrderNumber != number {
			continue
		}
		if pending, ok := t.orders[id]; ok && pending.OrderNumber != number {
			continue
		}
		return true
	}
	return false
}

func (t *tx) orderItems(orderID uuid.UUID) map[uuid.UUID]*models.OrderItem {
	if byType, ok := t.items[orderID]; ok {
		return byType
	}

	t.s.mu.RLock()
	byType := make(map[uuid.UUID]*models.OrderItem, len(t.s.items[orderID]))
	for ticketTypeID, item := range t.s.items[orderID] {
		c := *item
		byType[ticketTypeID] = &c
	}
	t.s.mu.RUnlock()

	t.items[orderID] = byType
	return byType
}

func (t *tx) SaveOrderItem(ctx context.Context, item *models.OrderItem) error {
	if !t.held[orderKey(item.OrderID)] {
		return fmt.Errorf("items of order %s changed without lock", item.OrderID)
	}
	c := *item
	t.orderItems(item.OrderID)[item.TicketTypeID] = &c
	return nil
}

func (t *tx) DeleteOrderItem(ctx context.Context, orderID, ticketTypeID uuid.UUID) error {
	if !t.held[orderKey(orderID)] {
		return fmt.Errorf("items of order %s changed without lock", orderID)
	}
	delete(t.orderItems(orderID), ticketTypeID)
	return nil
}

func (t *tx) InsertPayment(ctx context.Context, payment *models.Payment) (bool, error) {
	existing, err := t.ListPayments(ctx, payment.OrderID)
	if err != nil {
		return false, err
	}
	for _, p := range existing {
		if p.ProviderReference == payment.ProviderReference {
			return false, nil
		}
	}
	c := *payment
	t.payments = append(t.payments, &c)
	return true, nil
}

func (t *tx) SaveTicketType(ctx context.Context, tt *models.TicketType) error {
	if err := tt.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	c := copyTicketType(tt)
	for i := range c.Tiers {
		c.Tiers[i].TicketTypeID = c.ID
	}
	t.ticketTypes[tt.ID] = c
	return nil
}

func (t *tx) SaveFeeSchedule(ctx context.Context, fs *models.FeeSchedule) error {
	if err := fs.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	c := *fs
	t.feeSchedules[fs.ID] = &c
	return nil
}
