package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"event-ticketing-engine/internal/clock"
	"event-ticketing-engine/internal/models"
	"event-ticketing-engine/internal/repositories/memory"
	"event-ticketing-engine/internal/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// recordingPublisher collects published events
type recordingPublisher struct {
	mu     sync.Mutex
	events []models.DomainEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event models.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) ofType(t models.EventType) []models.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	var matched []models.DomainEvent
	for _, e := range p.events {
		if e.Type == t {
			matched = append(matched, e)
		}
	}
	return matched
}

type fixture struct {
	store    *memory.Store
	clock    *clock.FakeClock
	events   *recordingPublisher
	logs     *observer.ObservedLogs
	ledger   *services.InventoryLedger
	pricing  *services.PricingResolver
	carts    *services.CartService
	payments *services.PaymentService
	sweeper  *services.Sweeper
}

func newFixture(t *testing.T, defaultFees *models.FeeSchedule) *fixture {
	t.Helper()

	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	f := &fixture{
		store:  memory.NewStore(memory.WithLockTimeout(2 * time.Second)),
		clock:  clock.Fake(epoch),
		events: &recordingPublisher{},
		logs:   logs,
	}
	f.ledger = services.NewInventoryLedger(f.store, f.clock, logger)
	f.pricing = services.NewPricingResolver(f.store, defaultFees, logger)
	f.carts = services.NewCartService(f.store, f.pricing, f.clock, f.events, logger)
	f.payments = services.NewPaymentService(f.store, f.clock, f.events, logger)
	f.sweeper = services.NewSweeper(f.store, f.clock, f.events, logger, 2)
	return f
}

// tier returns an unrestricted tier active for a day around epoch
func tier(name string, priceCents int64) models.PricingTier {
	return models.PricingTier{
		ID:         uuid.New(),
		Name:       name,
		StartsAt:   epoch.Add(-12 * time.Hour),
		EndsAt:     epoch.Add(12 * time.Hour),
		PriceCents: priceCents,
	}
}

func (f *fixture) provision(t *testing.T, capacity int, tiers ...models.PricingTier) *models.TicketType {
	t.Helper()

	tt := &models.TicketType{
		ID:       uuid.New(),
		EventID:  uuid.New(),
		Name:     "General Admission",
		Capacity: capacity,
		Status:   models.TicketTypePublished,
		Tiers:    tiers,
	}
	require.NoError(t, f.ledger.Provision(context.Background(), tt))
	return tt
}

func (f *fixture) cart(t *testing.T) *models.Order {
	t.Helper()

	cart, err := f.carts.FindOrCreateCart(context.Background(), uuid.New())
	require.NoError(t, err)
	return cart
}

func (f *fixture) entry(t *testing.T, ticketTypeID uuid.UUID) *models.LedgerEntry {
	t.Helper()

	entry, err := f.ledger.Entry(context.Background(), ticketTypeID)
	require.NoError(t, err)
	return entry
}

func line(ticketTypeID uuid.UUID, qty int) models.UpdateOrderItem {
	return models.UpdateOrderItem{TicketTypeID: ticketTypeID, Quantity: qty}
}
