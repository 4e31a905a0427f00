package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"event-ticketing-engine/internal/database"
	"event-ticketing-engine/internal/models"
	"event-ticketing-engine/internal/services"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// setupTestDB connects to TEST_DATABASE_URL, applies migrations and
// empties the engine tables. Tests are skipped when it is unset.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sql.Open("postgres", dbURL)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	if err := db.Ping(); err != nil {
		t.Skipf("Failed to ping test database: %v", err)
	}

	ctx := context.Background()
	require.NoError(t, database.NewMigrator(db, zap.NewNop()).RunMigrations(ctx))

	_, err = db.ExecContext(ctx, `TRUNCATE payments, order_items, orders, inventory_ledger, pricing_tiers, ticket_types, fee_schedules CASCADE`)
	require.NoError(t, err)

	return db
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func provision(t *testing.T, store *Store, capacity int) *models.TicketType {
	t.Helper()

	fees := &models.FeeSchedule{ID: uuid.New(), Name: "standard", FlatCents: 100, PercentBasisPoints: 500, Base: models.FeeBaseDiscounted}
	tt := &models.TicketType{
		ID:             uuid.New(),
		EventID:        uuid.New(),
		Name:           "General Admission",
		Capacity:       capacity,
		Status:         models.TicketTypePublished,
		LimitPerPerson: 4,
		FeeScheduleID:  &fees.ID,
		Tiers: []models.PricingTier{
			{ID: uuid.New(), Name: "Regular", StartsAt: testNow.Add(-time.Hour), EndsAt: testNow.Add(time.Hour), PriceCents: 5000},
			{ID: uuid.New(), Name: "Crew", StartsAt: testNow.Add(-time.Hour), EndsAt: testNow.Add(time.Hour), DiscountCode: "CREW", DiscountPercent: 50},
		},
	}

	err := store.InTx(context.Background(), func(tx services.StoreTx) error {
		if err := tx.SaveFeeSchedule(context.Background(), fees); err != nil {
			return err
		}
		if err := tx.SaveTicketType(context.Background(), tt); err != nil {
			return err
		}
		return tx.CreateLedger(context.Background(), &models.LedgerEntry{TicketTypeID: tt.ID, Total: capacity, UpdatedAt: testNow})
	})
	require.NoError(t, err)
	return tt
}

func TestStore_TicketTypeRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db, time.Second)
	ctx := context.Background()

	tt := provision(t, store, 100)

	got, err := store.GetTicketType(ctx, tt.ID)
	require.NoError(t, err)
	assert.Equal(t, tt.Name, got.Name)
	assert.Equal(t, 4, got.LimitPerPerson)
	require.NotNil(t, got.FeeScheduleID)
	assert.Equal(t, *tt.FeeScheduleID, *got.FeeScheduleID)
	require.Len(t, got.Tiers, 2)
	for _, tier := range got.Tiers {
		if tier.Name == "Crew" {
			assert.Equal(t, "CREW", tier.DiscountCode)
			assert.Equal(t, 50, tier.DiscountPercent)
			assert.Equal(t, tt.ID, tier.TicketTypeID)
		}
	}

	fees, err := store.GetFeeSchedule(ctx, *tt.FeeScheduleID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), fees.PercentBasisPoints)

	_, err = store.GetTicketType(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrTicketTypeNotFound)
	_, err = store.GetFeeSchedule(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrFeeScheduleNotFound)
}

func TestStore_LedgerLockAndUpdate(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db, time.Second)
	ctx := context.Background()

	first := provision(t, store, 10)
	second := provision(t, store, 5)

	err := store.InTx(ctx, func(tx services.StoreTx) error {
		entries, err := tx.LockLedgers(ctx, []uuid.UUID{second.ID, first.ID})
		if err != nil {
			return err
		}
		if err := entries[first.ID].Hold(4); err != nil {
			return err
		}
		if err := entries[second.ID].Hold(5); err != nil {
			return err
		}
		for _, entry := range entries {
			if err := tx.UpdateLedger(ctx, entry); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	entry, err := store.GetLedger(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, entry.Held)
	assert.Equal(t, 6, entry.Remaining())

	_, err = store.GetLedger(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrTicketTypeNotFound)

	err = store.InTx(ctx, func(tx services.StoreTx) error {
		_, err := tx.LockLedgers(ctx, []uuid.UUID{uuid.New()})
		return err
	})
	assert.ErrorIs(t, err, models.ErrTicketTypeNotFound)
}

func TestStore_CreateLedgerTwice(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db, time.Second)
	ctx := context.Background()

	tt := provision(t, store, 10)
	err := store.InTx(ctx, func(tx services.StoreTx) error {
		return tx.CreateLedger(ctx, &models.LedgerEntry{TicketTypeID: tt.ID, Total: 10, UpdatedAt: testNow})
	})
	assert.ErrorIs(t, err, models.ErrDuplicateEntry)
}

func TestStore_LockTimeoutIsTransient(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db, 100*time.Millisecond)
	ctx := context.Background()
	tt := provision(t, store, 10)

	locked := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = store.InTx(ctx, func(tx services.StoreTx) error {
			if _, err := tx.LockLedgers(ctx, []uuid.UUID{tt.ID}); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()

	<-locked
	err := store.InTx(ctx, func(tx services.StoreTx) error {
		_, err := tx.LockLedgers(ctx, []uuid.UUID{tt.ID})
		return err
	})
	close(release)
	wg.Wait()

	assert.ErrorIs(t, err, models.ErrTransientStore)
	assert.True(t, models.IsRetryable(err))
}

func TestStore_OneOpenCartPerUser(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db, time.Second)
	ctx := context.Background()
	userID := uuid.New()

	create := func() *models.Order {
		var cart *models.Order
		err := store.InTx(ctx, func(tx services.StoreTx) error {
			var err error
			cart, err = tx.CreateCart(ctx, models.NewCart(userID, testNow))
			return err
		})
		require.NoError(t, err)
		return cart
	}

	first := create()
	second := create()
	assert.Equal(t, first.ID, second.ID)

	open, err := store.FindOpenCart(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, open.ID)

	// Once the cart is terminal a new one can be opened
	err = store.InTx(ctx, func(tx services.StoreTx) error {
		order, err := tx.LockOrder(ctx, first.ID)
		if err != nil {
			return err
		}
		if err := order.TransitionTo(models.OrderCancelled, testNow); err != nil {
			return err
		}
		return tx.UpdateOrder(ctx, order)
	})
	require.NoError(t, err)

	third := create()
	assert.NotEqual(t, first.ID, third.ID)
}

func TestStore_OrderItemsAndStaleCarts(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db, time.Second)
	ctx := context.Background()
	tt := provision(t, store, 10)

	var carts []*models.Order
	for i := 0; i < 3; i++ {
		cart := models.NewCart(uuid.New(), testNow.Add(time.Duration(i)*time.Minute))
		err := store.InTx(ctx, func(tx services.StoreTx) error {
			created, err := tx.CreateCart(ctx, cart)
			if err != nil {
				return err
			}
			if _, err := tx.LockOrder(ctx, created.ID); err != nil {
				return err
			}
			return tx.SaveOrderItem(ctx, &models.OrderItem{
				ID:             uuid.New(),
				OrderID:        created.ID,
				TicketTypeID:   tt.ID,
				PricingTierID:  tt.Tiers[0].ID,
				Quantity:       2,
				UnitPriceCents: 5000,
				FeeCents:       350,
				CreatedAt:      cart.CreatedAt,
				UpdatedAt:      cart.UpdatedAt,
			})
		})
		require.NoError(t, err)
		carts = append(carts, cart)
	}

	items, err := store.ListOrderItems(ctx, carts[0].ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(10700), models.CalculateTotal(items))

	stale, err := store.ListStaleCarts(ctx, testNow.Add(90*time.Second), nil, 10)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, carts[0].ID, stale[0].ID, "oldest first")
	assert.Equal(t, carts[1].ID, stale[1].ID)

	limited, err := store.ListStaleCarts(ctx, testNow.Add(time.Hour), nil, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	next, err := store.ListStaleCarts(ctx, testNow.Add(time.Hour), services.CursorAfter(limited[0]), 10)
	require.NoError(t, err)
	require.Len(t, next, 2, "the cursor skips the first page")
	assert.Equal(t, carts[1].ID, next[0].ID)
	assert.Equal(t, carts[2].ID, next[1].ID)

	err = store.InTx(ctx, func(tx services.StoreTx) error {
		if _, err := tx.LockOrder(ctx, carts[0].ID); err != nil {
			return err
		}
		return tx.DeleteOrderItem(ctx, carts[0].ID, tt.ID)
	})
	require.NoError(t, err)

	items, err = store.ListOrderItems(ctx, carts[0].ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestStore_UpdateOrderRedrawsTakenOrderNumber(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db, time.Second)
	ctx := context.Background()

	pay := func(cart *models.Order, number string) *models.Order {
		var paid *models.Order
		err := store.InTx(ctx, func(tx services.StoreTx) error {
			if _, err := tx.CreateCart(ctx, cart); err != nil {
				return err
			}
			order, err := tx.LockOrder(ctx, cart.ID)
			if err != nil {
				return err
			}
			order.OrderNumber = number
			if err := order.TransitionTo(models.OrderPaid, testNow); err != nil {
				return err
			}
			if err := tx.UpdateOrder(ctx, order); err != nil {
				return err
			}
			paid = order
			return nil
		})
		require.NoError(t, err)
		return paid
	}

	first := pay(models.NewCart(uuid.New(), testNow), "ORD-20250601-000001")
	second := pay(models.NewCart(uuid.New(), testNow), "ORD-20250601-000001")

	assert.Equal(t, "ORD-20250601-000001", first.OrderNumber)
	assert.NotEqual(t, first.OrderNumber, second.OrderNumber)
	assert.Regexp(t, `^ORD-20250601-\d{6}$`, second.OrderNumber)

	stored, err := store.GetOrder(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, second.OrderNumber, stored.OrderNumber)
	assert.Equal(t, models.OrderPaid, stored.Status)
}

func TestStore_InsertPaymentIdempotent(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db, time.Second)
	ctx := context.Background()

	cart := models.NewCart(uuid.New(), testNow)
	payment := models.NewPayment(cart.ID, models.PaymentResult{ProviderReference: "ch_1", AmountCents: 4000, Outcome: models.PaymentSucceeded}, testNow)

	var inserted []bool
	for i := 0; i < 2; i++ {
		err := store.InTx(ctx, func(tx services.StoreTx) error {
			if i == 0 {
				if _, err := tx.CreateCart(ctx, cart); err != nil {
					return err
				}
			}
			p := *payment
			p.ID = uuid.New()
			ok, err := tx.InsertPayment(ctx, &p)
			inserted = append(inserted, ok)
			return err
		})
		require.NoError(t, err)
	}
	assert.Equal(t, []bool{true, false}, inserted)

	payments, err := store.ListPayments(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, int64(4000), models.SumSucceeded(payments))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{name: "deadlock", err: &pq.Error{Code: "40P01"}, transient: true},
		{name: "serialization failure", err: &pq.Error{Code: "40001"}, transient: true},
		{name: "lock timeout", err: fmt.Errorf("lock: %w", &pq.Error{Code: "55P03"}), transient: true},
		{name: "connection failure class", err: &pq.Error{Code: "08006"}, transient: true},
		{name: "unique violation", err: &pq.Error{Code: "23505"}},
		{name: "check violation", err: &pq.Error{Code: "23514"}},
		{name: "deadline", err: context.DeadlineExceeded, transient: true},
		{name: "bad connection", err: fmt.Errorf("query: %w", sql.ErrConnDone), transient: true},
		{name: "domain error", err: models.ErrCapacityExceeded},
		{name: "no rows", err: sql.ErrNoRows},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			classified := classifyError(tc.err)
			assert.Equal(t, tc.transient, errors.Is(classified, models.ErrTransientStore))
			assert.ErrorIs(t, classified, tc.err)
		})
	}

	assert.NoError(t, classifyError(nil))
	once := classifyError(&pq.Error{Code: "40P01"})
	assert.Equal(t, once, classifyError(once), "already classified errors are not wrapped twice")
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("other")))
}
