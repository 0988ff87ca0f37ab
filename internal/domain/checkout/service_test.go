package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livedrop/livedrop/internal/domain/purchase"
	"github.com/livedrop/livedrop/pkg/retry"
)

// --- Mock implementations ---

// memoryInventory is an in-memory Inventory with the same all-or-nothing
// semantics as the Postgres implementation: every line is validated against
// current stock before any decrement is applied.
type memoryInventory struct {
	mu       sync.Mutex
	title    map[string]string
	price    map[string]decimal.Decimal
	stock    map[string]int
	reserves int
}

func newMemoryInventory() *memoryInventory {
	return &memoryInventory{
		title: make(map[string]string),
		price: make(map[string]decimal.Decimal),
		stock: make(map[string]int),
	}
}

func (m *memoryInventory) add(id, title string, price decimal.Decimal, stock int) {
	m.title[id] = title
	m.price[id] = price
	m.stock[id] = stock
}

func (m *memoryInventory) stockOf(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[id]
}

func (m *memoryInventory) Reserve(_ context.Context, lines []Line) ([]ReservedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserves++

	// Validate every line before touching any stock.
	for _, line := range lines {
		avail, ok := m.stock[line.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: line.ProductID}
		}
		if avail < line.Quantity {
			return nil, &InsufficientStockError{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: avail,
			}
		}
	}

	reserved := make([]ReservedItem, len(lines))
	for i, line := range lines {
		m.stock[line.ProductID] -= line.Quantity
		reserved[i] = ReservedItem{
			ProductID: line.ProductID,
			Title:     m.title[line.ProductID],
			Price:     m.price[line.ProductID],
			Quantity:  line.Quantity,
		}
	}
	return reserved, nil
}

// conflictingInventory fails the first n Reserve calls with ErrConflict, then
// delegates. It simulates an optimistic-concurrency loser that wins on retry.
type conflictingInventory struct {
	inner     Inventory
	mu        sync.Mutex
	conflicts int
	attempts  int
}

func (c *conflictingInventory) Reserve(ctx context.Context, lines []Line) ([]ReservedItem, error) {
	c.mu.Lock()
	c.attempts++
	fail := c.conflicts > 0
	if fail {
		c.conflicts--
	}
	c.mu.Unlock()

	if fail {
		return nil, errors.Wrap(ErrConflict, "concurrent update of products")
	}
	return c.inner.Reserve(ctx, lines)
}

type mockPurchaseRepo struct {
	mu      sync.Mutex
	records []*purchase.Record
	err     error
}

func (m *mockPurchaseRepo) Create(_ context.Context, rec *purchase.Record) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.CreatedAt = time.Now().UTC()
	m.records = append(m.records, rec)
	return nil
}

func (m *mockPurchaseRepo) Recent(_ context.Context, _ int) ([]purchase.FeedEntry, error) {
	return nil, nil
}

func (m *mockPurchaseRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// --- Helpers ---

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestService(inv Inventory, repo purchase.Repository, opts ...Option) *Service {
	opts = append([]Option{WithBackoff(retry.Constant(0))}, opts...)
	return NewService(inv, repo, opts...)
}

// --- Tests ---

func TestReserve_EmptyItems(t *testing.T) {
	svc := newTestService(newMemoryInventory(), &mockPurchaseRepo{})

	_, err := svc.Reserve(context.Background(), Request{})
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestReserve_InvalidQuantity(t *testing.T) {
	inv := newMemoryInventory()
	inv.add("p1", "Drop Hoodie", price("49.00"), 10)
	svc := newTestService(inv, &mockPurchaseRepo{})

	for _, qty := range []int{0, -3} {
		_, err := svc.Reserve(context.Background(), Request{
			Items: []Line{{ProductID: "p1", Quantity: qty}},
		})

		var iqErr *InvalidQuantityError
		require.ErrorAs(t, err, &iqErr)
		assert.Equal(t, "p1", iqErr.ProductID)
	}
	assert.Equal(t, 10, inv.stockOf("p1"))
}

func TestReserve_ProductNotFound(t *testing.T) {
	inv := newMemoryInventory()
	inv.add("p1", "Drop Hoodie", price("49.00"), 10)
	repo := &mockPurchaseRepo{}
	svc := newTestService(inv, repo)

	_, err := svc.Reserve(context.Background(), Request{
		Items: []Line{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "missing", Quantity: 1},
		},
	})

	var pnfErr *ProductNotFoundError
	require.ErrorAs(t, err, &pnfErr)
	assert.Equal(t, "missing", pnfErr.ProductID)

	// Whole request fails: the known product is untouched, no record exists.
	assert.Equal(t, 10, inv.stockOf("p1"))
	assert.Zero(t, repo.count())
}

func TestReserve_InsufficientStock(t *testing.T) {
	inv := newMemoryInventory()
	inv.add("p1", "Drop Hoodie", price("49.00"), 2)
	repo := &mockPurchaseRepo{}
	svc := newTestService(inv, repo)

	_, err := svc.Reserve(context.Background(), Request{
		Items: []Line{{ProductID: "p1", Quantity: 3}},
	})

	var isErr *InsufficientStockError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, "p1", isErr.ProductID)
	assert.Equal(t, 3, isErr.Requested)
	assert.Equal(t, 2, isErr.Available)

	assert.Equal(t, 2, inv.stockOf("p1"))
	assert.Zero(t, repo.count())
}

func TestReserve_MultiItemAtomicity(t *testing.T) {
	inv := newMemoryInventory()
	inv.add("p1", "Drop Hoodie", price("49.00"), 100)
	inv.add("p2", "Drop Cap", price("19.00"), 1)
	repo := &mockPurchaseRepo{}
	svc := newTestService(inv, repo)

	_, err := svc.Reserve(context.Background(), Request{
		Items: []Line{
			{ProductID: "p1", Quantity: 5},
			{ProductID: "p2", Quantity: 2},
		},
	})

	var isErr *InsufficientStockError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, "p2", isErr.ProductID)

	// The item with plenty of stock must be unchanged as well.
	assert.Equal(t, 100, inv.stockOf("p1"))
	assert.Equal(t, 1, inv.stockOf("p2"))
	assert.Zero(t, repo.count())
}

func TestReserve_Success(t *testing.T) {
	inv := newMemoryInventory()
	inv.add("p1", "Drop Hoodie", price("49.00"), 5)
	repo := &mockPurchaseRepo{}
	svc := newTestService(inv, repo)

	rec, err := svc.Reserve(context.Background(), Request{
		Items:     []Line{{ProductID: "p1", Quantity: 3}},
		Purchaser: "ada@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, inv.stockOf("p1"))
	assert.Equal(t, 1, repo.count())

	require.Len(t, rec.Items, 1)
	assert.Equal(t, "Drop Hoodie", rec.Items[0].Title)
	assert.True(t, price("147.00").Equal(rec.Total), "total = 3 * 49.00, got %s", rec.Total)
	assert.Equal(t, "ada@example.com", rec.Purchaser)
	assert.Equal(t, purchase.StatusPending, rec.Status)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestReserve_DefaultsToGuest(t *testing.T) {
	inv := newMemoryInventory()
	inv.add("p1", "Drop Hoodie", price("49.00"), 5)
	svc := newTestService(inv, &mockPurchaseRepo{})

	rec, err := svc.Reserve(context.Background(), Request{
		Items: []Line{{ProductID: "p1", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, GuestPurchaser, rec.Purchaser)
}

func TestReserve_TotalFromReservationSnapshot(t *testing.T) {
	inv := newMemoryInventory()
	inv.add("p1", "Drop Hoodie", price("49.00"), 5)
	inv.add("p2", "Drop Cap", price("19.50"), 5)
	svc := newTestService(inv, &mockPurchaseRepo{})

	rec, err := svc.Reserve(context.Background(), Request{
		Items: []Line{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		},
	})
	require.NoError(t, err)

	// Catalog price changes after the reservation must not affect the record.
	inv.price["p1"] = price("99.00")

	assert.True(t, price("117.50").Equal(rec.Total), "got %s", rec.Total)
	assert.True(t, price("49.00").Equal(rec.Items[0].Price))
}

func TestReserve_ConflictRetried(t *testing.T) {
	inner := newMemoryInventory()
	inner.add("p1", "Drop Hoodie", price("49.00"), 5)
	inv := &conflictingInventory{inner: inner, conflicts: 2}
	svc := newTestService(inv, &mockPurchaseRepo{})

	rec, err := svc.Reserve(context.Background(), Request{
		Items: []Line{{ProductID: "p1", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, inv.attempts)
	assert.Equal(t, 4, inner.stockOf("p1"))
	assert.True(t, price("49.00").Equal(rec.Total))
}

func TestReserve_ConflictBudgetExhausted(t *testing.T) {
	inner := newMemoryInventory()
	inner.add("p1", "Drop Hoodie", price("49.00"), 5)
	inv := &conflictingInventory{inner: inner, conflicts: 100}
	repo := &mockPurchaseRepo{}
	svc := newTestService(inv, repo, WithMaxAttempts(3))

	_, err := svc.Reserve(context.Background(), Request{
		Items: []Line{{ProductID: "p1", Quantity: 1}},
	})

	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 3, inv.attempts)
	assert.Equal(t, 5, inner.stockOf("p1"))
	assert.Zero(t, repo.count())
}

func TestReserve_ValidationErrorsNotRetried(t *testing.T) {
	inner := newMemoryInventory()
	inv := &conflictingInventory{inner: inner}
	svc := newTestService(inv, &mockPurchaseRepo{})

	_, err := svc.Reserve(context.Background(), Request{
		Items: []Line{{ProductID: "missing", Quantity: 1}},
	})

	var pnfErr *ProductNotFoundError
	require.ErrorAs(t, err, &pnfErr)
	assert.Equal(t, 1, inv.attempts)
}

func TestReserve_RecordPersistenceFailure(t *testing.T) {
	inv := newMemoryInventory()
	inv.add("p1", "Drop Hoodie", price("49.00"), 5)
	repo := &mockPurchaseRepo{err: errors.New("write timeout")}
	svc := newTestService(inv, repo)

	_, err := svc.Reserve(context.Background(), Request{
		Items: []Line{{ProductID: "p1", Quantity: 2}},
	})

	var rpErr *RecordPersistenceError
	require.ErrorAs(t, err, &rpErr)

	// The stock decrement already committed and is not rolled back; the
	// error carries the record that should have been written.
	assert.Equal(t, 3, inv.stockOf("p1"))
	require.NotNil(t, rpErr.Record)
	assert.True(t, price("98.00").Equal(rpErr.Record.Total))
	assert.ErrorContains(t, err, "write timeout")
}

func TestReserve_LastUnitRace(t *testing.T) {
	inv := newMemoryInventory()
	inv.add("p1", "Drop Hoodie", price("49.00"), 1)
	repo := &mockPurchaseRepo{}
	svc := newTestService(inv, repo)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		shortages int
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reserve(context.Background(), Request{
				Items: []Line{{ProductID: "p1", Quantity: 1}},
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			default:
				var isErr *InsufficientStockError
				if errors.As(err, &isErr) {
					shortages++
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, shortages)
	assert.Equal(t, 0, inv.stockOf("p1"))
	assert.Equal(t, 1, repo.count())
}

func TestReserve_NoOversell(t *testing.T) {
	const initialStock = 5

	inv := newMemoryInventory()
	inv.add("p1", "Drop Hoodie", price("49.00"), initialStock)
	repo := &mockPurchaseRepo{}
	svc := newTestService(inv, repo)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sold int
	)
	for i := range 10 {
		qty := 1 + i%2
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reserve(context.Background(), Request{
				Items: []Line{{ProductID: "p1", Quantity: qty}},
			})
			if err == nil {
				mu.Lock()
				sold += qty
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	final := inv.stockOf("p1")
	assert.GreaterOrEqual(t, final, 0, "stock must never go negative")
	assert.LessOrEqual(t, sold, initialStock, "committed quantities must not oversell")
	assert.Equal(t, initialStock, sold+final)
}
