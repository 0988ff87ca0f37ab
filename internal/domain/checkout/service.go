package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/livedrop/livedrop/internal/domain/purchase"
	"github.com/livedrop/livedrop/pkg/retry"
)

// Default retry budget for optimistic-concurrency conflicts, matching the
// built-in transaction retry of the hosted stores this service replaces.
const (
	DefaultMaxAttempts  = 5
	defaultRetryBackoff = 25 * time.Millisecond
)

// Service converts a purchase request into either a confirmed, durable
// decrement of every involved product's stock plus a persisted purchase
// record, or no change at all, reporting which item caused the failure.
//
// Concurrent requests competing for the last units of a product are resolved
// by the inventory's conflict detection: first committer wins, the loser
// re-reads fresh stock on retry. No queueing or fairness beyond that.
type Service struct {
	inventory   Inventory
	purchases   purchase.Repository
	maxAttempts int
	backoff     retry.Backoff
}

// Option configures a Service.
type Option func(*Service)

// WithMaxAttempts overrides the conflict retry budget.
func WithMaxAttempts(n int) Option {
	return func(s *Service) { s.maxAttempts = n }
}

// WithBackoff overrides the inter-attempt backoff.
func WithBackoff(b retry.Backoff) Option {
	return func(s *Service) { s.backoff = b }
}

// NewService creates the reservation service with the required dependencies.
func NewService(inventory Inventory, purchases purchase.Repository, opts ...Option) *Service {
	s := &Service{
		inventory:   inventory,
		purchases:   purchases,
		maxAttempts: DefaultMaxAttempts,
		backoff:     retry.Exponential(defaultRetryBackoff),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reserve validates the request, atomically decrements stock for every item
// (all-or-nothing, retried on concurrent-write conflicts up to the attempt
// budget), then persists one purchase record capturing the item snapshot and
// total as read inside the committed transaction.
//
// Validation and reservation failures leave all stock untouched. A failure
// writing the record after the stock commit returns *RecordPersistenceError:
// the decrement has already happened and is not rolled back.
func (s *Service) Reserve(ctx context.Context, req Request) (*purchase.Record, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, line := range req.Items {
		if line.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: line.ProductID}
		}
	}

	purchaser := req.Purchaser
	if purchaser == "" {
		purchaser = GuestPurchaser
	}

	// Each attempt is one fresh transaction: a losing attempt must re-read
	// current stock, never re-evaluate against its stale snapshot.
	reserved, err := retry.DoWithResult(ctx, retry.Config{
		MaxAttempts: s.maxAttempts,
		Backoff:     s.backoff,
		ShouldRetry: func(err error) bool { return errors.Is(err, ErrConflict) },
	}, func() ([]ReservedItem, error) {
		return s.inventory.Reserve(ctx, req.Items)
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, errors.Wrapf(ErrConflict, "retry budget exhausted after %d attempts", s.maxAttempts)
		}
		return nil, err
	}

	rec := buildRecord(purchaser, reserved)
	if err := s.purchases.Create(ctx, rec); err != nil {
		return nil, &RecordPersistenceError{Record: rec, Err: err}
	}
	return rec, nil
}

// buildRecord snapshots the reserved items into a purchase record. The total
// is computed from the prices captured at reservation time, not re-derived
// from the possibly-changed catalog.
func buildRecord(purchaser string, reserved []ReservedItem) *purchase.Record {
	items := make([]purchase.Item, len(reserved))
	total := decimal.Zero
	for i, r := range reserved {
		items[i] = purchase.Item{
			ProductID: r.ProductID,
			Title:     r.Title,
			Price:     r.Price,
			Quantity:  r.Quantity,
		}
		total = total.Add(r.Price.Mul(decimal.NewFromInt(int64(r.Quantity))))
	}

	return &purchase.Record{
		ID:        uuid.New().String(),
		Items:     items,
		Total:     total.Round(2),
		Purchaser: purchaser,
		Status:    purchase.StatusPending,
	}
}
