package checkout

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/livedrop/livedrop/internal/domain/purchase"
)

// Sentinel errors for reservation requests. The full failure set a caller can
// match on is: ErrEmptyItems, InvalidQuantityError, ProductNotFoundError,
// InsufficientStockError, ErrConflict, RecordPersistenceError.
var (
	// ErrEmptyItems rejects a request with no line items.
	ErrEmptyItems = errors.New("items required")

	// ErrConflict signals an optimistic-concurrency violation: a concurrent
	// writer touched a product between the reservation's read and commit.
	// Inventory implementations return it (possibly wrapped) per attempt; the
	// service returns it only after the retry budget is exhausted.
	ErrConflict = errors.New("reservation conflict")
)

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InsufficientStockError indicates a product has fewer units left than the
// request asked for. Available is the stock observed inside the failing
// reservation attempt.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// RecordPersistenceError is the partial-failure state: the stock decrement has
// already durably committed, but writing the purchase record failed. Record
// holds the record that should have been persisted, so the caller can surface
// it for reconciliation instead of treating the purchase as never-happened.
// Retrying the whole reservation on this error would double-decrement.
type RecordPersistenceError struct {
	Record *purchase.Record
	Err    error
}

func (e *RecordPersistenceError) Error() string {
	return fmt.Sprintf("stock reserved but purchase record %s not persisted: %v", e.Record.ID, e.Err)
}

func (e *RecordPersistenceError) Unwrap() error { return e.Err }
