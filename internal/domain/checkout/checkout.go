package checkout

import (
	"context"

	"github.com/shopspring/decimal"
)

// GuestPurchaser is the identity label used when the caller has no
// authenticated identity.
const GuestPurchaser = "Guest"

// Line is one (product, quantity) pair of a reservation request.
type Line struct {
	ProductID string
	Quantity  int
}

// Request is the input to the reservation core. Purchaser is resolved by the
// caller beforehand (the core never consults an identity provider); an empty
// value means GuestPurchaser.
type Request struct {
	Items     []Line
	Purchaser string
}

// ReservedItem is the catalog snapshot of a line as read inside the committed
// reservation transaction.
type ReservedItem struct {
	ProductID string
	Title     string
	Price     decimal.Decimal
	Quantity  int
}

// Inventory performs the atomic all-or-nothing stock decrement for one
// reservation attempt.
//
// Reserve runs a single transaction covering every line: it reads each
// product's current stock, fails the whole attempt on an unknown id
// (ProductNotFoundError) or a shortage (InsufficientStockError), and otherwise
// commits stock = stock - quantity for all lines at once. A concurrent write
// to any touched product between read and commit aborts the attempt with an
// error matching ErrConflict; nothing is decremented on any failure.
//
// The returned snapshot carries each line's title and price as of the
// committed transaction.
type Inventory interface {
	Reserve(ctx context.Context, lines []Line) ([]ReservedItem, error)
}
