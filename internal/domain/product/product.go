package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase. Stock is the
// number of sellable units remaining; it is mutated only by the checkout
// reservation transaction and never goes negative.
type Product struct {
	ID          string
	Title       string
	Description string
	Image       string
	Price       decimal.Decimal
	Stock       int
	DropTime    *time.Time
}

// Dropped reports whether the product's drop has started as of now.
// Products without a drop time are always available. The gate is a display
// concern: the catalog API exposes it, the reservation core does not
// enforce it.
func (p Product) Dropped(now time.Time) bool {
	return p.DropTime == nil || !p.DropTime.After(now)
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
}
