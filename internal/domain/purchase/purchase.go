package purchase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// StatusPending is the initial (and currently only) status of a purchase
// record. No further lifecycle is implemented upstream.
const StatusPending = "pending"

// Item is the snapshot of a single purchased line, captured at reservation
// time. Title and Price reflect the catalog as of the committed reservation,
// not any later edits.
type Item struct {
	ProductID string          `json:"product_id"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// Record is the persisted fact of a completed purchase. It is created once
// after a successful stock reservation and never mutated or deleted.
type Record struct {
	ID        string
	Items     []Item
	Total     decimal.Decimal
	Purchaser string
	Status    string
	CreatedAt time.Time
}

// FeedEntry is one line of the public recent-purchase feed: a single
// purchased item with its aggregate amount (price * quantity).
type FeedEntry struct {
	OrderID   string          `json:"order_id"`
	Title     string          `json:"title"`
	Amount    decimal.Decimal `json:"amount"`
	Purchaser string          `json:"user"`
	CreatedAt time.Time       `json:"timestamp"`
}

// Repository defines persistence operations for purchase records and the
// recent-purchase feed derived from them.
type Repository interface {
	// Create persists the record and its per-item feed entries. CreatedAt is
	// assigned by the store and written back to the record.
	Create(ctx context.Context, rec *Record) error

	// Recent returns up to limit feed entries, newest first.
	Recent(ctx context.Context, limit int) ([]FeedEntry, error)
}

// FeedEntries derives the per-item feed lines for a record.
func FeedEntries(rec *Record) []FeedEntry {
	entries := make([]FeedEntry, len(rec.Items))
	for i, it := range rec.Items {
		entries[i] = FeedEntry{
			OrderID:   rec.ID,
			Title:     it.Title,
			Amount:    it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))),
			Purchaser: rec.Purchaser,
			CreatedAt: rec.CreatedAt,
		}
	}
	return entries
}
