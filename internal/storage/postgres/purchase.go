package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/livedrop/livedrop/internal/domain/purchase"
)

const (
	createOrderSQL = `INSERT INTO orders (id, items, total, purchaser, status)
		VALUES ($1, $2, $3, $4, $5) RETURNING created_at`

	createFeedEntrySQL = `INSERT INTO purchase_feed (order_id, title, amount, purchaser, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	recentFeedSQL = `SELECT order_id, title, amount, purchaser, created_at
		FROM purchase_feed ORDER BY created_at DESC, id DESC LIMIT $1`
)

var _ purchase.Repository = (*PurchaseRepository)(nil)

// PurchaseRepository implements purchase.Repository backed by PostgreSQL.
type PurchaseRepository struct {
	pool *pgxpool.Pool
}

// NewPurchaseRepository returns a PurchaseRepository that uses the given pool.
func NewPurchaseRepository(pool *pgxpool.Pool) *PurchaseRepository {
	return &PurchaseRepository{pool: pool}
}

// Create persists the record and its per-item feed entries in one
// transaction. The item snapshot is serialized to JSON for the JSONB column;
// created_at is assigned by the database and written back to the record.
func (r *PurchaseRepository) Create(ctx context.Context, rec *purchase.Record) error {
	itemsJSON, err := json.Marshal(rec.Items)
	if err != nil {
		return errors.Wrap(err, "marshaling purchase items")
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin purchase write")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, createOrderSQL,
		rec.ID, itemsJSON, rec.Total, rec.Purchaser, rec.Status,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return errors.Wrapf(err, "creating order %q", rec.ID)
	}

	for _, entry := range purchase.FeedEntries(rec) {
		_, err := tx.Exec(ctx, createFeedEntrySQL,
			entry.OrderID, entry.Title, entry.Amount, entry.Purchaser, rec.CreatedAt,
		)
		if err != nil {
			return errors.Wrapf(err, "creating feed entry for order %q", rec.ID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrapf(err, "committing purchase %q", rec.ID)
	}
	return nil
}

// Recent returns up to limit feed entries, newest first.
func (r *PurchaseRepository) Recent(ctx context.Context, limit int) ([]purchase.FeedEntry, error) {
	rows, err := r.pool.Query(ctx, recentFeedSQL, limit)
	if err != nil {
		return nil, errors.Wrap(err, "listing recent purchases")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (purchase.FeedEntry, error) {
		var e purchase.FeedEntry
		err := row.Scan(&e.OrderID, &e.Title, &e.Amount, &e.Purchaser, &e.CreatedAt)
		return e, err
	})
}
