package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/livedrop/livedrop/internal/domain/checkout"
)

const (
	readLineSQL      = `SELECT title, price, stock FROM products WHERE id = $1`
	decrementLineSQL = `UPDATE products SET stock = stock - $2 WHERE id = $1`
)

var _ checkout.Inventory = (*InventoryRepository)(nil)

// InventoryRepository implements checkout.Inventory with an optimistic
// REPEATABLE READ transaction. Reads take no row locks; a concurrent commit
// touching any read row surfaces as a serialization failure on the staged
// update or the final commit, which is mapped to checkout.ErrConflict so the
// service can retry against a fresh snapshot.
type InventoryRepository struct {
	pool *pgxpool.Pool
}

// NewInventoryRepository returns an InventoryRepository that uses the given pool.
func NewInventoryRepository(pool *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

// Reserve validates and decrements stock for all lines in one transaction.
// Any failure rolls the whole attempt back: unknown ids map to
// *checkout.ProductNotFoundError, shortages to *checkout.InsufficientStockError,
// concurrent-writer aborts to checkout.ErrConflict.
func (r *InventoryRepository) Reserve(ctx context.Context, lines []checkout.Line) ([]checkout.ReservedItem, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, errors.Wrap(err, "begin reservation")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	reserved := make([]checkout.ReservedItem, len(lines))
	for i, line := range lines {
		var (
			title string
			price decimal.Decimal
			stock int
		)
		err := tx.QueryRow(ctx, readLineSQL, line.ProductID).Scan(&title, &price, &stock)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, &checkout.ProductNotFoundError{ProductID: line.ProductID}
			}
			return nil, errors.Wrapf(err, "read product %q", line.ProductID)
		}

		if stock < line.Quantity {
			return nil, &checkout.InsufficientStockError{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: stock,
			}
		}

		if _, err := tx.Exec(ctx, decrementLineSQL, line.ProductID, line.Quantity); err != nil {
			return nil, mapReserveError(err, line.ProductID)
		}

		reserved[i] = checkout.ReservedItem{
			ProductID: line.ProductID,
			Title:     title,
			Price:     price,
			Quantity:  line.Quantity,
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapReserveError(err, "")
	}
	return reserved, nil
}

// mapReserveError translates concurrent-writer aborts to checkout.ErrConflict.
// The stock >= 0 check constraint is a backstop only: under REPEATABLE READ a
// competing decrement aborts with a serialization failure before the
// constraint can fire, and either way re-reading fresh stock is the answer.
func mapReserveError(err error, productID string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected, pgerrcode.CheckViolation:
			return errors.Wrap(checkout.ErrConflict, pgErr.Code)
		}
	}
	if productID != "" {
		return errors.Wrapf(err, "decrement stock for product %q", productID)
	}
	return errors.Wrap(err, "commit reservation")
}
