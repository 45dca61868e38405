package postgres

import (
	"context"
	"errors"

	"github.com/ariefcatur/storefront-fulfillment/internal/inventory"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Ledger struct{ DB *pgxpool.Pool }

// Reserve: lock the variant row (FOR UPDATE) -> check stock -> decrement, in
// one transaction per SKU. The guarded UPDATE and the CHECK constraint keep
// stock from going negative even if the lock were skipped.
func (l *Ledger) Reserve(ctx context.Context, sku string, qty int) (inventory.Reservation, error) {
	var r inventory.Reservation

	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return r, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		v inventory.Variant
		p inventory.Product
	)
	err = tx.QueryRow(ctx, `
		SELECT v.id, v.product_id, v.size, v.stock, v.sku,
		       p.id, p.name, p.price, p.image_url, p.color
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.sku = $1
		FOR UPDATE OF v`, sku,
	).Scan(&v.ID, &v.ProductID, &v.Size, &v.Stock, &v.SKU, &p.ID, &p.Name, &p.Price, &p.ImageURL, &p.Color)
	if errors.Is(err, pgx.ErrNoRows) {
		return r, inventory.ErrSkuNotFound
	}
	if err != nil {
		return r, err
	}
	if v.Stock < qty {
		return r, &inventory.OutOfStockError{SKU: sku, Requested: qty, Available: v.Stock}
	}

	var remaining int
	err = tx.QueryRow(ctx, `
		UPDATE product_variants SET stock = stock - $2
		WHERE id = $1 AND stock >= $2
		RETURNING stock`, v.ID, qty,
	).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return r, &inventory.OutOfStockError{SKU: sku, Requested: qty, Available: v.Stock}
	}
	if err != nil {
		return r, err
	}
	if err := tx.Commit(ctx); err != nil {
		return r, err
	}

	v.Stock = remaining
	return inventory.Reservation{SKU: sku, Quantity: qty, Remaining: remaining, Variant: v, Product: p}, nil
}

func (l *Ledger) Release(ctx context.Context, sku string, qty int) error {
	ct, err := l.DB.Exec(ctx, `UPDATE product_variants SET stock = stock + $2 WHERE sku = $1`, sku, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return inventory.ErrSkuNotFound
	}
	return nil
}
