package postgres

import (
	"context"
	"errors"

	"github.com/ariefcatur/storefront-fulfillment/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OrderStore struct{ DB *pgxpool.Pool }

// Create inserts the order and its item snapshots in one transaction.
func (s *OrderStore) Create(ctx context.Context, o *orders.Order) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO orders(guest_email, customer_id, status, total_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		o.GuestEmail, o.CustomerID, string(o.Status), o.TotalPrice,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i, it := range o.Items {
		batch.Queue(`
			INSERT INTO order_items(order_id, position, product_id, product_name, quantity, unit_price,
			                        size, sku, image_url, color, product_variant_id)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			o.ID, i, it.ProductID, it.ProductName, it.Quantity, it.UnitPrice,
			it.Size, it.SKU, it.ImageURL, it.Color, it.VariantID,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *OrderStore) Get(ctx context.Context, id int64) (*orders.Order, error) {
	o := &orders.Order{}
	var status string
	err := s.DB.QueryRow(ctx, `
		SELECT id, guest_email, customer_id, status, total_price, payment_event_id, created_at, updated_at
		FROM orders WHERE id = $1`, id,
	).Scan(&o.ID, &o.GuestEmail, &o.CustomerID, &status, &o.TotalPrice, &o.PaymentEventID, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, orders.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Status = orders.Status(status)

	rows, err := s.DB.Query(ctx, `
		SELECT product_id, product_name, quantity, unit_price, size, sku, image_url, color, product_variant_id
		FROM order_items WHERE order_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var it orders.OrderItem
		if err := rows.Scan(&it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice,
			&it.Size, &it.SKU, &it.ImageURL, &it.Color, &it.VariantID); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

// TransitionStatus writes only if the row still holds from. Two concurrent
// deliveries of the same webhook both reach this UPDATE; Postgres serializes
// them on the row and the second one matches zero rows.
func (s *OrderStore) TransitionStatus(ctx context.Context, id int64, from, to orders.Status, paymentEventID string) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE orders
		SET status = $3,
		    payment_event_id = CASE WHEN $4 = '' THEN payment_event_id ELSE $4 END,
		    updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to), paymentEventID,
	)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := s.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, orders.ErrOrderNotFound
	}
	return false, nil
}
