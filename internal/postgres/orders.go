package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-inventory-trades/internal/orders"
	"github.com/jackc/pgx/v5"
)

const orderColumns = `id, COALESCE(external_id, ''), buyer_id, seller_id, item_id, total_amount,
	shipping_address, phone_number, status, order_date, updated_at, version`

type OrderRepo struct{ q querier }

func scanOrder(row pgx.Row) (orders.Order, error) {
	var o orders.Order
	err := row.Scan(&o.ID, &o.ExternalID, &o.BuyerID, &o.SellerID, &o.ItemID, &o.TotalAmount,
		&o.ShippingAddress, &o.PhoneNumber, &o.Status, &o.OrderDate, &o.UpdatedAt, &o.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return o, err
}

func collectOrders(rows pgx.Rows, err error) ([]orders.Order, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []orders.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *OrderRepo) Insert(ctx context.Context, o orders.Order) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO orders(id, external_id, buyer_id, seller_id, item_id, total_amount,
		                   shipping_address, phone_number, status, order_date, updated_at, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10,1)`,
		o.ID, nullIfEmpty(o.ExternalID), o.BuyerID, o.SellerID, o.ItemID, o.TotalAmount,
		o.ShippingAddress, o.PhoneNumber, o.Status, o.OrderDate)
	if isUniqueViolation(err, "orders_external_id_key") {
		return orders.ErrIdempotencyKey
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *OrderRepo) Get(ctx context.Context, id string) (orders.Order, error) {
	return scanOrder(r.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
}

func (r *OrderRepo) GetByExternalID(ctx context.Context, externalID string) (orders.Order, error) {
	return scanOrder(r.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE external_id=$1`, externalID))
}

func (r *OrderRepo) ListByBuyer(ctx context.Context, buyerID string) ([]orders.Order, error) {
	return collectOrders(r.q.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE buyer_id=$1
		ORDER BY order_date DESC`, buyerID))
}

func (r *OrderRepo) ListStale(ctx context.Context, statuses []orders.Status, cutoff time.Time) ([]orders.Order, error) {
	ss := make([]string, 0, len(statuses))
	for _, s := range statuses {
		ss = append(ss, string(s))
	}
	return collectOrders(r.q.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = ANY($1) AND order_date < $2
		ORDER BY order_date`, ss, cutoff))
}

func (r *OrderRepo) CompareAndSetStatus(ctx context.Context, id string, version int, to orders.Status) (orders.Order, error) {
	o, err := scanOrder(r.q.QueryRow(ctx, `
		UPDATE orders
		SET status = $3, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING `+orderColumns, id, version, to))
	if errors.Is(err, orders.ErrOrderNotFound) {
		// either the order vanished or someone bumped the version first
		if _, gerr := r.Get(ctx, id); gerr != nil {
			return orders.Order{}, gerr
		}
		return orders.Order{}, orders.ErrVersionConflict
	}
	return o, err
}
