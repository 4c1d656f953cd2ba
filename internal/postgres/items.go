package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-inventory-trades/internal/orders"
	"github.com/jackc/pgx/v5"
)

const itemColumns = `id, owner_id, name, price, stock, status, version, created_at, updated_at`

type ItemRepo struct{ q querier }

func scanItem(row pgx.Row) (orders.Item, error) {
	var it orders.Item
	err := row.Scan(&it.ID, &it.OwnerID, &it.Name, &it.Price, &it.Stock, &it.Status, &it.Version, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Item{}, orders.ErrItemNotFound
	}
	return it, err
}

func (r *ItemRepo) Get(ctx context.Context, id string) (orders.Item, error) {
	return scanItem(r.q.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id=$1`, id))
}

// GetForShare: FOR SHARE lets other readers through but makes stock writers
// wait until the caller's transaction ends.
func (r *ItemRepo) GetForShare(ctx context.Context, id string) (orders.Item, error) {
	return scanItem(r.q.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id=$1 FOR SHARE`, id))
}

func (r *ItemRepo) Insert(ctx context.Context, it orders.Item) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO items(id, owner_id, name, price, stock, status, version)
		VALUES ($1,$2,$3,$4,$5,$6,1)`,
		it.ID, it.OwnerID, it.Name, it.Price, it.Stock, it.Status)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// DecrementStock is the guarded atomic decrement: the WHERE clause rejects the
// write when stock < qty, so two racing buyers can never both take the last unit.
func (r *ItemRepo) DecrementStock(ctx context.Context, id string, qty int) (orders.Item, bool, error) {
	it, err := scanItem(r.q.QueryRow(ctx, `
		UPDATE items
		SET stock = stock - $2,
		    status = CASE WHEN stock - $2 = 0 THEN 'SOLD' ELSE status END,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1 AND stock >= $2
		RETURNING `+itemColumns, id, qty))
	if errors.Is(err, orders.ErrItemNotFound) {
		return orders.Item{}, false, nil
	}
	if err != nil {
		return orders.Item{}, false, fmt.Errorf("decrement stock: %w", err)
	}
	return it, true, nil
}

func (r *ItemRepo) SetStock(ctx context.Context, id string, stock int, status orders.ItemStatus) (orders.Item, error) {
	return scanItem(r.q.QueryRow(ctx, `
		UPDATE items
		SET stock = $2, status = $3, version = version + 1, updated_at = now()
		WHERE id = $1
		RETURNING `+itemColumns, id, stock, status))
}
