// Package inventory owns item stock. Ledger is the only writer of an item's
// stock counter; Projector keeps the cached availability read model current.
package inventory

import (
	"context"

	"github.com/ariefcatur/go-inventory-trades/internal/orders"
)

// Ledger is stateless: it always works through the repo it is handed, so the
// caller decides which transaction a reservation joins.
type Ledger struct{}

// Reserve takes qty units of itemID. The check and the decrement are one
// statement in the repo, so concurrent reservations on the same item are
// linearizable and stock can never go negative.
func (Ledger) Reserve(ctx context.Context, items orders.ItemRepo, itemID string, qty int) (orders.Item, error) {
	if qty < 1 {
		return orders.Item{}, orders.Errorf(orders.KindValidation, "quantity must be at least 1")
	}
	it, ok, err := items.DecrementStock(ctx, itemID, qty)
	if err != nil {
		return orders.Item{}, err
	}
	if ok {
		return it, nil
	}
	// guard failed: tell a missing item apart from an exhausted one
	if _, err := items.Get(ctx, itemID); err != nil {
		return orders.Item{}, err
	}
	return orders.Item{}, orders.ErrOutOfStock
}

// Restock sets an explicit stock level. Status follows stock: zero means
// SOLD, and a SOLD item that gets stock back becomes AVAILABLE again.
func (Ledger) Restock(ctx context.Context, items orders.ItemRepo, itemID string, stock int) (orders.Item, error) {
	if stock < 0 {
		return orders.Item{}, orders.Errorf(orders.KindValidation, "stock cannot be negative")
	}
	it, err := items.Get(ctx, itemID)
	if err != nil {
		return orders.Item{}, err
	}
	return items.SetStock(ctx, itemID, stock, orders.StatusForStock(it.Status, stock))
}
