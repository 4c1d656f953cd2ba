package orders

import (
	"context"
	"time"
)

// ItemRepo is the persistence contract behind the inventory ledger.
// DecrementStock must be a single atomic check-and-decrement per item.
type ItemRepo interface {
	Get(ctx context.Context, id string) (Item, error)
	// GetForShare reads the item and blocks concurrent stock writers until
	// the surrounding transaction ends.
	GetForShare(ctx context.Context, id string) (Item, error)
	Insert(ctx context.Context, it Item) error
	// DecrementStock returns ok=false without error when the item is missing
	// or has less than qty in stock. Status flips to SOLD when stock hits 0.
	DecrementStock(ctx context.Context, id string, qty int) (it Item, ok bool, err error)
	SetStock(ctx context.Context, id string, stock int, status ItemStatus) (Item, error)
}

type OrderRepo interface {
	// Insert fails with ErrIdempotencyKey if ExternalID is already taken.
	Insert(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (Order, error)
	GetByExternalID(ctx context.Context, externalID string) (Order, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]Order, error)
	// ListStale returns orders in one of statuses placed before cutoff.
	ListStale(ctx context.Context, statuses []Status, cutoff time.Time) ([]Order, error)
	// CompareAndSetStatus fails with ErrVersionConflict when the stored
	// version differs from version.
	CompareAndSetStatus(ctx context.Context, id string, version int, to Status) (Order, error)
}

type TradeRepo interface {
	// Insert fails with ErrDuplicateTrade if the same requester already has a
	// pending trade for the same item pair.
	Insert(ctx context.Context, t Trade) error
	Get(ctx context.Context, id string) (Trade, error)
	GetForUpdate(ctx context.Context, id string) (Trade, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Trade, error)
	ListByRequester(ctx context.Context, requesterID string) ([]Trade, error)
	HasPending(ctx context.Context, requesterID, offeredItemID, requestedItemID string) (bool, error)
	CompareAndSetStatus(ctx context.Context, id string, version int, to TradeStatus) (Trade, error)
}

// Tx groups the repositories bound to one unit of work.
type Tx interface {
	Items() ItemRepo
	Orders() OrderRepo
	Trades() TradeRepo
}

// Store gives auto-commit access through Tx and runs fn atomically through
// WithTx: an error from fn rolls back everything fn wrote.
type Store interface {
	Tx
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}
