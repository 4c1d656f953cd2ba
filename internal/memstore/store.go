// Package memstore is an in-process orders.Store. A single mutex serializes
// every transaction, which makes each one trivially atomic and isolated;
// rollback restores a snapshot taken when the transaction began.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-inventory-trades/internal/orders"
)

type state struct {
	items  map[string]orders.Item
	orders map[string]orders.Order
	trades map[string]orders.Trade
	seq    map[string]int64 // insertion order, breaks timestamp ties
	next   int64
}

func (s *state) clone() *state {
	c := &state{
		items:  make(map[string]orders.Item, len(s.items)),
		orders: make(map[string]orders.Order, len(s.orders)),
		trades: make(map[string]orders.Trade, len(s.trades)),
		seq:    make(map[string]int64, len(s.seq)),
		next:   s.next,
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.trades {
		c.trades[k] = v
	}
	for k, v := range s.seq {
		c.seq[k] = v
	}
	return c
}

type Store struct {
	mu  sync.Mutex
	st  *state
	Now func() time.Time
}

var _ orders.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		st: &state{
			items:  map[string]orders.Item{},
			orders: map[string]orders.Order{},
			trades: map[string]orders.Trade{},
			seq:    map[string]int64{},
		},
		Now: time.Now,
	}
}

// scope runs repo calls either under the store lock (auto-commit) or inside
// a transaction that already holds it.
type scope struct {
	s    *Store
	inTx bool
}

func (sc scope) run(fn func(st *state) error) error {
	if !sc.inTx {
		sc.s.mu.Lock()
		defer sc.s.mu.Unlock()
	}
	return fn(sc.s.st)
}

func (sc scope) Items() orders.ItemRepo   { return itemRepo{sc} }
func (sc scope) Orders() orders.OrderRepo { return orderRepo{sc} }
func (sc scope) Trades() orders.TradeRepo { return tradeRepo{sc} }

func (s *Store) Items() orders.ItemRepo   { return scope{s: s}.Items() }
func (s *Store) Orders() orders.OrderRepo { return scope{s: s}.Orders() }
func (s *Store) Trades() orders.TradeRepo { return scope{s: s}.Trades() }

func (s *Store) WithTx(ctx context.Context, fn func(tx orders.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(scope{s: s, inTx: true}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// ---- items ----

type itemRepo struct{ sc scope }

func (r itemRepo) Get(_ context.Context, id string) (orders.Item, error) {
	var it orders.Item
	err := r.sc.run(func(st *state) error {
		v, ok := st.items[id]
		if !ok {
			return orders.ErrItemNotFound
		}
		it = v
		return nil
	})
	return it, err
}

func (r itemRepo) GetForShare(ctx context.Context, id string) (orders.Item, error) {
	return r.Get(ctx, id)
}

func (r itemRepo) Insert(_ context.Context, it orders.Item) error {
	now := r.sc.s.Now()
	return r.sc.run(func(st *state) error {
		if it.CreatedAt.IsZero() {
			it.CreatedAt = now
		}
		it.UpdatedAt = it.CreatedAt
		it.Version = 1
		st.items[it.ID] = it
		return nil
	})
}

func (r itemRepo) DecrementStock(_ context.Context, id string, qty int) (orders.Item, bool, error) {
	var (
		out orders.Item
		ok  bool
	)
	now := r.sc.s.Now()
	err := r.sc.run(func(st *state) error {
		it, found := st.items[id]
		if !found || it.Stock < qty {
			return nil
		}
		it.Stock -= qty
		if it.Stock == 0 {
			it.Status = orders.ItemSold
		}
		it.Version++
		it.UpdatedAt = now
		st.items[id] = it
		out, ok = it, true
		return nil
	})
	return out, ok, err
}

func (r itemRepo) SetStock(_ context.Context, id string, stock int, status orders.ItemStatus) (orders.Item, error) {
	var out orders.Item
	now := r.sc.s.Now()
	err := r.sc.run(func(st *state) error {
		it, found := st.items[id]
		if !found {
			return orders.ErrItemNotFound
		}
		it.Stock, it.Status = stock, status
		it.Version++
		it.UpdatedAt = now
		st.items[id] = it
		out = it
		return nil
	})
	return out, err
}

// ---- orders ----

type orderRepo struct{ sc scope }

func (r orderRepo) Insert(_ context.Context, o orders.Order) error {
	return r.sc.run(func(st *state) error {
		if o.ExternalID != "" {
			for _, x := range st.orders {
				if x.ExternalID == o.ExternalID {
					return orders.ErrIdempotencyKey
				}
			}
		}
		o.UpdatedAt = o.OrderDate
		o.Version = 1
		st.orders[o.ID] = o
		st.next++
		st.seq[o.ID] = st.next
		return nil
	})
}

func (r orderRepo) Get(_ context.Context, id string) (orders.Order, error) {
	var out orders.Order
	err := r.sc.run(func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return orders.ErrOrderNotFound
		}
		out = o
		return nil
	})
	return out, err
}

func (r orderRepo) GetByExternalID(_ context.Context, externalID string) (orders.Order, error) {
	var out orders.Order
	err := r.sc.run(func(st *state) error {
		for _, o := range st.orders {
			if externalID != "" && o.ExternalID == externalID {
				out = o
				return nil
			}
		}
		return orders.ErrOrderNotFound
	})
	return out, err
}

func (r orderRepo) list(match func(orders.Order) bool, newestFirst bool) ([]orders.Order, error) {
	out := []orders.Order{}
	err := r.sc.run(func(st *state) error {
		for _, o := range st.orders {
			if match(o) {
				out = append(out, o)
			}
		}
		sort.Slice(out, func(i, j int) bool {
			a, b := out[i], out[j]
			if !a.OrderDate.Equal(b.OrderDate) {
				return a.OrderDate.Before(b.OrderDate) != newestFirst
			}
			return (st.seq[a.ID] < st.seq[b.ID]) != newestFirst
		})
		return nil
	})
	return out, err
}

func (r orderRepo) ListByBuyer(_ context.Context, buyerID string) ([]orders.Order, error) {
	return r.list(func(o orders.Order) bool { return o.BuyerID == buyerID }, true)
}

func (r orderRepo) ListStale(_ context.Context, statuses []orders.Status, cutoff time.Time) ([]orders.Order, error) {
	return r.list(func(o orders.Order) bool {
		if !o.OrderDate.Before(cutoff) {
			return false
		}
		for _, s := range statuses {
			if o.Status == s {
				return true
			}
		}
		return false
	}, false)
}

func (r orderRepo) CompareAndSetStatus(_ context.Context, id string, version int, to orders.Status) (orders.Order, error) {
	var out orders.Order
	now := r.sc.s.Now()
	err := r.sc.run(func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return orders.ErrOrderNotFound
		}
		if o.Version != version {
			return orders.ErrVersionConflict
		}
		o.Status = to
		o.Version++
		o.UpdatedAt = now
		st.orders[id] = o
		out = o
		return nil
	})
	return out, err
}

// ---- trades ----

type tradeRepo struct{ sc scope }

func (r tradeRepo) Insert(_ context.Context, t orders.Trade) error {
	return r.sc.run(func(st *state) error {
		for _, x := range st.trades {
			if x.Status == orders.TradePending && x.RequesterID == t.RequesterID &&
				x.OfferedItemID == t.OfferedItemID && x.RequestedItemID == t.RequestedItemID {
				return orders.ErrDuplicateTrade
			}
		}
		t.UpdatedAt = t.CreatedAt
		t.Version = 1
		st.trades[t.ID] = t
		st.next++
		st.seq[t.ID] = st.next
		return nil
	})
}

func (r tradeRepo) Get(_ context.Context, id string) (orders.Trade, error) {
	var out orders.Trade
	err := r.sc.run(func(st *state) error {
		t, ok := st.trades[id]
		if !ok {
			return orders.ErrTradeNotFound
		}
		out = t
		return nil
	})
	return out, err
}

func (r tradeRepo) GetForUpdate(ctx context.Context, id string) (orders.Trade, error) {
	return r.Get(ctx, id)
}

func (r tradeRepo) list(match func(orders.Trade) bool) ([]orders.Trade, error) {
	out := []orders.Trade{}
	err := r.sc.run(func(st *state) error {
		for _, t := range st.trades {
			if match(t) {
				out = append(out, t)
			}
		}
		sort.Slice(out, func(i, j int) bool {
			a, b := out[i], out[j]
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return st.seq[a.ID] > st.seq[b.ID]
		})
		return nil
	})
	return out, err
}

func (r tradeRepo) ListByOwner(_ context.Context, ownerID string) ([]orders.Trade, error) {
	return r.list(func(t orders.Trade) bool { return t.OwnerID == ownerID })
}

func (r tradeRepo) ListByRequester(_ context.Context, requesterID string) ([]orders.Trade, error) {
	return r.list(func(t orders.Trade) bool { return t.RequesterID == requesterID })
}

func (r tradeRepo) HasPending(_ context.Context, requesterID, offeredItemID, requestedItemID string) (bool, error) {
	var found bool
	err := r.sc.run(func(st *state) error {
		for _, t := range st.trades {
			if t.Status == orders.TradePending && t.RequesterID == requesterID &&
				t.OfferedItemID == offeredItemID && t.RequestedItemID == requestedItemID {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r tradeRepo) CompareAndSetStatus(_ context.Context, id string, version int, to orders.TradeStatus) (orders.Trade, error) {
	var out orders.Trade
	now := r.sc.s.Now()
	err := r.sc.run(func(st *state) error {
		t, ok := st.trades[id]
		if !ok {
			return orders.ErrTradeNotFound
		}
		if t.Version != version {
			return orders.ErrVersionConflict
		}
		t.Status = to
		t.Version++
		t.UpdatedAt = now
		st.trades[id] = t
		out = t
		return nil
	})
	return out, err
}
