package postgres

import (
	"context"

	"github.com/ariefcatur/go-inventory-trades/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the Postgres-backed orders.Store.
type Store struct{ DB *pgxpool.Pool }

var _ orders.Store = (*Store)(nil)

type scope struct{ q querier }

func (s scope) Items() orders.ItemRepo   { return &ItemRepo{q: s.q} }
func (s scope) Orders() orders.OrderRepo { return &OrderRepo{q: s.q} }
func (s scope) Trades() orders.TradeRepo { return &TradeRepo{q: s.q} }

func (s *Store) Items() orders.ItemRepo   { return scope{s.DB}.Items() }
func (s *Store) Orders() orders.OrderRepo { return scope{s.DB}.Orders() }
func (s *Store) Trades() orders.TradeRepo { return scope{s.DB}.Trades() }

// WithTx runs fn in READ COMMITTED; row locks taken by the repos
// (guarded UPDATE, FOR UPDATE, FOR SHARE) provide the per-row isolation.
func (s *Store) WithTx(ctx context.Context, fn func(tx orders.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(scope{tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
