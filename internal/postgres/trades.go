package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-inventory-trades/internal/orders"
	"github.com/jackc/pgx/v5"
)

const tradeColumns = `id, requester_id, owner_id, offered_item_id, requested_item_id,
	status, message, created_at, updated_at, version`

type TradeRepo struct{ q querier }

func scanTrade(row pgx.Row) (orders.Trade, error) {
	var t orders.Trade
	err := row.Scan(&t.ID, &t.RequesterID, &t.OwnerID, &t.OfferedItemID, &t.RequestedItemID,
		&t.Status, &t.Message, &t.CreatedAt, &t.UpdatedAt, &t.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Trade{}, orders.ErrTradeNotFound
	}
	return t, err
}

func collectTrades(rows pgx.Rows, err error) ([]orders.Trade, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []orders.Trade{}
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TradeRepo) Insert(ctx context.Context, t orders.Trade) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO trades(id, requester_id, owner_id, offered_item_id, requested_item_id,
		                   status, message, created_at, updated_at, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8,1)`,
		t.ID, t.RequesterID, t.OwnerID, t.OfferedItemID, t.RequestedItemID, t.Status, t.Message, t.CreatedAt)
	if isUniqueViolation(err, "trades_pending_pair_key") {
		return orders.ErrDuplicateTrade
	}
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

func (r *TradeRepo) Get(ctx context.Context, id string) (orders.Trade, error) {
	return scanTrade(r.q.QueryRow(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id=$1`, id))
}

func (r *TradeRepo) GetForUpdate(ctx context.Context, id string) (orders.Trade, error) {
	return scanTrade(r.q.QueryRow(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id=$1 FOR UPDATE`, id))
}

func (r *TradeRepo) ListByOwner(ctx context.Context, ownerID string) ([]orders.Trade, error) {
	return collectTrades(r.q.Query(ctx, `
		SELECT `+tradeColumns+` FROM trades
		WHERE owner_id=$1
		ORDER BY created_at DESC`, ownerID))
}

func (r *TradeRepo) ListByRequester(ctx context.Context, requesterID string) ([]orders.Trade, error) {
	return collectTrades(r.q.Query(ctx, `
		SELECT `+tradeColumns+` FROM trades
		WHERE requester_id=$1
		ORDER BY created_at DESC`, requesterID))
}

func (r *TradeRepo) HasPending(ctx context.Context, requesterID, offeredItemID, requestedItemID string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM trades
			WHERE requester_id=$1 AND offered_item_id=$2 AND requested_item_id=$3 AND status='PENDING'
		)`, requesterID, offeredItemID, requestedItemID).Scan(&exists)
	return exists, err
}

func (r *TradeRepo) CompareAndSetStatus(ctx context.Context, id string, version int, to orders.TradeStatus) (orders.Trade, error) {
	t, err := scanTrade(r.q.QueryRow(ctx, `
		UPDATE trades
		SET status = $3, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING `+tradeColumns, id, version, to))
	if errors.Is(err, orders.ErrTradeNotFound) {
		if _, gerr := r.Get(ctx, id); gerr != nil {
			return orders.Trade{}, gerr
		}
		return orders.Trade{}, orders.ErrVersionConflict
	}
	return t, err
}
