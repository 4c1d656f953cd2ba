package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ariefcatur/go-inventory-trades/internal/orders"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Items().Insert(ctx, orders.Item{ID: "i", OwnerID: "a", Price: decimal.NewFromInt(1), Stock: 1, Status: orders.ItemAvailable}))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx orders.Tx) error {
		if _, ok, err := tx.Items().DecrementStock(ctx, "i", 1); err != nil || !ok {
			t.Fatalf("decrement: ok=%v err=%v", ok, err)
		}
		if err := tx.Orders().Insert(ctx, orders.Order{ID: "o", BuyerID: "b", ItemID: "i", Status: orders.StatusPending}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	it, err := s.Items().Get(ctx, "i")
	require.NoError(t, err)
	assert.Equal(t, 1, it.Stock)
	assert.Equal(t, orders.ItemAvailable, it.Status)
	_, err = s.Orders().Get(ctx, "o")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}

func TestDecrementStockGuard(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Items().Insert(ctx, orders.Item{ID: "i", Stock: 2, Status: orders.ItemAvailable}))

	_, ok, err := s.Items().DecrementStock(ctx, "i", 3)
	require.NoError(t, err)
	assert.False(t, ok)

	it, ok, err := s.Items().DecrementStock(ctx, "i", 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, orders.ItemSold, it.Status)

	_, ok, err = s.Items().DecrementStock(ctx, "missing", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompareAndSetStatus(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Orders().Insert(ctx, orders.Order{ID: "o", Status: orders.StatusPending, OrderDate: time.Now()}))

	o, err := s.Orders().CompareAndSetStatus(ctx, "o", 1, orders.StatusShipped)
	require.NoError(t, err)
	assert.Equal(t, 2, o.Version)

	_, err = s.Orders().CompareAndSetStatus(ctx, "o", 1, orders.StatusCancelled)
	assert.ErrorIs(t, err, orders.ErrVersionConflict)
	_, err = s.Orders().CompareAndSetStatus(ctx, "x", 1, orders.StatusCancelled)
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}

func TestUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Orders().Insert(ctx, orders.Order{ID: "o1", ExternalID: "k"}))
	assert.ErrorIs(t, s.Orders().Insert(ctx, orders.Order{ID: "o2", ExternalID: "k"}), orders.ErrIdempotencyKey)
	require.NoError(t, s.Orders().Insert(ctx, orders.Order{ID: "o3"}))
	require.NoError(t, s.Orders().Insert(ctx, orders.Order{ID: "o4"}))

	tr := orders.Trade{ID: "t1", RequesterID: "r", OfferedItemID: "a", RequestedItemID: "b", Status: orders.TradePending}
	require.NoError(t, s.Trades().Insert(ctx, tr))
	tr.ID = "t2"
	assert.ErrorIs(t, s.Trades().Insert(ctx, tr), orders.ErrDuplicateTrade)

	_, err := s.Trades().CompareAndSetStatus(ctx, "t1", 1, orders.TradeDeclined)
	require.NoError(t, err)
	require.NoError(t, s.Trades().Insert(ctx, tr))
}
