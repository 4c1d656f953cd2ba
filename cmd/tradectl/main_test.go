package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-inventory-trades/internal/config"
	"github.com/ariefcatur/go-inventory-trades/internal/memstore"
	"github.com/ariefcatur/go-inventory-trades/internal/orders"
	"github.com/ariefcatur/go-inventory-trades/internal/redisx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emitted struct {
	eventType string
	id        string
	payload   any
}

type recorder struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recorder) Emit(_ context.Context, _, eventType, id string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{eventType, id, payload})
}

func run(t *testing.T, st *memstore.Store, args ...string) (string, error) {
	t.Helper()
	none := func(context.Context) (*redisx.Cache, orders.Emitter, func()) {
		return nil, orders.NopEmitter{}, func() {}
	}
	return runWith(t, st, none, args...)
}

func runWith(t *testing.T, st *memstore.Store, effects sideEffects, args ...string) (string, error) {
	t.Helper()
	open := func(context.Context) (orders.Store, func(), error) { return st, func() {}, nil }
	cmd := newRootCmd(config.Config{LogLevel: "error", SweepThreshold: 72 * time.Hour}, open, effects)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestItemAddAndRestock(t *testing.T) {
	st := memstore.New()

	out, err := run(t, st, "item", "add", "--owner", "alice", "--name", "Jordan 1", "--price", "129.99", "--stock", "2")
	require.NoError(t, err)
	id := strings.TrimSpace(out)

	it, err := st.Items().Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "alice", it.OwnerID)
	assert.Equal(t, 2, it.Stock)
	assert.Equal(t, orders.ItemAvailable, it.Status)
	assert.True(t, decimal.RequireFromString("129.99").Equal(it.Price))

	out, err = run(t, st, "item", "restock", id, "0")
	require.NoError(t, err)
	assert.Contains(t, out, "status=SOLD")

	_, err = run(t, st, "item", "restock", id, "x")
	assert.Error(t, err)
	_, err = run(t, st, "item", "restock", "missing", "3")
	assert.ErrorIs(t, err, orders.ErrItemNotFound)
}

func TestItemAddRejectsBadInput(t *testing.T) {
	st := memstore.New()
	_, err := run(t, st, "item", "add", "--owner", "alice", "--name", "x", "--price", "0")
	assert.Error(t, err)
	_, err = run(t, st, "item", "add", "--name", "x", "--price", "10")
	assert.Error(t, err)
	_, err = run(t, st, "item", "add", "--owner", "alice", "--name", "x", "--price", "10", "--stock", "-1")
	assert.Error(t, err)
}

func TestSweepCommand(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	require.NoError(t, st.Orders().Insert(ctx, orders.Order{
		ID: "o-1", BuyerID: "bob", SellerID: "alice", ItemID: "i-1",
		TotalAmount: decimal.NewFromInt(10), Status: orders.StatusShipped,
		OrderDate: time.Now().UTC().Add(-48 * time.Hour),
	}))

	// 48h old: untouched at the default threshold
	out, err := run(t, st, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, `"delivered": 0`)

	out, err = run(t, st, "sweep", "--threshold", "24h")
	require.NoError(t, err)
	assert.Contains(t, out, `"delivered": 1`)

	o, err := st.Orders().Get(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusDelivered, o.Status)

	_, err = run(t, st, "sweep", "--threshold", "soon")
	assert.Error(t, err)
}

func TestSweepCommandRefreshesCacheAndEmits(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	old := orders.Order{
		ID: "o-1", BuyerID: "bob", SellerID: "alice", ItemID: "i-1",
		TotalAmount: decimal.NewFromInt(10), Status: orders.StatusPending,
		OrderDate: time.Now().UTC().Add(-100 * time.Hour),
	}
	require.NoError(t, st.Orders().Insert(ctx, old))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cache := &redisx.Cache{R: rdb}
	stored, err := st.Orders().Get(ctx, "o-1")
	require.NoError(t, err)
	require.NoError(t, cache.PutOrder(ctx, stored))

	rec := &recorder{}
	effects := func(context.Context) (*redisx.Cache, orders.Emitter, func()) {
		return cache, rec, func() {}
	}

	out, err := runWith(t, st, effects, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, `"delivered": 1`)

	cached, ok := cache.GetOrder(ctx, "o-1")
	require.True(t, ok)
	assert.Equal(t, orders.StatusDelivered, cached.Status)
	assert.Greater(t, cached.Version, stored.Version)

	require.Len(t, rec.events, 1)
	assert.Equal(t, orders.EventOrderStatusChanged, rec.events[0].eventType)
	assert.Equal(t, "o-1", rec.events[0].id)
	assert.Equal(t, orders.OrderStatusChangedPayload{
		OrderID: "o-1", From: orders.StatusPending, To: orders.StatusDelivered, Source: "sweep",
	}, rec.events[0].payload)
}

func TestRestockRefreshesAvailability(t *testing.T) {
	st := memstore.New()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cache := &redisx.Cache{R: rdb}
	effects := func(context.Context) (*redisx.Cache, orders.Emitter, func()) {
		return cache, orders.NopEmitter{}, func() {}
	}

	out, err := run(t, st, "item", "add", "--owner", "alice", "--name", "Jordan 1", "--price", "10", "--stock", "1")
	require.NoError(t, err)
	id := strings.TrimSpace(out)

	_, err = runWith(t, st, effects, "item", "restock", id, "5")
	require.NoError(t, err)

	a, ok := cache.GetAvailability(context.Background(), id)
	require.True(t, ok)
	assert.Equal(t, 5, a.Stock)
	assert.Equal(t, orders.ItemAvailable, a.Status)
}
