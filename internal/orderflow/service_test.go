package orderflow

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-inventory-trades/internal/memstore"
	"github.com/ariefcatur/go-inventory-trades/internal/orders"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	Topic, Type, Key string
	Payload          any
}

type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorder) Emit(_ context.Context, topic, eventType, key string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{topic, eventType, key, payload})
}

func (r *recorder) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func newService(t *testing.T, stock int) (*Service, *memstore.Store, *recorder) {
	t.Helper()
	st := memstore.New()
	require.NoError(t, st.Items().Insert(context.Background(), orders.Item{
		ID: "i-1", OwnerID: "seller", Name: "Air Max", Price: decimal.RequireFromString("150.50"),
		Stock: stock, Status: orders.StatusForStock(orders.ItemAvailable, stock),
	}))
	rec := &recorder{}
	return &Service{Store: st, Events: rec}, st, rec
}

func input() CreateOrderInput {
	return CreateOrderInput{ItemID: "i-1", ShippingAddress: " 1 Main St ", PhoneNumber: "555-0100"}
}

func TestCreateOrder(t *testing.T) {
	ctx := context.Background()
	svc, st, rec := newService(t, 2)

	o, existed, err := svc.CreateOrder(ctx, "buyer", input())
	require.NoError(t, err)
	assert.False(t, existed)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, "buyer", o.BuyerID)
	assert.Equal(t, "seller", o.SellerID)
	assert.Equal(t, "1 Main St", o.ShippingAddress)
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.True(t, decimal.RequireFromString("150.50").Equal(o.TotalAmount))
	assert.Equal(t, 1, o.Version)

	it, err := st.Items().Get(ctx, "i-1")
	require.NoError(t, err)
	assert.Equal(t, 1, it.Stock)
	assert.Equal(t, orders.ItemAvailable, it.Status)

	require.Equal(t, 1, rec.count(orders.EventOrderCreated))
	pl := rec.events[0].Payload.(orders.OrderCreatedPayload)
	assert.Equal(t, 1, pl.ItemStock)
	assert.Equal(t, orders.TopicOrderCreated, rec.events[0].Topic)
}

func TestCreateOrderLastUnitMarksSold(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newService(t, 1)

	_, _, err := svc.CreateOrder(ctx, "buyer", input())
	require.NoError(t, err)

	it, err := st.Items().Get(ctx, "i-1")
	require.NoError(t, err)
	assert.Equal(t, 0, it.Stock)
	assert.Equal(t, orders.ItemSold, it.Status)

	_, _, err = svc.CreateOrder(ctx, "other", input())
	assert.ErrorIs(t, err, orders.ErrItemNotAvailable)
}

func TestCreateOrderValidation(t *testing.T) {
	ctx := context.Background()
	svc, st, rec := newService(t, 1)

	cases := []struct {
		name  string
		buyer string
		mod   func(*CreateOrderInput)
		kind  orders.Kind
	}{
		{"no caller", "", func(*CreateOrderInput) {}, orders.KindValidation},
		{"no item", "buyer", func(in *CreateOrderInput) { in.ItemID = "" }, orders.KindValidation},
		{"blank address", "buyer", func(in *CreateOrderInput) { in.ShippingAddress = "   " }, orders.KindValidation},
		{"blank phone", "buyer", func(in *CreateOrderInput) { in.PhoneNumber = "" }, orders.KindValidation},
		{"unknown item", "buyer", func(in *CreateOrderInput) { in.ItemID = "nope" }, orders.KindNotFound},
		{"own item", "seller", func(*CreateOrderInput) {}, orders.KindValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := input()
			tc.mod(&in)
			_, _, err := svc.CreateOrder(ctx, tc.buyer, in)
			require.Error(t, err)
			assert.Equal(t, tc.kind, orders.KindOf(err))
		})
	}

	it, err := st.Items().Get(ctx, "i-1")
	require.NoError(t, err)
	assert.Equal(t, 1, it.Stock, "rejected orders must not touch stock")
	assert.Zero(t, rec.count(orders.EventOrderCreated))
}

func TestCreateOrderRejectsBadPrice(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	require.NoError(t, st.Items().Insert(ctx, orders.Item{
		ID: "free", OwnerID: "seller", Price: decimal.Zero, Stock: 1, Status: orders.ItemAvailable,
	}))
	svc := &Service{Store: st}

	in := input()
	in.ItemID = "free"
	_, _, err := svc.CreateOrder(ctx, "buyer", in)
	assert.Equal(t, orders.KindValidation, orders.KindOf(err))

	it, err := st.Items().Get(ctx, "free")
	require.NoError(t, err)
	assert.Equal(t, 1, it.Stock)
}

func TestCreateOrderIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	svc, st, rec := newService(t, 5)
	in := input()
	in.IdempotencyKey = "req-1"

	first, existed, err := svc.CreateOrder(ctx, "buyer", in)
	require.NoError(t, err)
	assert.False(t, existed)

	again, existed, err := svc.CreateOrder(ctx, "buyer", in)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, first.ID, again.ID)

	_, _, err = svc.CreateOrder(ctx, "someone-else", in)
	assert.ErrorIs(t, err, orders.ErrIdempotencyKey)

	it, err := st.Items().Get(ctx, "i-1")
	require.NoError(t, err)
	assert.Equal(t, 4, it.Stock)
	assert.Equal(t, 1, rec.count(orders.EventOrderCreated))
}

func TestConcurrentBuyersLastUnit(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newService(t, 0)
	require.NoError(t, st.Items().Insert(ctx, orders.Item{
		ID: "i-2", OwnerID: "seller", Name: "Dunk Low", Price: decimal.NewFromInt(100),
		Stock: 1, Status: orders.ItemAvailable,
	}))
	in := input()
	in.ItemID = "i-2"

	var wg sync.WaitGroup
	buyers := []string{"b1", "b2"}
	errs := make([]error, len(buyers))
	for i, buyer := range buyers {
		wg.Add(1)
		go func(i int, buyer string) {
			defer wg.Done()
			_, _, errs[i] = svc.CreateOrder(ctx, buyer, in)
		}(i, buyer)
	}
	wg.Wait()

	var winner, loser string
	for i, err := range errs {
		if err == nil {
			winner = buyers[i]
		} else {
			loser = buyers[i]
			assert.Equal(t, orders.KindConflict, orders.KindOf(err))
		}
	}
	require.NotEmpty(t, winner)
	require.NotEmpty(t, loser)

	won, err := svc.MyOrders(ctx, winner)
	require.NoError(t, err)
	require.Len(t, won, 1)
	assert.Equal(t, "i-2", won[0].ItemID)
	assert.True(t, decimal.NewFromInt(100).Equal(won[0].TotalAmount), won[0].TotalAmount.String())

	lost, err := st.Orders().ListByBuyer(ctx, loser)
	require.NoError(t, err)
	assert.Empty(t, lost)

	it, err := st.Items().Get(ctx, "i-2")
	require.NoError(t, err)
	assert.Equal(t, 0, it.Stock)
	assert.Equal(t, orders.ItemSold, it.Status)
}

func TestConcurrentBuyersNeverOversell(t *testing.T) {
	const (
		stock  = 7
		buyers = 50
	)
	ctx := context.Background()
	svc, st, rec := newService(t, stock)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, _, err := svc.CreateOrder(ctx, fmt.Sprintf("buyer-%d", i), input()); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, stock, ok)
	assert.Equal(t, stock, rec.count(orders.EventOrderCreated))
	it, err := st.Items().Get(ctx, "i-1")
	require.NoError(t, err)
	assert.Equal(t, 0, it.Stock)
}

func TestGetOrderAndMyOrders(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t, 3)
	clock := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { clock = clock.Add(time.Minute); return clock }

	first, _, err := svc.CreateOrder(ctx, "buyer", input())
	require.NoError(t, err)
	second, _, err := svc.CreateOrder(ctx, "buyer", input())
	require.NoError(t, err)

	got, err := svc.GetOrder(ctx, "seller", first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	_, err = svc.GetOrder(ctx, "stranger", first.ID)
	assert.ErrorIs(t, err, orders.ErrNotOrderParty)
	_, err = svc.GetOrder(ctx, "buyer", "missing")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)

	list, err := svc.MyOrders(ctx, "buyer")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")

	list, err = svc.MyOrders(ctx, "seller")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpdateStatusPermissive(t *testing.T) {
	ctx := context.Background()
	svc, _, rec := newService(t, 1)
	o, _, err := svc.CreateOrder(ctx, "buyer", input())
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(ctx, "seller", o.ID, orders.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusDelivered, updated.Status)
	assert.Equal(t, 2, updated.Version)

	// permissive: terminal states can still be left
	updated, err = svc.UpdateStatus(ctx, "buyer", o.ID, orders.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, updated.Status)

	// same status is a no-op without an event
	_, err = svc.UpdateStatus(ctx, "buyer", o.ID, orders.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.count(orders.EventOrderStatusChanged))

	_, err = svc.UpdateStatus(ctx, "stranger", o.ID, orders.StatusCancelled)
	assert.ErrorIs(t, err, orders.ErrNotOrderParty)
	_, err = svc.UpdateStatus(ctx, "buyer", o.ID, orders.Status("LOST"))
	assert.Equal(t, orders.KindValidation, orders.KindOf(err))
}

func TestUpdateStatusStrict(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t, 1)
	svc.Policy = orders.TransitionsStrict
	o, _, err := svc.CreateOrder(ctx, "buyer", input())
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, "seller", o.ID, orders.StatusShipped)
	assert.Equal(t, orders.KindConflict, orders.KindOf(err))

	for _, s := range []orders.Status{orders.StatusConfirmed, orders.StatusShipped, orders.StatusDelivered} {
		_, err = svc.UpdateStatus(ctx, "seller", o.ID, s)
		require.NoError(t, err, s)
	}
	_, err = svc.UpdateStatus(ctx, "buyer", o.ID, orders.StatusCancelled)
	assert.Equal(t, orders.KindConflict, orders.KindOf(err))
}

func TestUpdateStatusConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newService(t, 1)
	o, _, err := svc.CreateOrder(ctx, "buyer", input())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, s := range []orders.Status{orders.StatusConfirmed, orders.StatusCancelled, orders.StatusShipped} {
		wg.Add(1)
		go func(s orders.Status) {
			defer wg.Done()
			_, _ = svc.UpdateStatus(ctx, "seller", o.ID, s)
		}(s)
	}
	wg.Wait()

	got, err := st.Orders().Get(ctx, o.ID)
	require.NoError(t, err)
	assert.NotEqual(t, orders.StatusPending, got.Status)
	assert.GreaterOrEqual(t, got.Version, 2)
}
