// Package orderflow creates purchase orders against the inventory ledger and
// manages their status.
package orderflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ariefcatur/go-inventory-trades/internal/inventory"
	"github.com/ariefcatur/go-inventory-trades/internal/orders"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxStatusAttempts bounds the optimistic retry loop in UpdateStatus.
const maxStatusAttempts = 3

type CreateOrderInput struct {
	ItemID          string `json:"item_id"`
	ShippingAddress string `json:"shipping_address"`
	PhoneNumber     string `json:"phone_number"`
	IdempotencyKey  string `json:"-"`
}

type Service struct {
	Store  orders.Store
	Ledger inventory.Ledger
	Events orders.Emitter
	Policy orders.TransitionPolicy
	Log    *zap.Logger
	Now    func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) events() orders.Emitter {
	if s.Events == nil {
		return orders.NopEmitter{}
	}
	return s.Events
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// CreateOrder reserves one unit of the item and records the order in the same
// transaction: either both happen or neither does. existed=true means the
// idempotency key matched an earlier order, which is returned unchanged.
func (s *Service) CreateOrder(ctx context.Context, buyerID string, in CreateOrderInput) (o orders.Order, existed bool, err error) {
	buyerID = strings.TrimSpace(buyerID)
	in.ItemID = strings.TrimSpace(in.ItemID)
	in.ShippingAddress = strings.TrimSpace(in.ShippingAddress)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)

	switch {
	case buyerID == "":
		return orders.Order{}, false, orders.Errorf(orders.KindValidation, "caller identity is required")
	case in.ItemID == "":
		return orders.Order{}, false, orders.Errorf(orders.KindValidation, "item id is required")
	case in.ShippingAddress == "":
		return orders.Order{}, false, orders.Errorf(orders.KindValidation, "shipping address is required")
	case in.PhoneNumber == "":
		return orders.Order{}, false, orders.Errorf(orders.KindValidation, "phone number is required")
	}

	if in.IdempotencyKey != "" {
		if prev, ok, err := s.byIdempotencyKey(ctx, buyerID, in.IdempotencyKey); err != nil || ok {
			return prev, ok, err
		}
	}

	var reserved orders.Item
	err = s.Store.WithTx(ctx, func(tx orders.Tx) error {
		it, err := tx.Items().Get(ctx, in.ItemID)
		if err != nil {
			return err
		}
		if it.Status != orders.ItemAvailable {
			return orders.ErrItemNotAvailable
		}
		if it.OwnerID == buyerID {
			return orders.Errorf(orders.KindValidation, "you cannot buy your own item")
		}
		if !it.Price.IsPositive() {
			return orders.Errorf(orders.KindValidation, "invalid item price")
		}

		reserved, err = s.Ledger.Reserve(ctx, tx.Items(), it.ID, 1)
		if err != nil {
			return err
		}

		o = orders.Order{
			ID:              uuid.NewString(),
			ExternalID:      in.IdempotencyKey,
			BuyerID:         buyerID,
			SellerID:        reserved.OwnerID,
			ItemID:          reserved.ID,
			TotalAmount:     reserved.Price,
			ShippingAddress: in.ShippingAddress,
			PhoneNumber:     in.PhoneNumber,
			Status:          orders.StatusPending,
			OrderDate:       s.now(),
		}
		return tx.Orders().Insert(ctx, o)
	})
	if errors.Is(err, orders.ErrIdempotencyKey) {
		// lost a race with a concurrent request carrying the same key
		prev, ok, lookupErr := s.byIdempotencyKey(ctx, buyerID, in.IdempotencyKey)
		if lookupErr != nil || ok {
			return prev, ok, lookupErr
		}
	}
	if err != nil {
		return orders.Order{}, false, err
	}
	o.Version = 1
	o.UpdatedAt = o.OrderDate

	s.log().Info("order created",
		zap.String("order_id", o.ID),
		zap.String("item_id", o.ItemID),
		zap.String("buyer_id", o.BuyerID),
		zap.Int("stock_left", reserved.Stock),
	)
	s.events().Emit(ctx, orders.TopicOrderCreated, orders.EventOrderCreated, o.ID, orders.OrderCreatedPayload{
		OrderID:     o.ID,
		ExternalID:  o.ExternalID,
		BuyerID:     o.BuyerID,
		SellerID:    o.SellerID,
		ItemID:      o.ItemID,
		TotalAmount: o.TotalAmount,
		ItemStock:   reserved.Stock,
		ItemStatus:  reserved.Status,
		ItemVersion: reserved.Version,
	})
	return o, false, nil
}

func (s *Service) byIdempotencyKey(ctx context.Context, buyerID, key string) (orders.Order, bool, error) {
	prev, err := s.Store.Orders().GetByExternalID(ctx, key)
	if errors.Is(err, orders.ErrOrderNotFound) {
		return orders.Order{}, false, nil
	}
	if err != nil {
		return orders.Order{}, false, err
	}
	if prev.BuyerID != buyerID {
		return orders.Order{}, false, orders.ErrIdempotencyKey
	}
	return prev, true, nil
}

// GetOrder is visible to the order's buyer and seller only.
func (s *Service) GetOrder(ctx context.Context, callerID, orderID string) (orders.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return orders.Order{}, orders.Errorf(orders.KindValidation, "order id is required")
	}
	o, err := s.Store.Orders().Get(ctx, orderID)
	if err != nil {
		return orders.Order{}, err
	}
	if !o.IsParty(callerID) {
		return orders.Order{}, orders.ErrNotOrderParty
	}
	return o, nil
}

// MyOrders lists the caller's purchases, newest first.
func (s *Service) MyOrders(ctx context.Context, buyerID string) ([]orders.Order, error) {
	if strings.TrimSpace(buyerID) == "" {
		return nil, orders.Errorf(orders.KindValidation, "caller identity is required")
	}
	return s.Store.Orders().ListByBuyer(ctx, buyerID)
}

// UpdateStatus moves the order to status under the configured transition
// policy. The write is a compare-and-set on the order version; when the sweep
// or another request wins the race the order is re-read and re-checked.
func (s *Service) UpdateStatus(ctx context.Context, callerID, orderID string, status orders.Status) (orders.Order, error) {
	if !status.Valid() {
		return orders.Order{}, orders.Errorf(orders.KindValidation, "invalid order status %q", status)
	}
	for attempt := 1; attempt <= maxStatusAttempts; attempt++ {
		cur, err := s.GetOrder(ctx, callerID, orderID)
		if err != nil {
			return orders.Order{}, err
		}
		if cur.Status == status {
			return cur, nil
		}
		if !s.Policy.Allows(cur.Status, status) {
			return orders.Order{}, orders.Errorf(orders.KindConflict, "cannot change order status from %s to %s", cur.Status, status)
		}

		updated, err := s.Store.Orders().CompareAndSetStatus(ctx, cur.ID, cur.Version, status)
		if errors.Is(err, orders.ErrVersionConflict) {
			s.log().Debug("order status write lost race, retrying",
				zap.String("order_id", cur.ID), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return orders.Order{}, err
		}

		s.events().Emit(ctx, orders.TopicOrderStatusChanged, orders.EventOrderStatusChanged, updated.ID,
			orders.OrderStatusChangedPayload{OrderID: updated.ID, From: cur.Status, To: updated.Status, Source: "api"})
		return updated, nil
	}
	return orders.Order{}, orders.ErrVersionConflict
}
