// Package tradeflow proposes and resolves barter trades between two owners'
// items. Accepting a trade only records agreement; item ownership is not
// exchanged here.
package tradeflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ariefcatur/go-inventory-trades/internal/orders"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxMessageLength is counted in characters, not bytes.
const MaxMessageLength = 500

type CreateTradeInput struct {
	OfferedItemID   string `json:"offered_item_id"`
	RequestedItemID string `json:"requested_item_id"`
	Message         string `json:"message"`
}

type Service struct {
	Store  orders.Store
	Events orders.Emitter
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

// TruncateMessage trims surrounding space and cuts to MaxMessageLength characters.
func TruncateMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	if utf8.RuneCountInString(msg) <= MaxMessageLength {
		return msg
	}
	return string([]rune(msg)[:MaxMessageLength])
}

func (s *Service) CreateTrade(ctx context.Context, requesterID string, in CreateTradeInput) (orders.Trade, error) {
	requesterID = strings.TrimSpace(requesterID)
	in.OfferedItemID = strings.TrimSpace(in.OfferedItemID)
	in.RequestedItemID = strings.TrimSpace(in.RequestedItemID)

	switch {
	case requesterID == "":
		return orders.Trade{}, orders.Errorf(orders.KindValidation, "caller identity is required")
	case in.OfferedItemID == "":
		return orders.Trade{}, orders.Errorf(orders.KindValidation, "offered item id is required")
	case in.RequestedItemID == "":
		return orders.Trade{}, orders.Errorf(orders.KindValidation, "requested item id is required")
	case in.OfferedItemID == in.RequestedItemID:
		return orders.Trade{}, orders.Errorf(orders.KindValidation, "cannot trade an item for itself")
	}

	var t orders.Trade
	err := s.Store.WithTx(ctx, func(tx orders.Tx) error {
		offered, err := tx.Items().Get(ctx, in.OfferedItemID)
		if err != nil {
			return fmt.Errorf("offered %w", err)
		}
		requested, err := tx.Items().Get(ctx, in.RequestedItemID)
		if err != nil {
			return fmt.Errorf("requested %w", err)
		}

		if offered.OwnerID != requesterID {
			return orders.Errorf(orders.KindAuthorization, "you can only offer your own items")
		}
		if requested.OwnerID == requesterID {
			return orders.Errorf(orders.KindValidation, "you cannot trade with yourself")
		}
		if offered.Stock <= 0 {
			return fmt.Errorf("offered %w", orders.ErrOutOfStock)
		}
		if requested.Stock <= 0 {
			return fmt.Errorf("requested %w", orders.ErrOutOfStock)
		}

		dup, err := tx.Trades().HasPending(ctx, requesterID, offered.ID, requested.ID)
		if err != nil {
			return err
		}
		if dup {
			return orders.ErrDuplicateTrade
		}

		now := s.now()
		t = orders.Trade{
			ID:              uuid.NewString(),
			RequesterID:     requesterID,
			OwnerID:         requested.OwnerID,
			OfferedItemID:   offered.ID,
			RequestedItemID: requested.ID,
			Status:          orders.TradePending,
			Message:         TruncateMessage(in.Message),
			CreatedAt:       now,
			UpdatedAt:       now,
			Version:         1,
		}
		return tx.Trades().Insert(ctx, t)
	})
	if err != nil {
		return orders.Trade{}, err
	}

	s.log().Info("trade proposed",
		zap.String("trade_id", t.ID),
		zap.String("requester_id", t.RequesterID),
		zap.String("owner_id", t.OwnerID),
	)
	s.events().Emit(ctx, orders.TopicTradeProposed, orders.EventTradeProposed, t.ID, orders.NewTradePayload(t))
	return t, nil
}

func (s *Service) ReceivedTrades(ctx context.Context, ownerID string) ([]orders.Trade, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, orders.Errorf(orders.KindValidation, "caller identity is required")
	}
	return s.Store.Trades().ListByOwner(ctx, ownerID)
}

func (s *Service) SentTrades(ctx context.Context, requesterID string) ([]orders.Trade, error) {
	if strings.TrimSpace(requesterID) == "" {
		return nil, orders.Errorf(orders.KindValidation, "caller identity is required")
	}
	return s.Store.Trades().ListByRequester(ctx, requesterID)
}

// AcceptTrade re-reads both items inside the transaction. If either has sold
// out since the proposal the trade is declined instead, that decline is
// committed, and ErrTradeStale is returned alongside the declined trade.
func (s *Service) AcceptTrade(ctx context.Context, callerID, tradeID string) (orders.Trade, error) {
	return s.resolve(ctx, callerID, tradeID, ownerOnly, func(ctx context.Context, tx orders.Tx, t orders.Trade) (orders.TradeStatus, error) {
		for _, id := range []string{t.OfferedItemID, t.RequestedItemID} {
			it, err := tx.Items().GetForShare(ctx, id)
			if errors.Is(err, orders.ErrItemNotFound) {
				return orders.TradeDeclined, orders.ErrTradeStale
			}
			if err != nil {
				return "", err
			}
			if it.Stock <= 0 {
				return orders.TradeDeclined, orders.ErrTradeStale
			}
		}
		return orders.TradeAccepted, nil
	})
}

func (s *Service) DeclineTrade(ctx context.Context, callerID, tradeID string) (orders.Trade, error) {
	return s.resolve(ctx, callerID, tradeID, ownerOnly, func(context.Context, orders.Tx, orders.Trade) (orders.TradeStatus, error) {
		return orders.TradeDeclined, nil
	})
}

// CancelTrade lets the requester withdraw a proposal that is still pending.
func (s *Service) CancelTrade(ctx context.Context, callerID, tradeID string) (orders.Trade, error) {
	return s.resolve(ctx, callerID, tradeID, requesterOnly, func(context.Context, orders.Tx, orders.Trade) (orders.TradeStatus, error) {
		return orders.TradeCancelled, nil
	})
}

func ownerOnly(t orders.Trade, callerID string) error {
	if t.OwnerID != callerID {
		return orders.ErrNotTradeOwner
	}
	return nil
}

func requesterOnly(t orders.Trade, callerID string) error {
	if t.RequesterID != callerID {
		return orders.ErrNotRequester
	}
	return nil
}

// decideFunc picks the target status. A non-nil outcome error is reported to
// the caller after the transition is committed.
type decideFunc func(ctx context.Context, tx orders.Tx, t orders.Trade) (orders.TradeStatus, error)

func (s *Service) resolve(ctx context.Context, callerID, tradeID string, authorize func(orders.Trade, string) error, decide decideFunc) (orders.Trade, error) {
	if strings.TrimSpace(callerID) == "" {
		return orders.Trade{}, orders.Errorf(orders.KindValidation, "caller identity is required")
	}
	if strings.TrimSpace(tradeID) == "" {
		return orders.Trade{}, orders.Errorf(orders.KindValidation, "trade id is required")
	}

	var (
		updated orders.Trade
		outcome error
	)
	err := s.Store.WithTx(ctx, func(tx orders.Tx) error {
		t, err := tx.Trades().GetForUpdate(ctx, tradeID)
		if err != nil {
			return err
		}
		if err := authorize(t, callerID); err != nil {
			return err
		}
		if t.Status != orders.TradePending {
			return orders.ErrTradeNotPending
		}

		to, res := decide(ctx, tx, t)
		if to == "" {
			return res
		}
		outcome = res

		updated, err = tx.Trades().CompareAndSetStatus(ctx, t.ID, t.Version, to)
		return err
	})
	if err != nil {
		return orders.Trade{}, err
	}

	s.log().Info("trade resolved",
		zap.String("trade_id", updated.ID),
		zap.String("status", string(updated.Status)),
		zap.Bool("stale", outcome != nil),
	)
	s.events().Emit(ctx, orders.TopicTradeResolved, tradeEvent(updated.Status), updated.ID, orders.NewTradePayload(updated))
	return updated, outcome
}

func tradeEvent(st orders.TradeStatus) string {
	switch st {
	case orders.TradeAccepted:
		return orders.EventTradeAccepted
	case orders.TradeCancelled:
		return orders.EventTradeCancelled
	default:
		return orders.EventTradeDeclined
	}
}
