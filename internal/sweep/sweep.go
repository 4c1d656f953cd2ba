// Package sweep force-advances orders that have sat in PENDING or SHIPPED for
// longer than a threshold.
package sweep

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-inventory-trades/internal/orders"
	"go.uber.org/zap"
)

const (
	DefaultInterval  = time.Hour
	DefaultThreshold = 72 * time.Hour
)

// staleStatuses are the only statuses a sweep touches; DELIVERED and
// CANCELLED orders never match, so repeated passes are no-ops for them.
var staleStatuses = []orders.Status{orders.StatusPending, orders.StatusShipped}

type Result struct {
	Scanned   int `json:"scanned"`
	Delivered int `json:"delivered"`
	Skipped   int `json:"skipped"` // changed concurrently, left alone
	Failed    int `json:"failed"`
}

// OrderCache receives every order the sweep delivers, so a cached copy never
// outlives the write even when no event consumer is running.
type OrderCache interface {
	PutOrder(ctx context.Context, o orders.Order) error
	EvictOrder(ctx context.Context, id string) error
}

type Sweeper struct {
	Orders    orders.OrderRepo
	Cache     OrderCache
	Events    orders.Emitter
	Log       *zap.Logger
	Clock     Clock
	Interval  time.Duration
	Threshold time.Duration
}

func (s *Sweeper) clock() Clock {
	if s.Clock == nil {
		return RealClock{}
	}
	return s.Clock
}

func (s *Sweeper) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Sweeper) threshold() time.Duration {
	if s.Threshold <= 0 {
		return DefaultThreshold
	}
	return s.Threshold
}

func (s *Sweeper) interval() time.Duration {
	if s.Interval <= 0 {
		return DefaultInterval
	}
	return s.Interval
}

// RunOnce performs one pass. Failures on single orders are logged and counted;
// only a failure to list candidates is returned.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	cutoff := s.clock().Now().Add(-s.threshold())

	stale, err := s.Orders.ListStale(ctx, staleStatuses, cutoff)
	if err != nil {
		return res, err
	}
	res.Scanned = len(stale)

	for _, o := range stale {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		updated, err := s.Orders.CompareAndSetStatus(ctx, o.ID, o.Version, orders.StatusDelivered)
		switch {
		case errors.Is(err, orders.ErrVersionConflict):
			// someone else moved it since we listed; their write wins
			res.Skipped++
			continue
		case err != nil:
			res.Failed++
			s.log().Warn("sweep: deliver order", zap.String("order_id", o.ID), zap.Error(err))
			continue
		}
		res.Delivered++
		if s.Cache != nil {
			if err := s.Cache.PutOrder(ctx, updated); err != nil {
				s.log().Warn("sweep: refresh cached order", zap.String("order_id", updated.ID), zap.Error(err))
				_ = s.Cache.EvictOrder(ctx, updated.ID)
			}
		}
		if s.Events != nil {
			s.Events.Emit(ctx, orders.TopicOrderStatusChanged, orders.EventOrderStatusChanged, updated.ID,
				orders.OrderStatusChangedPayload{OrderID: updated.ID, From: o.Status, To: updated.Status, Source: "sweep"})
		}
	}

	if res.Delivered > 0 || res.Failed > 0 {
		s.log().Info("sweep finished",
			zap.Int("scanned", res.Scanned),
			zap.Int("delivered", res.Delivered),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed),
		)
	}
	return res, nil
}

// Start runs a pass every interval until ctx is done. A failed pass is logged
// and the next tick tries again.
func (s *Sweeper) Start(ctx context.Context) {
	s.log().Info("sweep scheduler started",
		zap.Duration("interval", s.interval()),
		zap.Duration("threshold", s.threshold()),
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock().After(s.interval()):
		}
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.log().Error("sweep pass failed", zap.Error(err))
		}
	}
}
