package inventory

import (
	"context"
	"encoding/json"
	"time"

	kafkax "github.com/ariefcatur/go-inventory-trades/internal/kafka"
	"github.com/ariefcatur/go-inventory-trades/internal/orders"
	"github.com/ariefcatur/go-inventory-trades/internal/redisx"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ProjectorTopics are the topics the availability projector consumes.
var ProjectorTopics = []string{orders.TopicOrderCreated, orders.TopicOrderStatusChanged}

// Projector keeps the redis read model in line with committed events: item
// availability after each reservation, and order cache eviction after each
// status change (including the ones made by the sweep).
type Projector struct {
	Cache       *redisx.Cache
	ServiceName string
	Log         *zap.Logger
}

func (p *Projector) log() *zap.Logger {
	if p.Log == nil {
		return zap.NewNop()
	}
	return p.Log
}

// HandleMessage is installed as the consumer handler.
func (p *Projector) HandleMessage(ctx context.Context, m kafkago.Message) error {
	// 1) decode envelope
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		p.log().Warn("drop malformed event", zap.String("topic", m.Topic), zap.Error(err))
		return nil // poison message: commit and move on
	}

	// 2) dedup by event_id
	first, err := p.Cache.MarkSeen(ctx, p.ServiceName, env.EventID)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	// 3) apply; on failure release the dedup mark so a redelivery is processed
	if err := p.apply(ctx, env); err != nil {
		_ = p.Cache.Forget(ctx, p.ServiceName, env.EventID)
		return err
	}
	return nil
}

func (p *Projector) apply(ctx context.Context, env orders.Envelope) error {
	switch env.EventType {
	case orders.EventOrderCreated:
		pl, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
		if err != nil {
			p.log().Warn("drop undecodable payload", zap.String("event_id", env.EventID), zap.Error(err))
			return nil
		}
		// events for one item arrive on different partitions; the version
		// check keeps an earlier reservation from overwriting a later one
		stored, err := p.Cache.PutAvailability(ctx, redisx.Availability{
			ItemID:    pl.ItemID,
			Stock:     pl.ItemStock,
			Status:    pl.ItemStatus,
			Version:   pl.ItemVersion,
			UpdatedAt: env.OccurredAt,
		})
		if err == nil && !stored {
			p.log().Debug("skip stale availability",
				zap.String("item_id", pl.ItemID), zap.Int("item_version", pl.ItemVersion))
		}
		return err
	case orders.EventOrderStatusChanged:
		pl, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			p.log().Warn("drop undecodable payload", zap.String("event_id", env.EventID), zap.Error(err))
			return nil
		}
		return p.Cache.EvictOrder(ctx, pl.OrderID)
	default:
		return nil // ignore
	}
}

// AvailabilityOf builds the read-model record for a freshly loaded item.
func AvailabilityOf(it orders.Item) redisx.Availability {
	return redisx.Availability{
		ItemID:    it.ID,
		Stock:     it.Stock,
		Status:    it.Status,
		Version:   it.Version,
		UpdatedAt: time.Now().UTC(),
	}
}
