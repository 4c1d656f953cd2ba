package orders

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventTradeProposed      = "TradeProposed"
	EventTradeAccepted      = "TradeAccepted"
	EventTradeDeclined      = "TradeDeclined"
	EventTradeCancelled     = "TradeCancelled"
)

const envelopeVersion = 1

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the consts above
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "trade-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order or trade id
	Payload       json.RawMessage `json:"payload"`
}

// ---- payloads ----

type OrderCreatedPayload struct {
	OrderID     string          `json:"order_id"`
	ExternalID  string          `json:"external_id,omitempty"`
	BuyerID     string          `json:"buyer_id"`
	SellerID    string          `json:"seller_id"`
	ItemID      string          `json:"item_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`

	// item state right after the reservation
	ItemStock   int        `json:"item_stock"`
	ItemStatus  ItemStatus `json:"item_status"`
	ItemVersion int        `json:"item_version"`
}

type OrderStatusChangedPayload struct {
	OrderID string `json:"order_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
	Source  string `json:"source"` // api | sweep
}

type TradePayload struct {
	TradeID         string      `json:"trade_id"`
	RequesterID     string      `json:"requester_id"`
	OwnerID         string      `json:"owner_id"`
	OfferedItemID   string      `json:"offered_item_id"`
	RequestedItemID string      `json:"requested_item_id"`
	Status          TradeStatus `json:"status"`
}

func NewTradePayload(t Trade) TradePayload {
	return TradePayload{
		TradeID:         t.ID,
		RequesterID:     t.RequesterID,
		OwnerID:         t.OwnerID,
		OfferedItemID:   t.OfferedItemID,
		RequestedItemID: t.RequestedItemID,
		Status:          t.Status,
	}
}

// NewEnvelope wraps payload into a v1 envelope.
func NewEnvelope(producer, eventType, correlationID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  envelopeVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       b,
	}, nil
}

// Emitter publishes domain events after the owning transaction committed.
type Emitter interface {
	Emit(ctx context.Context, topic, eventType, correlationID string, payload any)
}

type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, string, string, string, any) {}

// Publisher is satisfied by the kafka producer.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

type traceKey struct{}

// WithTraceID attaches the inbound request id so emitted envelopes carry it.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

func traceID(ctx context.Context) string {
	s, _ := ctx.Value(traceKey{}).(string)
	return s
}

// EventSink turns domain events into envelopes on a Publisher.
type EventSink struct {
	Producer Publisher
	Service  string
	Log      *zap.Logger
}

func (s *EventSink) Emit(ctx context.Context, topic, eventType, correlationID string, payload any) {
	env, err := NewEnvelope(s.Service, eventType, correlationID, payload)
	if err != nil {
		s.Log.Error("encode event", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	env.TraceID = traceID(ctx)
	b, err := json.Marshal(env)
	if err != nil {
		s.Log.Error("encode envelope", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	s.Producer.Publish(topic, PartitionKey(correlationID), b,
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(envelopeVersion))},
	)
}
