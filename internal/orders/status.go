package orders

import "strings"

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusShipped: true, StatusCancelled: true},
	StatusShipped:   {StatusDelivered: true, StatusCancelled: true},
	StatusDelivered: {},
	StatusCancelled: {},
}

// CanTransition applies the strict order lifecycle:
// PENDING -> CONFIRMED -> SHIPPED -> DELIVERED, any non-terminal -> CANCELLED.
func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// ParseStatus accepts any casing, e.g. "shipped".
func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", Errorf(KindValidation, "invalid order status %q", v)
	}
	return s, nil
}

// TransitionPolicy decides whether an order may move between two statuses.
type TransitionPolicy string

const (
	// TransitionsPermissive lets any status follow any other.
	TransitionsPermissive TransitionPolicy = "permissive"
	TransitionsStrict     TransitionPolicy = "strict"
)

// ParseTransitionPolicy accepts "permissive" or "strict" in any casing.
func ParseTransitionPolicy(v string) (TransitionPolicy, error) {
	p := TransitionPolicy(strings.ToLower(strings.TrimSpace(v)))
	switch p {
	case TransitionsPermissive, TransitionsStrict:
		return p, nil
	}
	return "", Errorf(KindValidation, "invalid transition policy %q", v)
}

func (p TransitionPolicy) Allows(from, to Status) bool {
	if p == TransitionsStrict {
		return CanTransition(from, to)
	}
	return true
}

type ItemStatus string

const (
	ItemAvailable ItemStatus = "AVAILABLE"
	ItemSold      ItemStatus = "SOLD"
	ItemReserved  ItemStatus = "RESERVED"
)

// StatusForStock returns the status an item must carry after its stock
// is set to stock, given its current status.
func StatusForStock(current ItemStatus, stock int) ItemStatus {
	switch {
	case stock == 0:
		return ItemSold
	case current == ItemSold:
		return ItemAvailable
	default:
		return current
	}
}

type TradeStatus string

const (
	TradePending   TradeStatus = "PENDING"
	TradeAccepted  TradeStatus = "ACCEPTED"
	TradeDeclined  TradeStatus = "DECLINED"
	TradeCancelled TradeStatus = "CANCELLED"
)
