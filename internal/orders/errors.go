package orders

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindAuthorization
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindAuthorization:
		return "authorization"
	default:
		return "internal"
	}
}

// Error is a domain failure that callers are expected to see.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns KindInternal for errors that did not originate here.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

var (
	ErrItemNotFound  = &Error{Kind: KindNotFound, Msg: "item not found"}
	ErrOrderNotFound = &Error{Kind: KindNotFound, Msg: "order not found"}
	ErrTradeNotFound = &Error{Kind: KindNotFound, Msg: "trade not found"}

	ErrOutOfStock       = &Error{Kind: KindConflict, Msg: "item is out of stock"}
	ErrItemNotAvailable = &Error{Kind: KindConflict, Msg: "item is not available for purchase"}
	ErrTradeNotPending  = &Error{Kind: KindConflict, Msg: "trade is no longer pending"}
	ErrTradeStale       = &Error{Kind: KindConflict, Msg: "trade declined: an item is no longer available"}
	ErrDuplicateTrade   = &Error{Kind: KindConflict, Msg: "a pending trade request for these items already exists"}
	ErrVersionConflict  = &Error{Kind: KindConflict, Msg: "record was modified concurrently"}
	ErrIdempotencyKey   = &Error{Kind: KindConflict, Msg: "idempotency key already used"}

	ErrNotOrderParty = &Error{Kind: KindAuthorization, Msg: "order belongs to another user"}
	ErrNotTradeOwner = &Error{Kind: KindAuthorization, Msg: "only the trade owner can resolve it"}
	ErrNotRequester  = &Error{Kind: KindAuthorization, Msg: "only the requester can cancel a trade"}
)
