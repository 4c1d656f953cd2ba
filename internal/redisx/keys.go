package redisx

import "time"

const (
	// Idempotency create order: idem:order:create:{key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s"

	// Order cache: order:{order_id} -> order JSON
	KeyOrder = "order:%s"

	// Item availability read model: item_availability:{item_id} -> {"stock":..,"status":..}
	KeyItemAvailability = "item_availability:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency  = 24 * time.Hour
	TTLOrderCache   = 5 * time.Minute
	TTLAvailability = 10 * time.Minute
	TTLDedup        = 48 * time.Hour
)
