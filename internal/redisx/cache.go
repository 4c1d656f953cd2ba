package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-inventory-trades/internal/orders"
	"github.com/redis/go-redis/v9"
)

// Cache is a best-effort layer: the database stays the source of truth, so
// read misses and write failures are never fatal. A nil *Cache is a no-op.
type Cache struct {
	R *redis.Client
}

func (c *Cache) enabled() bool { return c != nil && c.R != nil }

type Availability struct {
	ItemID    string            `json:"item_id"`
	Stock     int               `json:"stock"`
	Status    orders.ItemStatus `json:"status"`
	Version   int               `json:"version"` // item version the snapshot was taken at
	UpdatedAt time.Time         `json:"updated_at"`
}

// putIfNewer stores ARGV[1] unless the cached document carries a higher
// "version" than ARGV[2].
var putIfNewer = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
  local ok, doc = pcall(cjson.decode, cur)
  if ok and type(doc) == 'table' and tonumber(doc.version) and tonumber(doc.version) > tonumber(ARGV[2]) then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

func (c *Cache) getJSON(ctx context.Context, key string, out any) bool {
	if !c.enabled() {
		return false
	}
	b, err := c.R.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(b, out) == nil
}

// setIfNewer reports whether v was written.
func (c *Cache) setIfNewer(ctx context.Context, key string, version int, v any, ttl time.Duration) (bool, error) {
	if !c.enabled() {
		return false, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	n, err := putIfNewer.Run(ctx, c.R, []string{key}, b, version, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *Cache) GetOrder(ctx context.Context, id string) (orders.Order, bool) {
	var o orders.Order
	ok := c.getJSON(ctx, fmt.Sprintf(KeyOrder, id), &o)
	return o, ok
}

// PutOrder caches o unless a newer version of the order is already cached.
func (c *Cache) PutOrder(ctx context.Context, o orders.Order) error {
	_, err := c.setIfNewer(ctx, fmt.Sprintf(KeyOrder, o.ID), o.Version, o, TTLOrderCache)
	return err
}

func (c *Cache) EvictOrder(ctx context.Context, id string) error {
	if !c.enabled() {
		return nil
	}
	return c.R.Del(ctx, fmt.Sprintf(KeyOrder, id)).Err()
}

func (c *Cache) GetAvailability(ctx context.Context, itemID string) (Availability, bool) {
	var a Availability
	ok := c.getJSON(ctx, fmt.Sprintf(KeyItemAvailability, itemID), &a)
	return a, ok
}

// PutAvailability keeps the snapshot with the highest item version.
func (c *Cache) PutAvailability(ctx context.Context, a Availability) (bool, error) {
	return c.setIfNewer(ctx, fmt.Sprintf(KeyItemAvailability, a.ItemID), a.Version, a, TTLAvailability)
}

// LookupIdempotency returns the order id remembered for key.
func (c *Cache) LookupIdempotency(ctx context.Context, key string) (string, bool) {
	if !c.enabled() || key == "" {
		return "", false
	}
	id, err := c.R.Get(ctx, fmt.Sprintf(KeyIdemOrderCreate, key)).Result()
	if err != nil || id == "" {
		return "", false
	}
	return id, true
}

func (c *Cache) RememberIdempotency(ctx context.Context, key, orderID string) error {
	if !c.enabled() || key == "" {
		return nil
	}
	return c.R.Set(ctx, fmt.Sprintf(KeyIdemOrderCreate, key), orderID, TTLIdempotency).Err()
}

// MarkSeen records an event id for service and reports whether this was the
// first sighting. SETNX makes the check-and-mark atomic across workers.
func (c *Cache) MarkSeen(ctx context.Context, service, eventID string) (bool, error) {
	if !c.enabled() {
		return true, nil
	}
	first, err := c.R.SetNX(ctx, fmt.Sprintf(KeyDedup, service, eventID), "1", TTLDedup).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	return first, nil
}

// Forget drops a dedup mark so a failed event can be processed again.
func (c *Cache) Forget(ctx context.Context, service, eventID string) error {
	if !c.enabled() {
		return nil
	}
	return c.R.Del(ctx, fmt.Sprintf(KeyDedup, service, eventID)).Err()
}
