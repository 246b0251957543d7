package orders

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ariefcatur/go-food-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// OrderCache is a read-through cache for single-order lookups. Misses and
// redis errors both fall back to the ledger.
type OrderCache struct{ Redis *redis.Client }

func (c *OrderCache) Get(ctx context.Context, id string) (ConfirmedOrder, bool) {
	var o ConfirmedOrder
	b, err := c.Redis.Get(ctx, fmt.Sprintf(redisx.KeyOrder, id)).Bytes()
	if err != nil || len(b) == 0 {
		return o, false
	}
	if err := json.Unmarshal(b, &o); err != nil {
		return o, false
	}
	return o, true
}

func (c *OrderCache) Set(ctx context.Context, o ConfirmedOrder) error {
	b, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return c.Redis.Set(ctx, fmt.Sprintf(redisx.KeyOrder, o.ID), b, redisx.TTLOrderCache).Err()
}
