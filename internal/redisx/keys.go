package redisx

import "time"

const (
	// Pending order awaiting payment confirmation: pending_order:{transaction_id} -> PendingOrder JSON
	KeyPendingOrder = "pending_order:%s"

	// Sorted set of pending transaction ids scored by creation unix time, scanned by the sweeper.
	KeyPendingIndex = "pending_orders:by_created"

	// Cache of a confirmed order: order:{order_id} -> ConfirmedOrder JSON
	KeyOrder = "order:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLOrderCache = 5 * time.Minute
	TTLDedup      = 48 * time.Hour
)
