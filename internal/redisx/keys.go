package redisx

import "time"

const (
	// Idempotent order creation: idem:order:create:{user_id}:{idempotency_key} -> response body
	KeyIdemOrderCreate = "idem:order:create:%s:%s"

	// Tracking cache: order_status:{order_id} -> {"orderNumber": "...", "status": "...", "updatedAt": "..."}
	KeyOrderStatus = "order_status:%s"

	// Event dedup: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Products flagged Low Stock / Out of Stock by the stock watcher (set of product ids)
	KeyLowStock = "inventory:low_stock"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour

	// A claimed key that is never completed or released frees itself after this.
	TTLIdempotencyPending = time.Minute
)
