package redisx

import "time"

const (
	// Checkout idempotency: idem:checkout:{idempotency_key} -> order external_id
	KeyIdemCheckout = "idem:checkout:%s"

	// Cached order view: order_status:{external_id} -> {"status": "...", "payment_status": "..."}
	KeyOrderStatus = "order_status:%s"

	// Newest order version (updated_at, unix micros) seen by an invalidation: order_status_fence:{external_id}
	KeyOrderStatusFence = "order_status_fence:%s"

	// Processed event marker: dedup:{scope}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 72 * time.Hour
)
