package redisx

import "time"

const (
	// Idempotency create order: idem:order:create:{customer_id}:{key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s:%s"

	// Cache status order: order_status:{order_id} -> {"status": "...", "payment_status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Payment attempts per customer: ratelimit:payment:{customer_id}
	KeyPaymentAttempts = "ratelimit:payment:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
	// TTLIdemPending bounds how long an in-flight create blocks retries with the same key.
	TTLIdemPending = 30 * time.Second
)
