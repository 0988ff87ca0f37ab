// Package redisx wires Redis into the purchase feed fan-out and the checkout
// idempotency guard.
package redisx

import (
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// FeedChannel carries one JSON-encoded feed entry per published message.
	FeedChannel = "purchases.feed"

	// keyIdemCheckout maps a client Idempotency-Key to the order id it
	// produced: idem:checkout:{key} -> order_id.
	keyIdemCheckout = "idem:checkout:%s"
)

// TTLIdempotency bounds how long a checkout idempotency key is honored.
var TTLIdempotency = 24 * time.Hour

// New creates a Redis client for the given address.
func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}
