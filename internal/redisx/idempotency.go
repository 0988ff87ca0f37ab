package redisx

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// IdempotencyStore remembers which order a client Idempotency-Key produced,
// so a retried checkout after an ambiguous failure cannot decrement stock a
// second time. Keys expire after TTLIdempotency.
type IdempotencyStore struct {
	rdb *redis.Client
}

// NewIdempotencyStore returns an IdempotencyStore using the given client.
func NewIdempotencyStore(rdb *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb}
}

// Lookup returns the order id previously recorded for key, if any.
func (s *IdempotencyStore) Lookup(ctx context.Context, key string) (orderID string, ok bool, err error) {
	v, err := s.rdb.Get(ctx, fmt.Sprintf(keyIdemCheckout, key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, errors.Wrap(err, "idempotency lookup")
	}
	return v, true, nil
}

// Remember records that key produced orderID.
func (s *IdempotencyStore) Remember(ctx context.Context, key, orderID string) error {
	err := s.rdb.Set(ctx, fmt.Sprintf(keyIdemCheckout, key), orderID, TTLIdempotency).Err()
	if err != nil {
		return errors.Wrap(err, "idempotency remember")
	}
	return nil
}
