package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const idemPending = "pending"

var ErrInFlight = errors.New("request with this idempotency key is still in flight")

type Idempotency struct {
	rdb *redis.Client
}

func NewIdempotency(rdb *redis.Client) *Idempotency { return &Idempotency{rdb: rdb} }

func idemKey(customerID, key string) string {
	return fmt.Sprintf(KeyIdemOrderCreate, customerID, key)
}

// Claim reserves key for a new request. When the key was already used it
// returns the stored result instead, or ErrInFlight if the first request has
// not finished.
func (i *Idempotency) Claim(ctx context.Context, customerID, key string) (existing string, claimed bool, err error) {
	k := idemKey(customerID, key)
	ok, err := i.rdb.SetNX(ctx, k, idemPending, TTLIdemPending).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return "", true, nil
	}
	v, err := i.rdb.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, ErrInFlight
	}
	if err != nil {
		return "", false, err
	}
	if v == idemPending {
		return "", false, ErrInFlight
	}
	return v, false, nil
}

// Complete stores the result for a claimed key.
func (i *Idempotency) Complete(ctx context.Context, customerID, key, result string) error {
	return i.rdb.Set(ctx, idemKey(customerID, key), result, TTLIdempotency).Err()
}

// Abandon frees a claimed key after a failed request so it can be retried.
func (i *Idempotency) Abandon(ctx context.Context, customerID, key string) error {
	return i.rdb.Del(ctx, idemKey(customerID, key)).Err()
}
