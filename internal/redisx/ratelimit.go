package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrRateLimited = errors.New("rate limit exceeded")

// Limiter is a fixed window counter per subject.
type Limiter struct {
	rdb    *redis.Client
	limit  int64
	window time.Duration
}

func NewLimiter(rdb *redis.Client, limit int, window time.Duration) *Limiter {
	return &Limiter{rdb: rdb, limit: int64(limit), window: window}
}

// Allow counts one attempt for subject and fails once the window's budget is spent.
func (l *Limiter) Allow(ctx context.Context, subject string) error {
	key := fmt.Sprintf(KeyPaymentAttempts, subject)
	// the window's TTL is set together with the first count, so a counter never outlives it
	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, 0, l.window)
		incr = pipe.Incr(ctx, key)
		return nil
	})
	if err != nil {
		return err
	}
	n := incr.Val()
	if n > l.limit {
		return ErrRateLimited
	}
	return nil
}
