package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Locker struct {
	rdb   *redis.Client
	owner string
}

func NewLocker(rdb *redis.Client, owner string) *Locker {
	return &Locker{rdb: rdb, owner: owner}
}

// TryLock takes key for ttl if nobody holds it. The lease is never released
// explicitly; it lapses with the ttl.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, key, l.owner, ttl).Result()
}
