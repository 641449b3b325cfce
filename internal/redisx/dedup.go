package redisx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Dedup struct {
	rdb     *redis.Client
	service string
}

func NewDedup(rdb *redis.Client, service string) *Dedup {
	return &Dedup{rdb: rdb, service: service}
}

// FirstSeen marks id as processed and reports whether this is its first sighting.
func (d *Dedup) FirstSeen(ctx context.Context, id string) (bool, error) {
	return d.rdb.SetNX(ctx, fmt.Sprintf(KeyDedup, d.service, id), 1, TTLDedup).Result()
}

// Forget drops the marker so a failed handler can see the event again.
func (d *Dedup) Forget(ctx context.Context, id string) error {
	return d.rdb.Del(ctx, fmt.Sprintf(KeyDedup, d.service, id)).Err()
}
