package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-crypto-checkout/internal/orders"
)

type OrderStatus struct {
	OrderID       string    `json:"order_id"`
	CustomerID    string    `json:"customer_id"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type StatusCache struct {
	rdb *redis.Client
}

func NewStatusCache(rdb *redis.Client) *StatusCache { return &StatusCache{rdb: rdb} }

// Get reports ok=false on a cache miss.
func (c *StatusCache) Get(ctx context.Context, orderID string) (OrderStatus, bool, error) {
	b, err := c.rdb.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return OrderStatus{}, false, nil
	}
	if err != nil {
		return OrderStatus{}, false, err
	}
	var st OrderStatus
	if err := json.Unmarshal(b, &st); err != nil {
		return OrderStatus{}, false, err
	}
	return st, true, nil
}

func (c *StatusCache) Set(ctx context.Context, st OrderStatus) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, fmt.Sprintf(KeyOrderStatus, st.OrderID), b, TTLStatusCache).Err()
}

func (c *StatusCache) Invalidate(ctx context.Context, orderID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Err()
}

func StatusOf(o orders.Order) OrderStatus {
	return OrderStatus{
		OrderID:       o.ID,
		CustomerID:    o.CustomerID,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		UpdatedAt:     o.UpdatedAt,
	}
}

// OrderConfirmed and OrderStatusChanged keep the cache written through on
// every order change. A failed write drops the entry so readers fall back to the store.
func (c *StatusCache) OrderConfirmed(ctx context.Context, o orders.Order) { c.refresh(ctx, o) }

func (c *StatusCache) OrderStatusChanged(ctx context.Context, o orders.Order, _ orders.Status) {
	c.refresh(ctx, o)
}

func (c *StatusCache) refresh(ctx context.Context, o orders.Order) {
	if err := c.Set(ctx, StatusOf(o)); err != nil {
		_ = c.Invalidate(ctx, o.ID)
	}
}
