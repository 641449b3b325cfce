package payments

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-crypto-checkout/internal/orders"
)

const (
	DefaultHoldTimeout = 24 * time.Hour
	sweepBatch         = 100
	sweepLockKey       = "lock:payments:sweeper"
)

// Locker grants a short lived exclusive lease so only one instance sweeps at a time.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type SweepReport struct {
	ExpiredIntents  int
	CancelledOrders int
}

// Sweep fails intents whose window has passed and cancels pending orders that
// stayed unpaid past holdTimeout with no open intent, releasing their stock.
func (m *Manager) Sweep(ctx context.Context, holdTimeout time.Duration) (SweepReport, error) {
	var rep SweepReport
	now := m.now().UTC()

	expired, err := m.store.ExpiredIntents(ctx, now, sweepBatch)
	if err != nil {
		return rep, err
	}
	for _, in := range expired {
		if _, err := m.expire(ctx, in.ID); err != nil {
			m.log.Error("expire intent", zap.String("payment_id", in.ID), zap.Error(err))
			continue
		}
		rep.ExpiredIntents++
	}

	if holdTimeout <= 0 {
		holdTimeout = DefaultHoldTimeout
	}
	stale, err := m.orders.StaleUnpaid(ctx, now.Add(-holdTimeout), sweepBatch)
	if err != nil {
		return rep, err
	}
	for _, o := range stale {
		if _, err := m.store.ActiveIntent(ctx, o.ID, now); err == nil {
			continue
		} else if !errors.Is(err, ErrIntentNotFound) {
			m.log.Error("lookup active intent", zap.String("order_id", o.ID), zap.Error(err))
			continue
		}
		_, err := m.orders.TransitionOrder(ctx, orders.TransitionRequest{
			OrderID: o.ID,
			Status:  orders.StatusCancelled,
			Actor:   orders.System,
			Reason:  "payment not received in time",
		})
		if err != nil {
			m.log.Warn("cancel unpaid order", zap.String("order_id", o.ID), zap.Error(err))
			continue
		}
		rep.CancelledOrders++
	}
	return rep, nil
}

// RunSweeper sweeps every interval until ctx is cancelled. With a non-nil
// locker a tick is skipped unless this instance holds the lease.
func (m *Manager) RunSweeper(ctx context.Context, interval, holdTimeout time.Duration, locker Locker) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if locker != nil {
				ok, err := locker.TryLock(ctx, sweepLockKey, interval)
				if err != nil {
					m.log.Warn("sweeper lock", zap.Error(err))
					continue
				}
				if !ok {
					continue
				}
			}
			rep, err := m.Sweep(ctx, holdTimeout)
			if err != nil {
				m.log.Error("sweep", zap.Error(err))
				continue
			}
			if rep.ExpiredIntents > 0 || rep.CancelledOrders > 0 {
				m.log.Info("sweep done",
					zap.Int("expired_intents", rep.ExpiredIntents),
					zap.Int("cancelled_orders", rep.CancelledOrders))
			}
		}
	}
}
