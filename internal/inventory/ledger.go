package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Store persists stock records. MutateStock must lock every listed record for the
// duration of fn and persist the mutated copies only when fn returns nil, so a
// batch is applied all-or-nothing and concurrent writers to one record serialize.
// Store calls made with the ctx handed to fn commit or roll back with the batch.
type Store interface {
	CreateStock(ctx context.Context, rec StockRecord) error
	GetStock(ctx context.Context, productID string) (StockRecord, error)
	MutateStock(ctx context.Context, productIDs []string, fn func(ctx context.Context, recs map[string]*StockRecord) error) ([]StockRecord, error)
	AppendAdjustment(ctx context.Context, adj Adjustment) error
}

// LowStockNotifier receives fire-and-forget low-stock signals.
type LowStockNotifier interface {
	LowStock(ctx context.Context, rec StockRecord)
}

type Ledger struct {
	store  Store
	alerts LowStockNotifier
	log    *zap.Logger
	now    func() time.Time
}

func NewLedger(store Store, alerts LowStockNotifier, log *zap.Logger) *Ledger {
	return &Ledger{store: store, alerts: alerts, log: log, now: time.Now}
}

// Register creates the stock record for a newly listed product.
func (l *Ledger) Register(ctx context.Context, productID string, onHand, lowStockThreshold int) (StockRecord, error) {
	if onHand < 0 || lowStockThreshold < 0 {
		return StockRecord{}, ErrInvalidQuantity
	}
	rec := StockRecord{
		ProductID:         productID,
		OnHand:            onHand,
		LowStockThreshold: lowStockThreshold,
		UpdatedAt:         l.now().UTC(),
	}
	if err := l.store.CreateStock(ctx, rec); err != nil {
		return StockRecord{}, err
	}
	return rec, nil
}

func (l *Ledger) Get(ctx context.Context, productID string) (StockRecord, error) {
	return l.store.GetStock(ctx, productID)
}

func (l *Ledger) CheckAvailability(ctx context.Context, productID string, qty int) (bool, error) {
	if qty <= 0 {
		return false, ErrInvalidQuantity
	}
	rec, err := l.store.GetStock(ctx, productID)
	if err != nil {
		return false, err
	}
	return rec.Available() >= qty, nil
}

func (l *Ledger) Reserve(ctx context.Context, productID string, qty int) error {
	return l.ReserveBatch(ctx, []Item{{ProductID: productID, Qty: qty}})
}

// ReserveBatch reserves every item or none of them.
func (l *Ledger) ReserveBatch(ctx context.Context, items []Item) error {
	return l.apply(ctx, "reserve", items, func(rec *StockRecord, qty int) error {
		if err := rec.reserve(qty); err != nil {
			return fmt.Errorf("product %s: requested %d, available %d: %w", rec.ProductID, qty, rec.Available(), err)
		}
		return nil
	})
}

func (l *Ledger) Release(ctx context.Context, productID string, qty int) error {
	return l.ReleaseBatch(ctx, []Item{{ProductID: productID, Qty: qty}})
}

// ReleaseBatch drops reservations; releasing more than is held stops at zero.
func (l *Ledger) ReleaseBatch(ctx context.Context, items []Item) error {
	return l.apply(ctx, "release", items, func(rec *StockRecord, qty int) error {
		rec.release(qty)
		return nil
	})
}

func (l *Ledger) Commit(ctx context.Context, productID string, qty int) error {
	return l.CommitBatch(ctx, []Item{{ProductID: productID, Qty: qty}})
}

// CommitBatch permanently removes reserved units from stock.
func (l *Ledger) CommitBatch(ctx context.Context, items []Item) error {
	return l.apply(ctx, "commit", items, func(rec *StockRecord, qty int) error {
		if err := rec.commit(qty); err != nil {
			return fmt.Errorf("product %s: commit %d, reserved %d: %w", rec.ProductID, qty, rec.Reserved, err)
		}
		return nil
	})
}

// Adjust corrects OnHand administratively. Reserved is never touched, and a
// correction that would drop OnHand below Reserved is rejected.
func (l *Ledger) Adjust(ctx context.Context, productID string, delta int, reason string) (StockRecord, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" || delta == 0 {
		return StockRecord{}, ErrInvalidAdjustment
	}
	now := l.now().UTC()
	recs, err := l.store.MutateStock(ctx, []string{productID}, func(ctx context.Context, m map[string]*StockRecord) error {
		rec := m[productID]
		if err := rec.adjust(delta); err != nil {
			return fmt.Errorf("product %s: delta %d, on hand %d, reserved %d: %w", productID, delta, rec.OnHand, rec.Reserved, err)
		}
		rec.UpdatedAt = now
		if err := l.store.AppendAdjustment(ctx, Adjustment{
			ProductID: productID, Delta: delta, Reason: reason, OnHand: rec.OnHand, At: now,
		}); err != nil {
			return fmt.Errorf("append adjustment log: %w", err)
		}
		return nil
	})
	if err != nil {
		return StockRecord{}, err
	}
	rec := recs[0]

	l.log.Info("stock adjusted",
		zap.String("product_id", productID),
		zap.Int("delta", delta),
		zap.Int("on_hand", rec.OnHand),
		zap.String("reason", reason))
	l.signal(ctx, recs)
	return rec, nil
}

func (l *Ledger) apply(ctx context.Context, op string, items []Item, fn func(rec *StockRecord, qty int) error) error {
	merged, err := mergeItems(items)
	if err != nil {
		return err
	}
	if len(merged) == 0 {
		return nil
	}
	ids := make([]string, len(merged))
	for i, it := range merged {
		ids[i] = it.ProductID
	}
	now := l.now().UTC()

	recs, err := l.store.MutateStock(ctx, ids, func(_ context.Context, m map[string]*StockRecord) error {
		for _, it := range merged {
			rec := m[it.ProductID]
			if err := fn(rec, it.Qty); err != nil {
				return err
			}
			rec.UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s stock: %w", op, err)
	}
	l.signal(ctx, recs)
	return nil
}

func (l *Ledger) signal(ctx context.Context, recs []StockRecord) {
	if l.alerts == nil {
		return
	}
	for _, rec := range recs {
		if rec.LowStock() {
			l.alerts.LowStock(ctx, rec)
		}
	}
}
