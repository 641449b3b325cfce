package memstore

import (
	"context"
	"slices"

	"github.com/ariefcatur/go-crypto-checkout/internal/inventory"
)

func (s *Store) CreateStock(_ context.Context, rec inventory.StockRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stock[rec.ProductID]; ok {
		return inventory.ErrStockExists
	}
	s.stock[rec.ProductID] = &stockEntry{rec: rec}
	return nil
}

func (s *Store) GetStock(_ context.Context, productID string) (inventory.StockRecord, error) {
	s.mu.RLock()
	e, ok := s.stock[productID]
	s.mu.RUnlock()
	if !ok {
		return inventory.StockRecord{}, inventory.ErrStockNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec, nil
}

func (s *Store) MutateStock(ctx context.Context, productIDs []string, fn func(context.Context, map[string]*inventory.StockRecord) error) ([]inventory.StockRecord, error) {
	ids := slices.Clone(productIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	entries := make([]*stockEntry, len(ids))
	s.mu.RLock()
	for i, id := range ids {
		e, ok := s.stock[id]
		if !ok {
			s.mu.RUnlock()
			return nil, inventory.ErrStockNotFound
		}
		entries[i] = e
	}
	s.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
	}
	defer func() {
		for _, e := range entries {
			e.mu.Unlock()
		}
	}()

	work := make(map[string]*inventory.StockRecord, len(entries))
	for _, e := range entries {
		cp := e.rec
		work[cp.ProductID] = &cp
	}
	if err := fn(ctx, work); err != nil {
		return nil, err
	}

	out := make([]inventory.StockRecord, len(entries))
	for i, e := range entries {
		e.rec = *work[e.rec.ProductID]
		out[i] = e.rec
	}
	return out, nil
}

func (s *Store) AppendAdjustment(_ context.Context, adj inventory.Adjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adjustments = append(s.adjustments, adj)
	return nil
}

// Adjustments returns the correction log for one product, oldest first.
func (s *Store) Adjustments(productID string) []inventory.Adjustment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []inventory.Adjustment
	for _, a := range s.adjustments {
		if a.ProductID == productID {
			out = append(out, a)
		}
	}
	return out
}
