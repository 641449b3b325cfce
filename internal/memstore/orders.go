package memstore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/ariefcatur/go-crypto-checkout/internal/orders"
)

func cloneOrder(o orders.Order) orders.Order {
	o.Items = slices.Clone(o.Items)
	if o.EstimatedDeliveryDate != nil {
		eta := *o.EstimatedDeliveryDate
		o.EstimatedDeliveryDate = &eta
	}
	return o
}

// UpsertProduct lists a product or replaces its catalog entry.
func (s *Store) UpsertProduct(_ context.Context, p orders.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
	return nil
}

func (s *Store) Product(_ context.Context, id string) (orders.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return orders.Product{}, orders.ErrProductNotFound
	}
	return p, nil
}

func (s *Store) CreateOrder(_ context.Context, o orders.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	s.orders[o.ID] = &orderEntry{o: cloneOrder(o)}
	s.orderSeq = append(s.orderSeq, o.ID)
	return nil
}

func (s *Store) lookupOrder(id string) (*orderEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.orders[id]
	if !ok {
		return nil, orders.ErrOrderNotFound
	}
	return e, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (orders.Order, error) {
	e, err := s.lookupOrder(id)
	if err != nil {
		return orders.Order{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneOrder(e.o), nil
}

func (s *Store) UpdateOrder(ctx context.Context, id string, fn func(context.Context, *orders.Order) error) (orders.Order, error) {
	e, err := s.lookupOrder(id)
	if err != nil {
		return orders.Order{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	work := cloneOrder(e.o)
	if err := fn(ctx, &work); err != nil {
		return orders.Order{}, err
	}
	work.Items = e.o.Items
	e.o = work
	return cloneOrder(e.o), nil
}

func (s *Store) snapshotOrders() []orders.Order {
	s.mu.RLock()
	entries := make([]*orderEntry, 0, len(s.orderSeq))
	for _, id := range s.orderSeq {
		entries = append(entries, s.orders[id])
	}
	s.mu.RUnlock()

	out := make([]orders.Order, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, cloneOrder(e.o))
		e.mu.Unlock()
	}
	return out
}

// ListOrders returns newest first.
func (s *Store) ListOrders(_ context.Context, q orders.ListQuery) ([]orders.Order, int, error) {
	var match []orders.Order
	all := s.snapshotOrders()
	for i := len(all) - 1; i >= 0; i-- {
		o := all[i]
		if q.CustomerID != "" && o.CustomerID != q.CustomerID {
			continue
		}
		if q.Status != "" && o.Status != q.Status {
			continue
		}
		match = append(match, o)
	}
	total := len(match)
	start := min(q.Offset(), total)
	end := min(start+q.Limit, total)
	return match[start:end], total, nil
}

func (s *Store) StaleUnpaidOrders(_ context.Context, cutoff time.Time, limit int) ([]orders.Order, error) {
	var out []orders.Order
	for _, o := range s.snapshotOrders() {
		if len(out) >= limit {
			break
		}
		if o.Status == orders.StatusPending && o.PaymentStatus != orders.PaymentCompleted && o.CreatedAt.Before(cutoff) {
			out = append(out, o)
		}
	}
	return out, nil
}
