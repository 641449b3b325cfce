package memstore

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/ariefcatur/go-crypto-checkout/internal/payments"
)

func cloneIntent(in payments.Intent) payments.Intent {
	in.Amounts = maps.Clone(in.Amounts)
	in.ReceivingAddresses = maps.Clone(in.ReceivingAddresses)
	return in
}

func (s *Store) CreateIntent(ctx context.Context, in payments.Intent, now time.Time) error {
	s.intentCreate.Lock()
	defer s.intentCreate.Unlock()

	if _, err := s.ActiveIntent(ctx, in.OrderID, now); err == nil {
		return payments.ErrActiveIntentExists
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.intents[in.ID]; ok {
		return fmt.Errorf("intent %s already exists", in.ID)
	}
	s.intents[in.ID] = &intentEntry{in: cloneIntent(in)}
	s.byOrder[in.OrderID] = in.ID
	return nil
}

func (s *Store) lookupIntent(id string) (*intentEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.intents[id]
	if !ok {
		return nil, payments.ErrIntentNotFound
	}
	return e, nil
}

func (s *Store) GetIntent(_ context.Context, id string) (payments.Intent, error) {
	e, err := s.lookupIntent(id)
	if err != nil {
		return payments.Intent{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneIntent(e.in), nil
}

func (s *Store) UpdateIntent(_ context.Context, id string, fn func(*payments.Intent) error) (payments.Intent, error) {
	e, err := s.lookupIntent(id)
	if err != nil {
		return payments.Intent{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	work := cloneIntent(e.in)
	if err := fn(&work); err != nil {
		return payments.Intent{}, err
	}
	if work.TransactionHash != "" && work.TransactionHash != e.in.TransactionHash {
		s.mu.Lock()
		if owner, ok := s.txHashes[work.TransactionHash]; ok && owner != id {
			s.mu.Unlock()
			return payments.Intent{}, payments.ErrTransactionHashTaken
		}
		s.txHashes[work.TransactionHash] = id
		s.mu.Unlock()
	}
	e.in = work
	return cloneIntent(e.in), nil
}

func (s *Store) IntentByTransactionHash(ctx context.Context, hash string) (payments.Intent, error) {
	s.mu.RLock()
	id, ok := s.txHashes[hash]
	s.mu.RUnlock()
	if !ok {
		return payments.Intent{}, payments.ErrIntentNotFound
	}
	return s.GetIntent(ctx, id)
}

func (s *Store) ActiveIntent(ctx context.Context, orderID string, now time.Time) (payments.Intent, error) {
	s.mu.RLock()
	id, ok := s.byOrder[orderID]
	s.mu.RUnlock()
	if !ok {
		return payments.Intent{}, payments.ErrIntentNotFound
	}
	in, err := s.GetIntent(ctx, id)
	if err != nil {
		return payments.Intent{}, err
	}
	if !in.Active(now) {
		return payments.Intent{}, payments.ErrIntentNotFound
	}
	return in, nil
}

func (s *Store) ExpiredIntents(_ context.Context, now time.Time, limit int) ([]payments.Intent, error) {
	var out []payments.Intent
	for _, in := range s.snapshotIntents() {
		if len(out) >= limit {
			break
		}
		if in.Open() && in.Expired(now) {
			out = append(out, in)
		}
	}
	return out, nil
}

func (s *Store) snapshotIntents() []payments.Intent {
	s.mu.RLock()
	entries := make([]*intentEntry, 0, len(s.intents))
	for _, e := range s.intents {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]payments.Intent, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, cloneIntent(e.in))
		e.mu.Unlock()
	}
	return out
}
