package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-crypto-checkout/internal/memstore"
	"github.com/ariefcatur/go-crypto-checkout/internal/payments"
)

func intent(id, orderID string, expires time.Time) payments.Intent {
	return payments.Intent{ID: id, OrderID: orderID, Status: payments.StatusPending, ExpiresAt: expires}
}

func TestActiveIntentFollowsNewestIntentOfOrder(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateIntent(ctx, intent("pi-1", "o-1", now.Add(time.Minute)), now))
	require.NoError(t, s.CreateIntent(ctx, intent("pi-x", "o-2", now.Add(time.Minute)), now))

	got, err := s.ActiveIntent(ctx, "o-1", now)
	require.NoError(t, err)
	assert.Equal(t, "pi-1", got.ID)

	err = s.CreateIntent(ctx, intent("pi-2", "o-1", now.Add(time.Minute)), now)
	assert.ErrorIs(t, err, payments.ErrActiveIntentExists)

	_, err = s.UpdateIntent(ctx, "pi-1", func(in *payments.Intent) error {
		in.Status = payments.StatusFailed
		return nil
	})
	require.NoError(t, err)
	_, err = s.ActiveIntent(ctx, "o-1", now)
	assert.ErrorIs(t, err, payments.ErrIntentNotFound)

	require.NoError(t, s.CreateIntent(ctx, intent("pi-2", "o-1", now.Add(time.Minute)), now))
	got, err = s.ActiveIntent(ctx, "o-1", now)
	require.NoError(t, err)
	assert.Equal(t, "pi-2", got.ID)

	_, err = s.ActiveIntent(ctx, "o-1", now.Add(2*time.Minute))
	assert.ErrorIs(t, err, payments.ErrIntentNotFound, "expired intents are not active")

	_, err = s.ActiveIntent(ctx, "o-3", now)
	assert.ErrorIs(t, err, payments.ErrIntentNotFound)
}
