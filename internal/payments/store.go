package payments

import (
	"context"
	"time"

	"github.com/ariefcatur/go-crypto-checkout/internal/orders"
)

// Store persists intents.
//
// CreateIntent must fail with ErrActiveIntentExists when the order already has an
// intent that is Active at now, checked atomically with the insert. UpdateIntent
// locks the intent for fn and must fail with ErrTransactionHashTaken when the
// resulting hash is already recorded on another intent.
type Store interface {
	CreateIntent(ctx context.Context, in Intent, now time.Time) error
	GetIntent(ctx context.Context, id string) (Intent, error)
	UpdateIntent(ctx context.Context, id string, fn func(in *Intent) error) (Intent, error)
	IntentByTransactionHash(ctx context.Context, hash string) (Intent, error)
	ActiveIntent(ctx context.Context, orderID string, now time.Time) (Intent, error)
	ExpiredIntents(ctx context.Context, now time.Time, limit int) ([]Intent, error)
}

// Orders is the order controller surface payments rely on.
type Orders interface {
	GetOrder(ctx context.Context, actor orders.Actor, id string) (orders.Order, error)
	FinalizePayment(ctx context.Context, orderID string, out orders.PaymentOutcome) (orders.Order, error)
	TransitionOrder(ctx context.Context, req orders.TransitionRequest) (orders.Order, error)
	StaleUnpaid(ctx context.Context, cutoff time.Time, limit int) ([]orders.Order, error)
}
