package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-crypto-checkout/internal/asset"
	"github.com/ariefcatur/go-crypto-checkout/internal/chain"
	"github.com/ariefcatur/go-crypto-checkout/internal/orders"
	"github.com/ariefcatur/go-crypto-checkout/internal/pricing"
)

const (
	DefaultWindow         = 30 * time.Minute
	DefaultPriceTolerance = "0.01"

	reasonExpired        = "expired"
	reasonOrderCancelled = "order cancelled"
)

type Verifier interface {
	Verify(ctx context.Context, exp chain.Expectation) chain.Result
}

type Config struct {
	Window             time.Duration
	PriceTolerance     decimal.Decimal
	ReceivingAddresses map[asset.Asset]string
}

type Manager struct {
	store     Store
	orders    Orders
	verifier  Verifier
	prices    pricing.Source
	window    time.Duration
	tolerance decimal.Decimal
	addresses map[asset.Asset]string
	log       *zap.Logger
	now       func() time.Time
}

func NewManager(store Store, ord Orders, verifier Verifier, prices pricing.Source, cfg Config, log *zap.Logger) *Manager {
	m := &Manager{
		store:     store,
		orders:    ord,
		verifier:  verifier,
		prices:    prices,
		window:    cfg.Window,
		tolerance: cfg.PriceTolerance,
		addresses: make(map[asset.Asset]string, len(cfg.ReceivingAddresses)),
		log:       log,
		now:       time.Now,
	}
	if m.window <= 0 {
		m.window = DefaultWindow
	}
	if m.tolerance.IsZero() {
		m.tolerance = decimal.RequireFromString(DefaultPriceTolerance)
	}
	for a, addr := range cfg.ReceivingAddresses {
		if strings.TrimSpace(addr) != "" {
			m.addresses[a] = addr
		}
	}
	return m
}

// WithClock replaces the time source.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

type CreateIntentInput struct {
	Actor     orders.Actor
	OrderID   string
	Amounts   map[asset.Asset]decimal.Decimal
	USDAmount decimal.Decimal
	Asset     asset.Asset
}

// CreateIntent opens a payment window for an unpaid order.
func (m *Manager) CreateIntent(ctx context.Context, in CreateIntentInput) (Intent, error) {
	if !in.Asset.Payable() {
		return Intent{}, fmt.Errorf("%w: %s", ErrUnsupportedAsset, in.Asset)
	}
	address, ok := m.addresses[in.Asset]
	if !ok {
		return Intent{}, fmt.Errorf("%w: no receiving address for %s", ErrUnsupportedAsset, in.Asset)
	}
	if !in.USDAmount.IsPositive() {
		return Intent{}, fmt.Errorf("%w: usd amount must be positive", ErrInvalidAmount)
	}
	for _, a := range asset.All {
		if amt, ok := in.Amounts[a]; !ok || !amt.IsPositive() {
			return Intent{}, fmt.Errorf("%w: missing amount for %s", ErrInvalidAmount, a)
		}
	}

	o, err := m.orders.GetOrder(ctx, in.Actor, in.OrderID)
	if err != nil {
		return Intent{}, err
	}
	if o.Status != orders.StatusPending || o.PaymentStatus == orders.PaymentCompleted {
		return Intent{}, fmt.Errorf("%w: order is %s, payment %s", ErrOrderNotPayable, o.Status, o.PaymentStatus)
	}

	if err := m.checkPrice(ctx, in); err != nil {
		return Intent{}, err
	}

	now := m.now().UTC()
	amounts := make(map[asset.Asset]decimal.Decimal, len(asset.All))
	for _, a := range asset.All {
		amounts[a] = in.Amounts[a]
	}
	addresses := make(map[asset.Asset]string, len(m.addresses))
	for a, addr := range m.addresses {
		addresses[a] = addr
	}
	intent := Intent{
		ID:                 uuid.NewString(),
		OrderID:            o.ID,
		CustomerID:         o.CustomerID,
		Amounts:            amounts,
		USDAmount:          in.USDAmount,
		SelectedAsset:      in.Asset,
		ReceivingAddresses: addresses,
		Status:             StatusPending,
		ExpiresAt:          now.Add(m.window),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := m.store.CreateIntent(ctx, intent, now); err != nil {
		return Intent{}, err
	}

	m.log.Info("payment intent created",
		zap.String("payment_id", intent.ID),
		zap.String("order_id", o.ID),
		zap.String("asset", string(in.Asset)),
		zap.String("amount", in.Amounts[in.Asset].String()),
		zap.String("receiving_address", address),
		zap.Time("expires_at", intent.ExpiresAt))
	return intent, nil
}

// checkPrice is advisory: an unavailable price feed never blocks checkout.
func (m *Manager) checkPrice(ctx context.Context, in CreateIntentInput) error {
	if m.prices == nil {
		return nil
	}
	prices, err := m.prices.Prices(ctx)
	if err != nil {
		m.log.Warn("price feed unavailable, skipping amount check", zap.Error(err))
		return nil
	}
	if _, ok := prices[in.Asset]; !ok {
		m.log.Warn("no price for asset, skipping amount check", zap.String("asset", string(in.Asset)))
		return nil
	}
	return pricing.ValidateAmount(prices, in.Asset, in.Amounts[in.Asset], in.USDAmount, m.tolerance)
}

// GetIntent returns the intent, failing it first if its window has passed.
func (m *Manager) GetIntent(ctx context.Context, actor orders.Actor, id string) (Intent, error) {
	in, err := m.store.GetIntent(ctx, id)
	if err != nil {
		return Intent{}, err
	}
	if !canAccess(actor, in) {
		return Intent{}, ErrNotAuthorized
	}
	now := m.now().UTC()
	if in.Open() && in.Expired(now) {
		return m.expire(ctx, id)
	}
	return in, nil
}

type SubmitProofInput struct {
	Actor           orders.Actor
	PaymentID       string
	TransactionHash string
	Asset           asset.Asset
}

// SubmitProof verifies a buyer supplied transaction hash against the intent and
// settles the order when the ledger confirms it. Re-submitting the hash of an
// already completed intent returns the intent without crediting it again.
func (m *Manager) SubmitProof(ctx context.Context, in SubmitProofInput) (Intent, error) {
	hash := strings.ToLower(strings.TrimSpace(in.TransactionHash))
	if !chain.ValidHash(hash) {
		return Intent{}, fmt.Errorf("%w: malformed transaction hash", ErrInvalidTransaction)
	}

	intent, err := m.store.GetIntent(ctx, in.PaymentID)
	if err != nil {
		return Intent{}, err
	}
	if !canAccess(in.Actor, intent) {
		return Intent{}, ErrNotAuthorized
	}
	if in.Asset != "" && in.Asset != intent.SelectedAsset {
		return Intent{}, fmt.Errorf("%w: intent was created for %s", ErrUnsupportedAsset, intent.SelectedAsset)
	}

	switch intent.Status {
	case StatusCompleted:
		if intent.TransactionHash != hash {
			return Intent{}, fmt.Errorf("%w: already settled by another transaction", ErrIntentClosed)
		}
		if err := m.finalize(ctx, intent); err != nil {
			return Intent{}, err
		}
		return intent, nil
	case StatusFailed:
		if intent.FailureReason == reasonExpired {
			return Intent{}, ErrExpired
		}
		return Intent{}, fmt.Errorf("%w: %s", ErrIntentClosed, intent.FailureReason)
	}

	if intent.Expired(m.now().UTC()) {
		if _, err := m.expire(ctx, intent.ID); err != nil {
			return Intent{}, err
		}
		return Intent{}, ErrExpired
	}

	o, err := m.orders.GetOrder(ctx, orders.System, intent.OrderID)
	if err != nil {
		return Intent{}, err
	}
	if !payable(o) {
		return Intent{}, fmt.Errorf("%w: order is %s, payment %s", ErrOrderNotPayable, o.Status, o.PaymentStatus)
	}

	if other, err := m.store.IntentByTransactionHash(ctx, hash); err == nil && other.ID != intent.ID {
		return Intent{}, fmt.Errorf("%w: hash already used for payment %s", ErrInvalidTransaction, other.ID)
	} else if err != nil && !errors.Is(err, ErrIntentNotFound) {
		return Intent{}, err
	}

	res := m.verifier.Verify(ctx, chain.Expectation{
		TxHash:    hash,
		Asset:     intent.SelectedAsset,
		Recipient: intent.ReceivingAddresses[intent.SelectedAsset],
		Amount:    intent.Amounts[intent.SelectedAsset],
	})

	switch res.Outcome {
	case chain.Pending:
		if _, err := m.store.UpdateIntent(ctx, intent.ID, func(i *Intent) error {
			if i.Open() {
				i.Status = StatusProcessing
				i.UpdatedAt = m.now().UTC()
			}
			return nil
		}); err != nil {
			return Intent{}, err
		}
		return Intent{}, fmt.Errorf("%w: %s", ErrPaymentPending, res.Reason)
	case chain.Invalid:
		if _, err := m.store.UpdateIntent(ctx, intent.ID, func(i *Intent) error {
			if i.Open() {
				i.fail(res.Reason, m.now().UTC())
			}
			return nil
		}); err != nil {
			return Intent{}, err
		}
		return Intent{}, fmt.Errorf("%w: %s", ErrInvalidTransaction, res.Reason)
	}

	intent, err = m.store.UpdateIntent(ctx, intent.ID, func(i *Intent) error {
		now := m.now().UTC()
		switch {
		case i.Status == StatusCompleted && i.TransactionHash == hash:
			return nil
		case !i.Open():
			return fmt.Errorf("%w: intent is %s", ErrIntentClosed, i.Status)
		case i.Expired(now):
			return ErrExpired
		}
		i.Status = StatusCompleted
		i.TransactionHash = hash
		i.UpdatedAt = now
		return nil
	})
	if errors.Is(err, ErrTransactionHashTaken) {
		return Intent{}, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	if err != nil {
		return Intent{}, err
	}

	m.log.Info("payment confirmed",
		zap.String("payment_id", intent.ID),
		zap.String("order_id", intent.OrderID),
		zap.String("tx_hash", hash),
		zap.Uint64("confirmations", res.Confirmations))
	if err := m.finalize(ctx, intent); err != nil {
		return Intent{}, err
	}
	return intent, nil
}

// CancelOrderPayments fails the order's open intent so no proof can settle it
// once the order is cancelled.
func (m *Manager) CancelOrderPayments(ctx context.Context, orderID string) error {
	now := m.now().UTC()
	in, err := m.store.ActiveIntent(ctx, orderID, now)
	if errors.Is(err, ErrIntentNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = m.store.UpdateIntent(ctx, in.ID, func(i *Intent) error {
		if i.Open() {
			i.fail(reasonOrderCancelled, now)
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.log.Info("payment intent closed by cancellation",
		zap.String("payment_id", in.ID),
		zap.String("order_id", orderID))
	return nil
}

func payable(o orders.Order) bool {
	if o.PaymentStatus == orders.PaymentCompleted {
		return false
	}
	return o.Status == orders.StatusPending || o.Status == orders.StatusConfirmed
}

func (m *Manager) finalize(ctx context.Context, in Intent) error {
	_, err := m.orders.FinalizePayment(ctx, in.OrderID, orders.PaymentOutcome{
		PaymentID:       in.ID,
		TransactionHash: in.TransactionHash,
		Asset:           in.SelectedAsset,
	})
	if err != nil {
		m.log.Error("finalize payment",
			zap.String("payment_id", in.ID),
			zap.String("order_id", in.OrderID),
			zap.Error(err))
		return fmt.Errorf("finalize order %s: %w", in.OrderID, err)
	}
	return nil
}

func (m *Manager) expire(ctx context.Context, id string) (Intent, error) {
	return m.store.UpdateIntent(ctx, id, func(i *Intent) error {
		now := m.now().UTC()
		if i.Open() && i.Expired(now) {
			i.fail(reasonExpired, now)
		}
		return nil
	})
}

func canAccess(actor orders.Actor, in Intent) bool {
	return actor.Privileged() || (actor.CustomerID != "" && actor.CustomerID == in.CustomerID)
}
