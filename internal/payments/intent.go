package payments

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-crypto-checkout/internal/asset"
	"github.com/ariefcatur/go-crypto-checkout/internal/orders"
	"github.com/ariefcatur/go-crypto-checkout/internal/pricing"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var (
	ErrIntentNotFound       = errors.New("payment intent not found")
	ErrActiveIntentExists   = errors.New("order already has an active payment intent")
	ErrExpired              = errors.New("payment intent expired")
	ErrInvalidTransaction   = errors.New("invalid transaction")
	ErrPaymentPending       = errors.New("transaction not yet confirmed")
	ErrIntentClosed         = errors.New("payment intent is closed")
	ErrUnsupportedAsset     = errors.New("unsupported payment asset")
	ErrInvalidAmount        = errors.New("invalid payment amount")
	ErrOrderNotPayable      = errors.New("order is not awaiting payment")
	ErrTransactionHashTaken = errors.New("transaction hash already credited")

	ErrOrderNotFound  = orders.ErrOrderNotFound
	ErrNotAuthorized  = orders.ErrNotAuthorized
	ErrAmountMismatch = pricing.ErrAmountMismatch
)

// Intent is a time-boxed request to pay one order in one selected asset.
type Intent struct {
	ID                 string                          `json:"id"`
	OrderID            string                          `json:"order_id"`
	CustomerID         string                          `json:"customer_id"`
	Amounts            map[asset.Asset]decimal.Decimal `json:"amounts"`
	USDAmount          decimal.Decimal                 `json:"usd_amount"`
	SelectedAsset      asset.Asset                     `json:"selected_asset"`
	ReceivingAddresses map[asset.Asset]string          `json:"receiving_addresses"`
	Status             Status                          `json:"status"`
	TransactionHash    string                          `json:"transaction_hash,omitempty"`
	FailureReason      string                          `json:"failure_reason,omitempty"`
	ExpiresAt          time.Time                       `json:"expires_at"`
	CreatedAt          time.Time                       `json:"created_at"`
	UpdatedAt          time.Time                       `json:"updated_at"`
}

func (i Intent) Open() bool { return i.Status == StatusPending || i.Status == StatusProcessing }

func (i Intent) Expired(now time.Time) bool { return now.After(i.ExpiresAt) }

// Active reports whether the intent still blocks a new one for the same order.
func (i Intent) Active(now time.Time) bool { return i.Open() && !i.Expired(now) }

func (i *Intent) fail(reason string, now time.Time) {
	i.Status = StatusFailed
	i.FailureReason = reason
	i.UpdatedAt = now
}
