package orders

import (
	"context"
	"time"

	"github.com/ariefcatur/go-crypto-checkout/internal/inventory"
)

// Store persists orders. UpdateOrder locks the order for the duration of fn and
// writes it back only when fn returns nil; line items are never rewritten. fn
// receives a context that work meant to commit together with the order must use.
type Store interface {
	CreateOrder(ctx context.Context, o Order) error
	GetOrder(ctx context.Context, id string) (Order, error)
	UpdateOrder(ctx context.Context, id string, fn func(ctx context.Context, o *Order) error) (Order, error)
	ListOrders(ctx context.Context, q ListQuery) ([]Order, int, error)
	// StaleUnpaidOrders returns pending orders without a completed payment created before cutoff.
	StaleUnpaidOrders(ctx context.Context, cutoff time.Time, limit int) ([]Order, error)
}

type Catalog interface {
	Product(ctx context.Context, id string) (Product, error)
}

// Inventory is the subset of the stock ledger the controller drives.
type Inventory interface {
	ReserveBatch(ctx context.Context, items []inventory.Item) error
	ReleaseBatch(ctx context.Context, items []inventory.Item) error
	CommitBatch(ctx context.Context, items []inventory.Item) error
	Adjust(ctx context.Context, productID string, delta int, reason string) (inventory.StockRecord, error)
}

// Payments closes whatever payment intent is still open for a cancelled order.
type Payments interface {
	CancelOrderPayments(ctx context.Context, orderID string) error
}

type Notifier interface {
	OrderConfirmed(ctx context.Context, o Order)
	OrderStatusChanged(ctx context.Context, o Order, from Status)
}

// Notifiers fans each event out to every notifier in order.
type Notifiers []Notifier

func (ns Notifiers) OrderConfirmed(ctx context.Context, o Order) {
	for _, n := range ns {
		n.OrderConfirmed(ctx, o)
	}
}

func (ns Notifiers) OrderStatusChanged(ctx context.Context, o Order, from Status) {
	for _, n := range ns {
		n.OrderStatusChanged(ctx, o, from)
	}
}

type ListQuery struct {
	CustomerID string
	Status     Status
	Page       int
	Limit      int
}

func (q ListQuery) Offset() int { return (q.Page - 1) * q.Limit }

type Page struct {
	Orders []Order `json:"orders"`
	Page   int     `json:"page"`
	Limit  int     `json:"limit"`
	Total  int     `json:"total"`
	Pages  int     `json:"pages"`
}
