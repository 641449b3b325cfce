package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-crypto-checkout/internal/asset"
	"github.com/ariefcatur/go-crypto-checkout/internal/inventory"
)

// Price is an amount quoted in fiat and the two crypto units the storefront lists.
type Price struct {
	USD decimal.Decimal `json:"usd"`
	ETH decimal.Decimal `json:"eth"`
	BTC decimal.Decimal `json:"btc"`
}

func (p Price) Mul(qty int) Price {
	q := decimal.NewFromInt(int64(qty))
	return Price{USD: p.USD.Mul(q), ETH: p.ETH.Mul(q), BTC: p.BTC.Mul(q)}
}

func (p Price) Add(o Price) Price {
	return Price{USD: p.USD.Add(o.USD), ETH: p.ETH.Add(o.ETH), BTC: p.BTC.Add(o.BTC)}
}

type Product struct {
	ID        string    `json:"id"`
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	Price     Price     `json:"price"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type LineItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice Price  `json:"unit_price"`
}

func (li LineItem) Subtotal() Price { return li.UnitPrice.Mul(li.Quantity) }

type ShippingAddress struct {
	FullName      string `json:"full_name"`
	StreetAddress string `json:"street_address"`
	City          string `json:"city"`
	State         string `json:"state"`
	PostalCode    string `json:"postal_code"`
	Country       string `json:"country"`
	Phone         string `json:"phone,omitempty"`
}

type Order struct {
	ID                    string          `json:"id"`
	CustomerID            string          `json:"customer_id"`
	Items                 []LineItem      `json:"items"`
	ShippingAddress       ShippingAddress `json:"shipping_address"`
	PaymentMethod         asset.Asset     `json:"payment_method"`
	Status                Status          `json:"status"`
	PaymentStatus         PaymentStatus   `json:"payment_status"`
	Total                 Price           `json:"total"`
	TransactionHash       string          `json:"transaction_hash,omitempty"`
	InventoryCommitted    bool            `json:"inventory_committed"`
	TrackingNumber        string          `json:"tracking_number,omitempty"`
	CancelReason          string          `json:"cancel_reason,omitempty"`
	EstimatedDeliveryDate *time.Time      `json:"estimated_delivery_date,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// StockItems lists the order's line items in ledger form.
func (o Order) StockItems() []inventory.Item {
	out := make([]inventory.Item, len(o.Items))
	for i, li := range o.Items {
		out[i] = inventory.Item{ProductID: li.ProductID, Qty: li.Quantity}
	}
	return out
}

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

// Actor is the already-authenticated caller of an operation.
type Actor struct {
	CustomerID string
	Role       Role
}

func (a Actor) Privileged() bool { return a.Role == RoleAdmin || a.Role == RoleSystem }

func (a Actor) CanView(o Order) bool {
	return a.Privileged() || (a.CustomerID != "" && a.CustomerID == o.CustomerID)
}

// System is the actor used by background jobs.
var System = Actor{Role: RoleSystem}
