package notify

import (
	"encoding/json"
	"time"
)

const (
	EventOrderConfirmed     = "OrderConfirmed"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventLowStock           = "LowStock"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id or product_id
	Payload       json.RawMessage `json:"payload"`
}

type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type OrderConfirmedPayload struct {
	OrderID         string    `json:"order_id"`
	CustomerID      string    `json:"customer_id"`
	PaymentMethod   string    `json:"payment_method"`
	TransactionHash string    `json:"transaction_hash"`
	TotalUSD        string    `json:"total_usd"`
	Items           []ItemQty `json:"items"`
}

type OrderStatusChangedPayload struct {
	OrderID               string     `json:"order_id"`
	CustomerID            string     `json:"customer_id"`
	From                  string     `json:"from"`
	To                    string     `json:"to"`
	TrackingNumber        string     `json:"tracking_number,omitempty"`
	EstimatedDeliveryDate *time.Time `json:"estimated_delivery_date,omitempty"`
	CancelReason          string     `json:"cancel_reason,omitempty"`
}

type LowStockPayload struct {
	ProductID string `json:"product_id"`
	OnHand    int    `json:"on_hand"`
	Reserved  int    `json:"reserved"`
	Threshold int    `json:"threshold"`
}
