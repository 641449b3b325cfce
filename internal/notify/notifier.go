package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-crypto-checkout/internal/inventory"
	"github.com/ariefcatur/go-crypto-checkout/internal/kafka"
	"github.com/ariefcatur/go-crypto-checkout/internal/orders"
)

type Publisher interface {
	TryPublish(topic string, key, value []byte, headers ...kafkago.Header) bool
}

// Notifier turns settlement signals into kafka events. Publishing never blocks
// the caller; a full buffer drops the event.
type Notifier struct {
	pub      Publisher
	producer string
	log      *zap.Logger
	now      func() time.Time
}

func NewNotifier(pub Publisher, producer string, log *zap.Logger) *Notifier {
	return &Notifier{pub: pub, producer: producer, log: log, now: time.Now}
}

func (n *Notifier) OrderConfirmed(ctx context.Context, o orders.Order) {
	items := make([]ItemQty, len(o.Items))
	for i, li := range o.Items {
		items[i] = ItemQty{ProductID: li.ProductID, Qty: li.Quantity}
	}
	n.publish(ctx, TopicOrderConfirmed, EventOrderConfirmed, o.ID, OrderConfirmedPayload{
		OrderID:         o.ID,
		CustomerID:      o.CustomerID,
		PaymentMethod:   string(o.PaymentMethod),
		TransactionHash: o.TransactionHash,
		TotalUSD:        o.Total.USD.StringFixed(2),
		Items:           items,
	})
}

func (n *Notifier) OrderStatusChanged(ctx context.Context, o orders.Order, from orders.Status) {
	n.publish(ctx, TopicOrderStatusChanged, EventOrderStatusChanged, o.ID, OrderStatusChangedPayload{
		OrderID:               o.ID,
		CustomerID:            o.CustomerID,
		From:                  string(from),
		To:                    string(o.Status),
		TrackingNumber:        o.TrackingNumber,
		EstimatedDeliveryDate: o.EstimatedDeliveryDate,
		CancelReason:          o.CancelReason,
	})
}

func (n *Notifier) LowStock(ctx context.Context, rec inventory.StockRecord) {
	n.publish(ctx, TopicLowStock, EventLowStock, rec.ProductID, LowStockPayload{
		ProductID: rec.ProductID,
		OnHand:    rec.OnHand,
		Reserved:  rec.Reserved,
		Threshold: rec.LowStockThreshold,
	})
}

func (n *Notifier) publish(ctx context.Context, topic, eventType, correlationID string, payload any) {
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    n.now().UTC(),
		Producer:      n.producer,
		CorrelationID: correlationID,
		Payload:       kafka.MustMarshal(payload),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	headers := kafka.InjectTrace(ctx, []kafkago.Header{{Key: "event_type", Value: []byte(eventType)}})

	if !n.pub.TryPublish(topic, PartitionKey(correlationID), kafka.MustMarshal(env), headers...) {
		n.log.Error("event dropped, publish buffer full",
			zap.String("topic", topic),
			zap.String("event_id", env.EventID),
			zap.String("correlation_id", correlationID))
		return
	}
	n.log.Debug("event published",
		zap.String("topic", topic),
		zap.String("event_id", env.EventID),
		zap.String("correlation_id", correlationID))
}
