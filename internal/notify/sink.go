package notify

import (
	"context"
	"encoding/json"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-crypto-checkout/internal/kafka"
)

type Deduper interface {
	FirstSeen(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

// Sink is the consuming end of the settlement topics. It delivers each event
// at most once per event id and records it in the log.
type Sink struct {
	dedup Deduper
	log   *zap.Logger
}

func NewSink(dedup Deduper, log *zap.Logger) *Sink {
	return &Sink{dedup: dedup, log: log}
}

// Handle is a kafka.Handler. Undecodable messages are logged and committed so
// they cannot block the partition.
func (s *Sink) Handle(ctx context.Context, m kafkago.Message) error {
	ctx = kafka.ExtractTrace(ctx, m.Headers)

	var env Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		s.log.Error("undecodable event", zap.String("topic", m.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}

	first, err := s.dedup.FirstSeen(ctx, env.EventID)
	if err != nil {
		return err
	}
	if !first {
		s.log.Debug("duplicate event skipped", zap.String("event_id", env.EventID))
		return nil
	}

	if err := s.deliver(ctx, env); err != nil {
		if ferr := s.dedup.Forget(ctx, env.EventID); ferr != nil {
			s.log.Warn("forget event", zap.String("event_id", env.EventID), zap.Error(ferr))
		}
		return err
	}
	return nil
}

func (s *Sink) deliver(ctx context.Context, env Envelope) error {
	fields := []zap.Field{
		zap.String("event_id", env.EventID),
		zap.String("producer", env.Producer),
		zap.Time("occurred_at", env.OccurredAt),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		fields = append(fields, zap.String("trace_id", sc.TraceID().String()))
	}

	switch env.EventType {
	case EventOrderConfirmed:
		p, err := kafka.UnwrapPayload[OrderConfirmedPayload](env.Payload)
		if err != nil {
			return err
		}
		s.log.Info("order confirmed", append(fields,
			zap.String("order_id", p.OrderID),
			zap.String("customer_id", p.CustomerID),
			zap.String("payment_method", p.PaymentMethod),
			zap.String("tx_hash", p.TransactionHash),
			zap.String("total_usd", p.TotalUSD))...)
	case EventOrderStatusChanged:
		p, err := kafka.UnwrapPayload[OrderStatusChangedPayload](env.Payload)
		if err != nil {
			return err
		}
		s.log.Info("order status changed", append(fields,
			zap.String("order_id", p.OrderID),
			zap.String("customer_id", p.CustomerID),
			zap.String("from", p.From),
			zap.String("to", p.To),
			zap.String("tracking_number", p.TrackingNumber))...)
	case EventLowStock:
		p, err := kafka.UnwrapPayload[LowStockPayload](env.Payload)
		if err != nil {
			return err
		}
		s.log.Warn("low stock", append(fields,
			zap.String("product_id", p.ProductID),
			zap.Int("on_hand", p.OnHand),
			zap.Int("threshold", p.Threshold))...)
	default:
		s.log.Warn("unknown event type", append(fields, zap.String("event_type", env.EventType))...)
	}
	return nil
}
