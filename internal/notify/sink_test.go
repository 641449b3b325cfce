package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ariefcatur/go-crypto-checkout/internal/inventory"
	"github.com/ariefcatur/go-crypto-checkout/internal/kafka"
	"github.com/ariefcatur/go-crypto-checkout/internal/orders"
)

type memDedup struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (d *memDedup) FirstSeen(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

func (d *memDedup) Forget(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
	return nil
}

func toMessage(m sent) kafkago.Message {
	return kafkago.Message{Topic: m.topic, Key: m.key, Value: m.value, Headers: m.headers}
}

func TestSinkDeliversOnce(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	dedup := &memDedup{seen: map[string]bool{}}
	sink := NewSink(dedup, zap.New(core))

	pub := &fakePublisher{}
	n := NewNotifier(pub, "checkout-api", zap.NewNop())
	n.OrderStatusChanged(context.Background(), orders.Order{ID: "o1", CustomerID: "alice", Status: orders.StatusShipped, TrackingNumber: "TRK1"}, orders.StatusProcessing)
	n.LowStock(context.Background(), inventory.StockRecord{ProductID: "tee", OnHand: 2, LowStockThreshold: 10})
	require.Len(t, pub.msgs, 2)

	ctx := context.Background()
	require.NoError(t, sink.Handle(ctx, toMessage(pub.msgs[0])))
	require.NoError(t, sink.Handle(ctx, toMessage(pub.msgs[0])))
	require.NoError(t, sink.Handle(ctx, toMessage(pub.msgs[1])))

	changed := logs.FilterMessage("order status changed").All()
	require.Len(t, changed, 1)
	assert.Equal(t, "shipped", changed[0].ContextMap()["to"])
	assert.Equal(t, 1, logs.FilterMessage("duplicate event skipped").Len())

	low := logs.FilterMessage("low stock").All()
	require.Len(t, low, 1)
	assert.Equal(t, "tee", low[0].ContextMap()["product_id"])
}

func TestSinkSkipsGarbageAndRetriesDedupErrors(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	dedup := &memDedup{seen: map[string]bool{}}
	sink := NewSink(dedup, zap.New(core))

	assert.NoError(t, sink.Handle(context.Background(), kafkago.Message{Topic: TopicLowStock, Value: []byte("{nope")}))
	assert.Equal(t, 1, logs.FilterMessage("undecodable event").Len())

	pub := &fakePublisher{}
	NewNotifier(pub, "checkout-api", zap.NewNop()).OrderConfirmed(context.Background(), orders.Order{ID: "o2"})
	dedup.err = errors.New("redis down")
	assert.Error(t, sink.Handle(context.Background(), toMessage(pub.msgs[0])), "returning an error leaves the offset uncommitted")
}

func TestSinkForgetsEventWhenPayloadIsBad(t *testing.T) {
	dedup := &memDedup{seen: map[string]bool{}}
	sink := NewSink(dedup, zap.NewNop())

	env := Envelope{EventID: "evt-9", EventType: EventLowStock, Payload: []byte(`"not an object"`)}
	err := sink.Handle(context.Background(), kafkago.Message{Value: kafka.MustMarshal(env)})
	require.Error(t, err)
	assert.False(t, dedup.seen["evt-9"])
}
