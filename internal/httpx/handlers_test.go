package httpx_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-crypto-checkout/internal/asset"
	"github.com/ariefcatur/go-crypto-checkout/internal/chain"
	"github.com/ariefcatur/go-crypto-checkout/internal/httpx"
	"github.com/ariefcatur/go-crypto-checkout/internal/inventory"
	"github.com/ariefcatur/go-crypto-checkout/internal/memstore"
	"github.com/ariefcatur/go-crypto-checkout/internal/orders"
	"github.com/ariefcatur/go-crypto-checkout/internal/payments"
	"github.com/ariefcatur/go-crypto-checkout/internal/pricing"
	"github.com/ariefcatur/go-crypto-checkout/internal/redisx"
)

const (
	merchant = "0x9999999999999999999999999999999999999999"
	txHash   = "0x8f2a5b3c4d6e7f8091a2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d5e6f708"
)

type stubVerifier struct {
	mu  sync.Mutex
	res chain.Result
}

func (v *stubVerifier) Verify(context.Context, chain.Expectation) chain.Result {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.res
}

func (v *stubVerifier) set(res chain.Result) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.res = res
}

type app struct {
	handler  http.Handler
	ledger   *inventory.Ledger
	cache    *redisx.StatusCache
	verifier *stubVerifier
	mu       sync.Mutex
	now      time.Time
}

func (a *app) clock() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.now
}

func (a *app) advance(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = a.now.Add(d)
}

func newApp(t *testing.T, rateLimit int) *app {
	t.Helper()
	ctx := context.Background()
	log := zap.NewNop()

	mr := miniredis.RunT(t)
	rdb, err := redisx.New(ctx, mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	a := &app{
		verifier: &stubVerifier{res: chain.Result{Outcome: chain.Confirmed, Confirmations: 5}},
		cache:    redisx.NewStatusCache(rdb),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	store := memstore.New()
	a.ledger = inventory.NewLedger(store, nil, log)
	svc := orders.NewService(store, store, a.ledger, orders.Notifiers{a.cache}, log).WithClock(a.clock)

	prices := pricing.NewStatic(map[asset.Asset]decimal.Decimal{
		asset.ETH: decimal.NewFromInt(2500), asset.BTC: decimal.NewFromInt(45000),
		asset.USDT: decimal.NewFromInt(1), asset.USDC: decimal.NewFromInt(1), asset.DAI: decimal.NewFromInt(1),
	})
	mgr := payments.NewManager(store, svc, a.verifier, prices, payments.Config{
		ReceivingAddresses: map[asset.Asset]string{asset.ETH: merchant, asset.USDC: merchant, asset.USDT: merchant, asset.DAI: merchant},
	}, log).WithClock(a.clock)
	svc.WithPayments(mgr)

	require.NoError(t, store.UpsertProduct(ctx, orders.Product{ID: "tee", Name: "Tee", Price: orders.Price{
		USD: decimal.NewFromInt(20), ETH: decimal.RequireFromString("0.008"), BTC: decimal.RequireFromString("0.00044"),
	}}))
	_, err = a.ledger.Register(ctx, "tee", 3, 1)
	require.NoError(t, err)

	r := httpx.NewRouter(log, map[string]httpx.Pinger{"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() }})
	(&httpx.OrdersHandler{Orders: svc, Idempotency: redisx.NewIdempotency(rdb), StatusCache: a.cache, Log: log}).Register(r)
	(&httpx.PaymentsHandler{Payments: mgr, Limiter: redisx.NewLimiter(rdb, rateLimit, time.Hour), Log: log}).Register(r)
	(&httpx.InventoryHandler{Stock: a.ledger, Prices: prices, Log: log}).Register(r)
	a.handler = r
	return a
}

type call struct {
	method, path string
	body         any
	customer     string
	role         string
	headers      map[string]string
}

func (a *app) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &buf)
	if c.customer != "" {
		req.Header.Set(httpx.HeaderCustomerID, c.customer)
	}
	if c.role != "" {
		req.Header.Set(httpx.HeaderActorRole, c.role)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func orderBody(qty int) map[string]any {
	return map[string]any{
		"items":            []map[string]any{{"product_id": "tee", "quantity": qty}},
		"shipping_address": map[string]string{"full_name": "Alice", "city": "Austin", "country": "US"},
		"payment_method":   "usdc",
	}
}

func (a *app) createOrder(t *testing.T, customer string, qty int) orders.Order {
	t.Helper()
	rec := a.do(t, call{method: http.MethodPost, path: "/orders", body: orderBody(qty), customer: customer})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[orders.Order](t, rec)
}

func paymentBody(orderID string) map[string]any {
	return map[string]any{
		"order_id":   orderID,
		"usd_amount": "20",
		"asset":      "USDC",
		"amounts":    map[string]string{"ETH": "0.008", "BTC": "0.00044", "USDT": "20", "USDC": "20", "DAI": "20"},
	}
}

func TestCreateOrderIdempotencyKey(t *testing.T) {
	a := newApp(t, 10)
	hdr := map[string]string{httpx.HeaderIdempotencyKey: "checkout-1"}

	first := a.do(t, call{method: http.MethodPost, path: "/orders", body: orderBody(2), customer: "alice", headers: hdr})
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	o := decodeBody[orders.Order](t, first)
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.True(t, o.Total.USD.Equal(decimal.NewFromInt(40)))

	replay := a.do(t, call{method: http.MethodPost, path: "/orders", body: orderBody(2), customer: "alice", headers: hdr})
	require.Equal(t, http.StatusOK, replay.Code)
	assert.Equal(t, o.ID, decodeBody[orders.Order](t, replay).ID)

	rec, err := a.ledger.Get(context.Background(), "tee")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Reserved, "replay must not reserve again")
}

func TestCreateOrderErrors(t *testing.T) {
	a := newApp(t, 10)

	rec := a.do(t, call{method: http.MethodPost, path: "/orders", body: orderBody(4), customer: "alice"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, call{method: http.MethodPost, path: "/orders", body: orderBody(1)})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, call{method: http.MethodPost, path: "/orders", body: orderBody(1), customer: "alice", role: "root"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, call{method: http.MethodPost, path: "/orders", body: map[string]any{"items": []map[string]any{{"product_id": "ghost", "quantity": 1}}}, customer: "alice"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, call{method: http.MethodPost, path: "/orders", body: map[string]any{"bogus": true}, customer: "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderReadsAndTransitions(t *testing.T) {
	a := newApp(t, 10)
	o := a.createOrder(t, "alice", 1)

	rec := a.do(t, call{method: http.MethodGet, path: "/orders/" + o.ID, customer: "bob"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, call{method: http.MethodGet, path: "/orders/" + o.ID + "/status", customer: "bob"})
	assert.Equal(t, http.StatusForbidden, rec.Code, "cached status is still owner only")

	rec = a.do(t, call{method: http.MethodGet, path: "/orders?limit=5", customer: "alice"})
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[orders.Page](t, rec)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 5, page.Limit)

	rec = a.do(t, call{method: http.MethodPatch, path: "/orders/" + o.ID + "/status", body: map[string]string{"status": "shipped"}, role: "admin"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, call{method: http.MethodPatch, path: "/orders/" + o.ID + "/status", body: map[string]string{"status": "confirmed"}, customer: "alice"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, call{method: http.MethodPatch, path: "/orders/" + o.ID + "/status", body: map[string]string{"status": "cancelled", "reason": "ordered twice"}, customer: "alice"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(t, call{method: http.MethodGet, path: "/orders/" + o.ID + "/status", customer: "alice"})
	require.Equal(t, http.StatusOK, rec.Code)
	st := decodeBody[redisx.OrderStatus](t, rec)
	assert.Equal(t, "cancelled", st.Status)

	stock, err := a.ledger.Get(context.Background(), "tee")
	require.NoError(t, err)
	assert.Equal(t, 0, stock.Reserved)
}

func TestPaymentFlow(t *testing.T) {
	a := newApp(t, 10)
	o := a.createOrder(t, "alice", 1)

	rec := a.do(t, call{method: http.MethodPost, path: "/payments", body: paymentBody(o.ID), customer: "alice"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	intent := decodeBody[payments.Intent](t, rec)
	assert.Equal(t, asset.USDC, intent.SelectedAsset)

	rec = a.do(t, call{method: http.MethodPost, path: "/payments", body: paymentBody(o.ID), customer: "alice"})
	assert.Equal(t, http.StatusConflict, rec.Code, "one active intent per order")

	verify := call{method: http.MethodPost, path: "/payments/" + intent.ID + "/verify", body: map[string]string{"transaction_hash": txHash}, customer: "alice"}

	a.verifier.set(chain.Result{Outcome: chain.Pending, Reason: "1 of 3 confirmations"})
	rec = a.do(t, verify)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "processing", decodeBody[map[string]string](t, rec)["status"])

	a.verifier.set(chain.Result{Outcome: chain.Confirmed, Confirmations: 3})
	rec = a.do(t, verify)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, payments.StatusCompleted, decodeBody[payments.Intent](t, rec).Status)

	rec = a.do(t, call{method: http.MethodGet, path: "/orders/" + o.ID + "/status", customer: "alice"})
	require.Equal(t, http.StatusOK, rec.Code)
	st := decodeBody[redisx.OrderStatus](t, rec)
	assert.Equal(t, "confirmed", st.Status)
	assert.Equal(t, "completed", st.PaymentStatus)

	rec = a.do(t, call{method: http.MethodGet, path: "/payments/" + intent.ID, customer: "bob"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPaymentExpiredAndRejected(t *testing.T) {
	a := newApp(t, 10)
	o := a.createOrder(t, "alice", 1)

	rec := a.do(t, call{method: http.MethodPost, path: "/payments", body: paymentBody(o.ID), customer: "alice"})
	require.Equal(t, http.StatusCreated, rec.Code)
	intent := decodeBody[payments.Intent](t, rec)

	rec = a.do(t, call{method: http.MethodPost, path: "/payments/" + intent.ID + "/verify", body: map[string]string{"transaction_hash": "0x123"}, customer: "alice"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	a.advance(31 * time.Minute)
	rec = a.do(t, call{method: http.MethodPost, path: "/payments/" + intent.ID + "/verify", body: map[string]string{"transaction_hash": txHash}, customer: "alice"})
	assert.Equal(t, http.StatusGone, rec.Code)

	btc := paymentBody(o.ID)
	btc["asset"] = "BTC"
	rec = a.do(t, call{method: http.MethodPost, path: "/payments", body: btc, customer: "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	skewed := paymentBody(o.ID)
	skewed["amounts"] = map[string]string{"ETH": "0.008", "BTC": "0.00044", "USDT": "20", "USDC": "25", "DAI": "20"}
	rec = a.do(t, call{method: http.MethodPost, path: "/payments", body: skewed, customer: "alice"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPaymentRateLimit(t *testing.T) {
	a := newApp(t, 2)
	o := a.createOrder(t, "alice", 1)

	verify := call{method: http.MethodPost, path: "/payments/ghost/verify", body: map[string]string{"transaction_hash": txHash}, customer: "alice"}
	assert.Equal(t, http.StatusNotFound, a.do(t, verify).Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, verify).Code)

	rec := a.do(t, call{method: http.MethodPost, path: "/payments", body: paymentBody(o.ID), customer: "alice"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = a.do(t, call{method: http.MethodPost, path: "/payments", body: paymentBody(o.ID), customer: "ops", role: "admin"})
	assert.Equal(t, http.StatusCreated, rec.Code, "admins are not throttled")
}

func TestInventoryEndpoints(t *testing.T) {
	a := newApp(t, 10)

	rec := a.do(t, call{method: http.MethodGet, path: "/inventory/tee"})
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 3, view["on_hand"])
	assert.EqualValues(t, 3, view["available"])

	rec = a.do(t, call{method: http.MethodGet, path: "/inventory/tee/availability?quantity=4"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody[map[string]any](t, rec)["available"])

	rec = a.do(t, call{method: http.MethodGet, path: "/inventory/tee/availability?quantity=0"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, call{method: http.MethodGet, path: "/inventory/ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	adjust := map[string]any{"product_id": "tee", "delta": 7, "reason": "supplier delivery"}
	rec = a.do(t, call{method: http.MethodPost, path: "/inventory/adjust", body: adjust, customer: "alice"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, call{method: http.MethodPost, path: "/inventory/adjust", body: adjust, role: "admin"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 10, decodeBody[map[string]any](t, rec)["on_hand"])

	rec = a.do(t, call{method: http.MethodPost, path: "/inventory/adjust", body: map[string]any{"product_id": "tee", "delta": -50, "reason": "audit"}, role: "admin"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPricesAndHealth(t *testing.T) {
	a := newApp(t, 10)

	rec := a.do(t, call{method: http.MethodGet, path: "/prices"})
	require.Equal(t, http.StatusOK, rec.Code)
	ps := decodeBody[map[string]decimal.Decimal](t, rec)
	assert.True(t, ps["ETH"].Equal(decimal.NewFromInt(2500)))

	rec = a.do(t, call{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestHealthReportsFailedDependency(t *testing.T) {
	r := httpx.NewRouter(zap.NewNop(), map[string]httpx.Pinger{
		"postgres": func(context.Context) error { return errors.New("connection refused") },
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
