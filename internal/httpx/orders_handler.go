package httpx

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-crypto-checkout/internal/asset"
	"github.com/ariefcatur/go-crypto-checkout/internal/orders"
	"github.com/ariefcatur/go-crypto-checkout/internal/redisx"
)

type OrderService interface {
	CreateOrder(ctx context.Context, in orders.CreateOrderInput) (orders.Order, error)
	GetOrder(ctx context.Context, actor orders.Actor, id string) (orders.Order, error)
	ListOrders(ctx context.Context, actor orders.Actor, q orders.ListQuery) (orders.Page, error)
	TransitionOrder(ctx context.Context, req orders.TransitionRequest) (orders.Order, error)
}

// OrdersHandler serves the order endpoints. Idempotency and StatusCache are
// optional; without them every request goes to the service.
type OrdersHandler struct {
	Orders      OrderService
	Idempotency *redisx.Idempotency
	StatusCache *redisx.StatusCache
	Log         *zap.Logger
}

type CreateOrderReq struct {
	CustomerID      string                 `json:"customer_id,omitempty"`
	Items           []orders.ItemInput     `json:"items"`
	ShippingAddress orders.ShippingAddress `json:"shipping_address"`
	PaymentMethod   string                 `json:"payment_method,omitempty"`
}

type TransitionReq struct {
	Status         orders.Status `json:"status"`
	Reason         string        `json:"reason,omitempty"`
	TrackingNumber string        `json:"tracking_number,omitempty"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Patch("/orders/{id}/status", h.transition)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	var req CreateOrderReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	customerID := actor.CustomerID
	if actor.Privileged() && req.CustomerID != "" {
		customerID = req.CustomerID
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	idemKey := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	if idemKey != "" && h.Idempotency != nil {
		existing, claimed, err := h.Idempotency.Claim(ctx, customerID, idemKey)
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		if !claimed {
			o, err := h.Orders.GetOrder(ctx, actor, existing)
			if err != nil {
				writeError(w, h.Log, err)
				return
			}
			writeJSON(w, http.StatusOK, o)
			return
		}
	}

	o, err := h.Orders.CreateOrder(ctx, orders.CreateOrderInput{
		CustomerID:      customerID,
		Items:           req.Items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   asset.Asset(req.PaymentMethod),
	})
	if idemKey != "" && h.Idempotency != nil {
		if err != nil {
			_ = h.Idempotency.Abandon(ctx, customerID, idemKey)
		} else if cerr := h.Idempotency.Complete(ctx, customerID, idemKey, o.ID); cerr != nil {
			h.Log.Warn("store idempotency result", zap.String("order_id", o.ID), zap.Error(cerr))
		}
	}
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if h.StatusCache != nil {
		_ = h.StatusCache.Set(ctx, redisx.StatusOf(o))
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), 1)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	limit, err := intParam(q.Get("limit"), 0)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	res, err := h.Orders.ListOrders(ctx, actor, orders.ListQuery{
		CustomerID: q.Get("customer_id"),
		Status:     orders.Status(q.Get("status")),
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.GetOrder(ctx, actor, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) cache
	if h.StatusCache != nil {
		st, ok, err := h.StatusCache.Get(ctx, orderID)
		if err != nil {
			h.Log.Warn("status cache read", zap.String("order_id", orderID), zap.Error(err))
		}
		if ok {
			if !actor.Privileged() && st.CustomerID != actor.CustomerID {
				writeError(w, h.Log, orders.ErrNotAuthorized)
				return
			}
			writeJSON(w, http.StatusOK, st)
			return
		}
	}

	// 2) store
	o, err := h.Orders.GetOrder(ctx, actor, orderID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	st := redisx.StatusOf(o)
	if h.StatusCache != nil {
		_ = h.StatusCache.Set(ctx, st)
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *OrdersHandler) transition(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	var req TransitionReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.TransitionOrder(ctx, orders.TransitionRequest{
		OrderID:        chi.URLParam(r, "id"),
		Status:         req.Status,
		Actor:          actor,
		Reason:         req.Reason,
		TrackingNumber: req.TrackingNumber,
	})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Join(errBadRequest, err)
	}
	return n, nil
}
