package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-crypto-checkout/internal/inventory"
	"github.com/ariefcatur/go-crypto-checkout/internal/orders"
	"github.com/ariefcatur/go-crypto-checkout/internal/pricing"
)

type StockService interface {
	Get(ctx context.Context, productID string) (inventory.StockRecord, error)
	CheckAvailability(ctx context.Context, productID string, qty int) (bool, error)
	Adjust(ctx context.Context, productID string, delta int, reason string) (inventory.StockRecord, error)
}

type InventoryHandler struct {
	Stock  StockService
	Prices pricing.Source
	Log    *zap.Logger
}

type AdjustReq struct {
	ProductID string `json:"product_id"`
	Delta     int    `json:"delta"`
	Reason    string `json:"reason"`
}

type stockView struct {
	inventory.StockRecord
	Available int  `json:"available"`
	LowStock  bool `json:"low_stock"`
}

func viewOf(rec inventory.StockRecord) stockView {
	return stockView{StockRecord: rec, Available: rec.Available(), LowStock: rec.LowStock()}
}

func (h *InventoryHandler) Register(r chi.Router) {
	r.Get("/inventory/{productId}", h.getStock)
	r.Get("/inventory/{productId}/availability", h.availability)
	r.Post("/inventory/adjust", h.adjust)
	r.Get("/prices", h.prices)
}

func (h *InventoryHandler) getStock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	rec, err := h.Stock.Get(ctx, chi.URLParam(r, "productId"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(rec))
}

func (h *InventoryHandler) availability(w http.ResponseWriter, r *http.Request) {
	qty, err := intParam(r.URL.Query().Get("quantity"), 1)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	productID := chi.URLParam(r, "productId")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ok, err := h.Stock.CheckAvailability(ctx, productID, qty)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product_id": productID, "quantity": qty, "available": ok})
}

func (h *InventoryHandler) adjust(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if !actor.Privileged() {
		writeError(w, h.Log, orders.ErrNotAuthorized)
		return
	}
	var req AdjustReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rec, err := h.Stock.Adjust(ctx, req.ProductID, req.Delta, req.Reason)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(rec))
}

func (h *InventoryHandler) prices(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Prices.Prices(ctx)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}
