package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-crypto-checkout/internal/asset"
	"github.com/ariefcatur/go-crypto-checkout/internal/orders"
	"github.com/ariefcatur/go-crypto-checkout/internal/payments"
	"github.com/ariefcatur/go-crypto-checkout/internal/redisx"
)

type PaymentService interface {
	CreateIntent(ctx context.Context, in payments.CreateIntentInput) (payments.Intent, error)
	GetIntent(ctx context.Context, actor orders.Actor, id string) (payments.Intent, error)
	SubmitProof(ctx context.Context, in payments.SubmitProofInput) (payments.Intent, error)
}

// PaymentsHandler serves payment intents. Limiter caps payment attempts per
// caller when set.
type PaymentsHandler struct {
	Payments PaymentService
	Limiter  *redisx.Limiter
	Log      *zap.Logger
}

type CreatePaymentReq struct {
	OrderID   string                     `json:"order_id"`
	Amounts   map[string]decimal.Decimal `json:"amounts"`
	USDAmount decimal.Decimal            `json:"usd_amount"`
	Asset     string                     `json:"asset"`
}

type VerifyPaymentReq struct {
	TransactionHash string `json:"transaction_hash"`
	Asset           string `json:"asset,omitempty"`
}

func (h *PaymentsHandler) Register(r chi.Router) {
	r.Post("/payments", h.createPayment)
	r.Get("/payments/{id}", h.getPayment)
	r.Post("/payments/{id}/verify", h.verifyPayment)
}

func (h *PaymentsHandler) allow(ctx context.Context, actor orders.Actor) error {
	if h.Limiter == nil || actor.Privileged() {
		return nil
	}
	return h.Limiter.Allow(ctx, actor.CustomerID)
}

func (h *PaymentsHandler) createPayment(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	var req CreatePaymentReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	selected, err := asset.Parse(req.Asset)
	if err != nil {
		writeError(w, h.Log, errors.Join(errBadRequest, err))
		return
	}
	amounts := make(map[asset.Asset]decimal.Decimal, len(req.Amounts))
	for k, v := range req.Amounts {
		a, err := asset.Parse(k)
		if err != nil {
			writeError(w, h.Log, errors.Join(errBadRequest, err))
			return
		}
		amounts[a] = v
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.allow(ctx, actor); err != nil {
		writeError(w, h.Log, err)
		return
	}
	in, err := h.Payments.CreateIntent(ctx, payments.CreateIntentInput{
		Actor:     actor,
		OrderID:   req.OrderID,
		Amounts:   amounts,
		USDAmount: req.USDAmount,
		Asset:     selected,
	})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, in)
}

func (h *PaymentsHandler) getPayment(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	in, err := h.Payments.GetIntent(ctx, actor, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (h *PaymentsHandler) verifyPayment(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	var req VerifyPaymentReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	var selected asset.Asset
	if req.Asset != "" {
		if selected, err = asset.Parse(req.Asset); err != nil {
			writeError(w, h.Log, errors.Join(errBadRequest, err))
			return
		}
	}

	// Ledger reads can be slow; give verification more room than plain reads.
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.allow(ctx, actor); err != nil {
		writeError(w, h.Log, err)
		return
	}
	paymentID := chi.URLParam(r, "id")
	in, err := h.Payments.SubmitProof(ctx, payments.SubmitProofInput{
		Actor:           actor,
		PaymentID:       paymentID,
		TransactionHash: req.TransactionHash,
		Asset:           selected,
	})
	if errors.Is(err, payments.ErrPaymentPending) {
		writeJSON(w, http.StatusAccepted, map[string]string{
			"payment_id": paymentID,
			"status":     string(payments.StatusProcessing),
			"message":    err.Error(),
		})
		return
	}
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}
