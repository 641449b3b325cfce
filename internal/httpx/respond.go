package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-crypto-checkout/internal/inventory"
	"github.com/ariefcatur/go-crypto-checkout/internal/orders"
	"github.com/ariefcatur/go-crypto-checkout/internal/payments"
	"github.com/ariefcatur/go-crypto-checkout/internal/redisx"
)

// Identity headers are set by the upstream auth gateway.
const (
	HeaderCustomerID     = "X-Customer-Id"
	HeaderActorRole      = "X-Actor-Role"
	HeaderIdempotencyKey = "Idempotency-Key"
)

var (
	errBadRequest      = errors.New("bad request")
	errUnauthenticated = errors.New("missing caller identity")
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}

func actorFrom(r *http.Request) (orders.Actor, error) {
	a := orders.Actor{
		CustomerID: strings.TrimSpace(r.Header.Get(HeaderCustomerID)),
		Role:       orders.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderActorRole)))),
	}
	switch a.Role {
	case "":
		a.Role = orders.RoleCustomer
	case orders.RoleCustomer, orders.RoleAdmin:
	default:
		return orders.Actor{}, errors.Join(errBadRequest, errors.New("unknown actor role"))
	}
	if a.Role == orders.RoleCustomer && a.CustomerID == "" {
		return orders.Actor{}, errUnauthenticated
	}
	return a, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, orders.ErrInvalidOrder),
		errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, payments.ErrUnsupportedAsset),
		errors.Is(err, payments.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, orders.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, inventory.ErrStockNotFound),
		errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, orders.ErrProductNotFound),
		errors.Is(err, payments.ErrIntentNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrInvalidTransition),
		errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, inventory.ErrInvalidCommit),
		errors.Is(err, inventory.ErrInvalidAdjustment),
		errors.Is(err, payments.ErrActiveIntentExists),
		errors.Is(err, payments.ErrIntentClosed),
		errors.Is(err, payments.ErrOrderNotPayable),
		errors.Is(err, redisx.ErrInFlight):
		return http.StatusConflict
	case errors.Is(err, payments.ErrExpired):
		return http.StatusGone
	case errors.Is(err, payments.ErrInvalidTransaction),
		errors.Is(err, payments.ErrAmountMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, payments.ErrPaymentPending):
		return http.StatusAccepted
	case errors.Is(err, redisx.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
		writeJSON(w, code, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
