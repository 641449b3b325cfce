// Package pricing supplies USD reference prices used for advisory amount checks.
package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-crypto-checkout/internal/asset"
)

var ErrAmountMismatch = errors.New("amount does not match current price")

type Source interface {
	Prices(ctx context.Context) (map[asset.Asset]decimal.Decimal, error)
}

// Static serves fixed prices, typically loaded from configuration.
type Static struct {
	prices map[asset.Asset]decimal.Decimal
}

func NewStatic(prices map[asset.Asset]decimal.Decimal) *Static {
	cp := make(map[asset.Asset]decimal.Decimal, len(prices))
	for a, p := range prices {
		if p.IsPositive() {
			cp[a] = p
		}
	}
	return &Static{prices: cp}
}

func (s *Static) Prices(context.Context) (map[asset.Asset]decimal.Decimal, error) {
	out := make(map[asset.Asset]decimal.Decimal, len(s.prices))
	for a, p := range s.prices {
		out[a] = p
	}
	return out, nil
}

// ValidateAmount checks that amount of a is worth usd at the given prices,
// within a relative tolerance.
func ValidateAmount(prices map[asset.Asset]decimal.Decimal, a asset.Asset, amount, usd, tolerance decimal.Decimal) error {
	price, ok := prices[a]
	if !ok || !price.IsPositive() {
		return fmt.Errorf("no price for %s", a)
	}
	if !usd.IsPositive() {
		return fmt.Errorf("%w: usd amount must be positive", ErrAmountMismatch)
	}
	value := amount.Mul(price)
	drift := value.Sub(usd).Abs().Div(usd)
	if drift.GreaterThan(tolerance) {
		return fmt.Errorf("%w: %s %s is worth %s USD, expected %s", ErrAmountMismatch,
			amount, a, value.StringFixed(2), usd.StringFixed(2))
	}
	return nil
}
