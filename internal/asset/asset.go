// Package asset describes the crypto assets the storefront prices and accepts.
package asset

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

type Asset string

const (
	ETH  Asset = "ETH"
	BTC  Asset = "BTC"
	USDT Asset = "USDT"
	USDC Asset = "USDC"
	DAI  Asset = "DAI"
)

// All lists every asset an intent carries a requested amount for.
var All = []Asset{ETH, BTC, USDT, USDC, DAI}

var decimals = map[Asset]int32{
	ETH:  18,
	BTC:  8,
	USDT: 6,
	USDC: 6,
	DAI:  18,
}

// Parse accepts any casing ("eth", "Eth").
func Parse(s string) (Asset, error) {
	a := Asset(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := decimals[a]; !ok {
		return "", fmt.Errorf("unknown asset %q", s)
	}
	return a, nil
}

func (a Asset) Decimals() int32 { return decimals[a] }

// IsToken reports whether the asset is an ERC-20 token rather than a native coin.
func (a Asset) IsToken() bool {
	switch a {
	case USDT, USDC, DAI:
		return true
	}
	return false
}

// Payable reports whether a payment in this asset can be verified on the EVM ledger.
// BTC is priced for display but cannot be settled here.
func (a Asset) Payable() bool {
	return a == ETH || a.IsToken()
}

// FromUnits converts an integer amount of base units (wei, token units) to a decimal amount.
func (a Asset) FromUnits(units *big.Int) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, -a.Decimals())
}

// ToUnits converts a decimal amount to base units, truncating below the asset's precision.
func (a Asset) ToUnits(amount decimal.Decimal) *big.Int {
	return amount.Shift(a.Decimals()).Truncate(0).BigInt()
}
