package core

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// TokenDecimals is the number of decimal places of the payment asset.
const TokenDecimals = 18

// BpsDenominator is the basis-point denominator used by every rate.
const BpsDenominator = 10_000

// Tokens converts a whole-token count into base units.
func Tokens(n int64) *big.Int {
	return decimal.New(n, TokenDecimals).BigInt()
}

// ParseTokens parses a decimal token amount such as "12.5" into base units.
// Amounts with more than TokenDecimals fractional digits are rejected.
func ParseTokens(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q is negative", s)
	}
	units := d.Shift(TokenDecimals)
	if !units.Equal(units.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", s, TokenDecimals)
	}
	return units.BigInt(), nil
}

// FormatTokens renders base units as a decimal token amount.
func FormatTokens(units *big.Int) string {
	if units == nil {
		return "0"
	}
	return decimal.NewFromBigInt(units, -TokenDecimals).String()
}

// MulBps returns amount * bps / 10000, rounded down.
func MulBps(amount *big.Int, bps uint64) *big.Int {
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return out.Quo(out, big.NewInt(BpsDenominator))
}

// Amount returns a copy of v, or zero when v is nil.
func Amount(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
