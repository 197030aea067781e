package ton

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// NanoDecimals is the number of decimal places of the native currency.
const NanoDecimals = 9

var hundred = big.NewInt(100)

// ToNano converts a TON-denominated decimal amount to integer nanotons,
// truncating anything below one nanoton.
func ToNano(amount decimal.Decimal) *big.Int {
	return amount.Shift(NanoDecimals).BigInt()
}

// FromNano converts integer nanotons back to a TON-denominated decimal.
func FromNano(n *big.Int) decimal.Decimal {
	if n == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n, -NanoDecimals)
}

// ParsePercent parses a percent string into an exact rational num/den.
// The value must be a finite decimal in (0, 100].
func ParsePercent(s string) (num, den *big.Int, err error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, nil, fmt.Errorf("malformed percent %q: %w", s, err)
	}
	if d.LessThanOrEqual(decimal.Zero) || d.GreaterThan(decimal.NewFromInt(100)) {
		return nil, nil, fmt.Errorf("percent %q out of range (0, 100]", s)
	}
	num = new(big.Int).Set(d.Coefficient())
	den = big.NewInt(1)
	if exp := int64(d.Exponent()); exp > 0 {
		num.Mul(num, pow10(exp))
	} else if exp < 0 {
		den = pow10(-exp)
	}
	return num, den, nil
}

// SellAmount computes floor(balance * percent / 100) in raw token units
// using exact integer arithmetic. A nonzero balance never yields zero: if
// the floor would be zero the smallest unit is used instead. The result
// never exceeds the balance.
func SellAmount(balance *big.Int, percent string) (*big.Int, error) {
	if balance == nil || balance.Sign() <= 0 {
		return nil, fmt.Errorf("zero balance")
	}
	num, den, err := ParsePercent(percent)
	if err != nil {
		return nil, err
	}
	amount := new(big.Int).Mul(balance, num)
	amount.Quo(amount, new(big.Int).Mul(hundred, den))
	if amount.Sign() == 0 {
		amount.SetInt64(1)
	}
	if amount.Cmp(balance) > 0 {
		amount.Set(balance)
	}
	return amount, nil
}

// MinOutForLimit converts a buy limit price (TON per whole token) into the
// minimum acceptable output in raw token units for the given TON input:
// floor(tonAmount * 10^decimals / price). All arithmetic is integer-exact.
func MinOutForLimit(tonAmount, limitPrice decimal.Decimal, tokenDecimals int) (*big.Int, error) {
	if limitPrice.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("limit price must be positive")
	}
	if tonAmount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("amount must be positive")
	}
	if tokenDecimals < 0 || tokenDecimals > 76 {
		return nil, fmt.Errorf("invalid token decimals %d", tokenDecimals)
	}

	// tonAmount = an * 10^ae, limitPrice = pn * 10^pe
	an, ae := new(big.Int).Set(tonAmount.Coefficient()), int64(tonAmount.Exponent())
	pn, pe := new(big.Int).Set(limitPrice.Coefficient()), int64(limitPrice.Exponent())

	// minOut = floor(an * 10^(ae + decimals - pe) / pn)
	num := an
	shift := ae + int64(tokenDecimals) - pe
	den := pn
	if shift > 0 {
		num = new(big.Int).Mul(num, pow10(shift))
	} else if shift < 0 {
		den = new(big.Int).Mul(den, pow10(-shift))
	}
	return new(big.Int).Quo(num, den), nil
}

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}
