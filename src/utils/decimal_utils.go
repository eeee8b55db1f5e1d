package utils

import "github.com/shopspring/decimal"

const BpsDenominator = 10000

// DivTrunc divides a by b truncating toward zero, matching integer
// division over base-unit amounts. Returns zero when b is zero.
func DivTrunc(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	q, _ := a.QuoRem(b, 0)
	return q
}

// ApplyBps returns value * bps / 10000, truncated toward zero.
func ApplyBps(value decimal.Decimal, bps int64) decimal.Decimal {
	return DivTrunc(value.Mul(decimal.NewFromInt(bps)), decimal.NewFromInt(BpsDenominator))
}

// MinDecimal returns the smaller of a and b.
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
