package money

import "github.com/shopspring/decimal"

var two = decimal.NewFromInt(2)

// MulDivFloor returns floor(a × b / c) for a, b >= 0 and c > 0.
// The product is computed exactly, so a × b may exceed int64.
func MulDivFloor(a, b, c int64) int64 {
	q, _ := quoRem(a, b, c)
	return q.IntPart()
}

// MulDivRoundHalfEven returns a × b / c rounded to the nearest integer,
// ties to even, for a, b >= 0 and c > 0.
func MulDivRoundHalfEven(a, b, c int64) int64 {
	q, r := quoRem(a, b, c)
	return roundHalfEven(q, r, decimal.NewFromInt(c)).IntPart()
}

// RoundHalfEven rounds a decimal amount of minor units to an integer using
// banker's rounding.
func RoundHalfEven(value decimal.Decimal) int64 {
	return value.RoundBank(0).IntPart()
}

func quoRem(a, b, c int64) (decimal.Decimal, decimal.Decimal) {
	if c <= 0 {
		panic("money: non-positive divisor")
	}
	num := decimal.NewFromInt(a).Mul(decimal.NewFromInt(b))
	return num.QuoRem(decimal.NewFromInt(c), 0)
}

func roundHalfEven(q, r, den decimal.Decimal) decimal.Decimal {
	switch r.Mul(two).Cmp(den) {
	case 1:
		return q.Add(decimal.NewFromInt(1))
	case 0:
		if q.IntPart()%2 != 0 {
			return q.Add(decimal.NewFromInt(1))
		}
	}
	return q
}
