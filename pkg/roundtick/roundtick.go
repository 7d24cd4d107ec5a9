// Package roundtick centralizes tick-size rounding for price and quantity
// comparisons, per the design note that floating/decimal fill-delta and
// price-level arithmetic should never compare raw values directly.
package roundtick

import "github.com/shopspring/decimal"

// Tick rounds v to the nearest multiple of size. A zero or negative size is
// treated as "no rounding" and returns v unchanged, so callers that haven't
// configured a tick size for an instrument degrade gracefully rather than
// dividing by zero.
func Tick(v, size decimal.Decimal) decimal.Decimal {
	if size.Sign() <= 0 {
		return v
	}
	return v.DivRound(size, 0).Mul(size)
}

// ExceedsEpsilon reports whether delta, rounded to the nearest multiple of
// size, is positive — i.e. whether a fill delta is large enough to act on
// rather than being rounding noise. A delta that rounds to zero at the
// instrument's tick (less than half a tick) is not actionable.
func ExceedsEpsilon(delta, size decimal.Decimal) bool {
	if size.Sign() <= 0 {
		return delta.Sign() > 0
	}
	return Tick(delta, size).Sign() > 0
}
