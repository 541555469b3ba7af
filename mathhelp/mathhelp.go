package mathhelp

import (
	"math"

	"golang.org/x/exp/constraints"
)

func Clamp[T constraints.Integer | constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func Abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

// Sign returns -1, 0 or 1.
func Sign(i int) int {
	return Bool2int(i > 0) - Bool2int(i < 0)
}

func Bool2int(b bool) int {
	if b {
		return 1
	}
	return 0
}

// CeilDiv is the ceiling of a/b for b > 0, never negative.
// Quotients within a relative 1e-9 above a whole number round down to it,
// so spans that are an exact multiple of b after float noise do not gain a unit.
func CeilDiv(a, b float64) int {
	if !(a > 0) || !(b > 0) {
		return 0
	}
	q := a / b
	return int(math.Ceil(q - 1e-9*math.Max(1, q)))
}
