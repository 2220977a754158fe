package math

import "golang.org/x/exp/constraints"

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// DivCeil divides rounding up. n must be positive; a zero a yields zero.
func DivCeil[T constraints.Unsigned](a, n T) T {
	if a == 0 {
		return 0
	}
	return (a-1)/n + 1
}
