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

// MinOf returns the smallest of the given values. It panics with no values.
func MinOf[T constraints.Ordered](first T, rest ...T) T {
	out := first
	for _, v := range rest {
		if v < out {
			out = v
		}
	}
	return out
}

// CeilDiv returns ceil(n / d) for unsigned integers. d must not be zero.
func CeilDiv[T constraints.Unsigned](n, d T) T {
	if n == 0 {
		return 0
	}
	return (n + d - 1) / d
}
