package pqmf

import "math/bits"

// NextPow2 returns the smallest power of two >= n (1 for n <= 1).
func NextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// CenterPadding returns the zeros added before and after a signal of n
// samples to reach NextPow2(n). An odd total puts the extra zero at the end.
func CenterPadding(n int) (left, right int) {
	pad := NextPow2(n) - n
	return pad / 2, pad/2 + pad%2
}

// CenterPadNextPow2 centres x in a zero buffer of length NextPow2(len(x))
// and returns it with the number of leading zeros.
func CenterPadNextPow2(x []float64) (padded []float64, left int) {
	left, _ = CenterPadding(len(x))
	padded = make([]float64, NextPow2(len(x)))
	copy(padded[left:], x)
	return padded, left
}
