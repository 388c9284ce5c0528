// Package mathutil provides the special functions used for Kaiser window
// filter design.
package mathutil

import (
	"math"
)

// BesselI0 computes the modified Bessel function of the first kind, order zero: I₀(x).
//
// Uses the polynomial approximations of Abramowitz & Stegun:
//   - For |x| < 3.75: series in (x/3.75)²
//   - For |x| ≥ 3.75: asymptotic expansion scaled by eˣ/√x
//
// Relative accuracy is around 1e-7, which is well below what window design needs.
func BesselI0(x float64) float64 {
	ax := math.Abs(x)

	if ax < besselSmallArgThreshold {
		t := x / besselSmallArgThreshold
		t *= t

		return 1.0 + t*(besselI0Coeff1+t*(besselI0Coeff2+t*(besselI0Coeff3+
			t*(besselI0Coeff4+t*(besselI0Coeff5+t*besselI0Coeff6)))))
	}

	t := besselSmallArgThreshold / ax

	result := besselI0AsympCoeff0 + t*(besselI0AsympCoeff1+t*(besselI0AsympCoeff2+
		t*(besselI0AsympCoeff3+t*(besselI0AsympCoeff4+t*(besselI0AsympCoeff5+
			t*(besselI0AsympCoeff6+t*(besselI0AsympCoeff7+t*besselI0AsympCoeff8)))))))

	return math.Exp(ax) * result / math.Sqrt(ax)
}

// KaiserBeta computes the Kaiser window β parameter from the desired
// stopband attenuation in decibels.
//
// Formula from Kaiser & Schafer:
//   - For att > 50 dB: β = 0.1102 * (att - 8.7)
//   - For 21 dB ≤ att ≤ 50 dB: β = 0.5842 * (att - 21)^0.4 + 0.07886 * (att - 21)
//   - For att < 21 dB: β = 0
func KaiserBeta(attenuation float64) float64 {
	if attenuation > kaiserAttHigh {
		return kaiserBetaHighCoeff1 * (attenuation - kaiserBetaHighOffset)
	} else if attenuation >= kaiserAttMedium {
		delta := attenuation - kaiserAttMedium
		return kaiserBetaMediumCoeff1*math.Pow(delta, kaiserBetaMediumPower) + kaiserBetaMediumCoeff2*delta
	}
	return 0.0
}

// KaiserOrder returns the number of taps and the β parameter of a Kaiser
// window lowpass meeting the given stopband attenuation (dB) with the given
// transition width, expressed as a fraction of the Nyquist frequency.
//
// The tap count is not forced odd; callers that need a type I filter round it
// themselves.
func KaiserOrder(attenuation, width float64) (numTaps int, beta float64) {
	beta = KaiserBeta(attenuation)

	var n float64
	if attenuation > kaiserAttMedium {
		n = (attenuation - kaiserOrderOffset) / (kaiserOrderMultiplier * math.Pi * width)
	} else {
		n = kaiserOrderLowAttFactor / width
	}

	numTaps = int(math.Ceil(n)) + 1

	if numTaps < minFilterLength {
		numTaps = minFilterLength
	}
	if numTaps > maxFilterLength {
		numTaps = maxFilterLength
	}

	return numTaps, beta
}
