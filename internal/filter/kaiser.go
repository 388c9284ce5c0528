// Package filter provides Kaiser-window FIR design for filter banks.
package filter

import (
	"errors"
	"fmt"
	"math"

	"github.com/tphakala/go-reverb-emulator/internal/mathutil"
)

const (
	windowNormalizationFactor = 2.0
	sincZeroThreshold         = 1e-10
	defaultResponsePoints     = 512
)

// ErrInvalidCutoff is returned when a prototype cutoff lies outside (0, π).
var ErrInvalidCutoff = errors.New("cutoff must be in (0, π) rad/sample")

// KaiserWindow generates a Kaiser window of the specified length and β parameter.
//
// w[n] = I₀(β·√(1 - ((n - α)/α)²)) / I₀(β), α = (N-1)/2
//
// The window is symmetric and its center value is 1.
func KaiserWindow(length int, beta float64) []float64 {
	if length < 1 {
		return []float64{}
	}

	window := make([]float64, length)
	if length == 1 {
		window[0] = 1
		return window
	}

	alpha := float64(length-1) / windowNormalizationFactor
	i0Beta := mathutil.BesselI0(beta)

	for n := range length {
		x := (float64(n) - alpha) / alpha
		window[n] = mathutil.BesselI0(beta*math.Sqrt(1.0-x*x)) / i0Beta
	}

	return window
}

// Prototype is a linear-phase lowpass designed with a Kaiser window.
type Prototype struct {
	// Taps are the filter coefficients (odd length, symmetric).
	Taps []float64

	// Cutoff is the -6 dB frequency in rad/sample.
	Cutoff float64

	// Beta is the Kaiser window parameter used.
	Beta float64
}

// DesignPrototype designs an unscaled windowed-sinc lowpass with cutoff wc
// (rad/sample) and the given stopband attenuation in dB. The transition width
// used for the length estimate equals the cutoff, which is the usual choice
// for cosine-modulated filter bank prototypes.
//
// h[m] = sin(wc·m)/(π·m) · w[m], m centered on the middle tap.
func DesignPrototype(wc, attenuation float64) (Prototype, error) {
	if wc <= 0 || wc >= math.Pi {
		return Prototype{}, fmt.Errorf("%w: %f", ErrInvalidCutoff, wc)
	}

	numTaps, beta := mathutil.KaiserOrder(attenuation, wc/math.Pi)
	numTaps = 2*(numTaps/2) + 1

	window := KaiserWindow(numTaps, beta)
	taps := make([]float64, numTaps)
	center := numTaps / 2

	for n := range numTaps {
		m := float64(n - center)
		if math.Abs(m) < sincZeroThreshold {
			taps[n] = wc / math.Pi * window[n]
			continue
		}
		taps[n] = math.Sin(wc*m) / (math.Pi * m) * window[n]
	}

	return Prototype{Taps: taps, Cutoff: wc, Beta: beta}, nil
}

// FilterResponse holds the frequency response of a filter.
type FilterResponse struct {
	// Frequencies at which response was calculated (normalized, 0 to 0.5)
	Frequencies []float64

	// Magnitude response at each frequency (linear scale)
	Magnitude []float64
}

// ComputeFrequencyResponse evaluates the DTFT magnitude of a FIR filter at
// numPoints frequencies from DC to Nyquist.
func ComputeFrequencyResponse(coeffs []float64, numPoints int) FilterResponse {
	if numPoints <= 0 {
		numPoints = defaultResponsePoints
	}

	response := FilterResponse{
		Frequencies: make([]float64, numPoints),
		Magnitude:   make([]float64, numPoints),
	}

	for k := range numPoints {
		freq := float64(k) / float64(windowNormalizationFactor*numPoints)
		response.Frequencies[k] = freq

		var realPart, imagPart float64
		omega := windowNormalizationFactor * math.Pi * freq

		for n, h := range coeffs {
			angle := omega * float64(n)
			realPart += h * math.Cos(angle)
			imagPart -= h * math.Sin(angle)
		}

		response.Magnitude[k] = math.Hypot(realPart, imagPart)
	}

	return response
}

// MagnitudeDB converts linear magnitude to decibels.
func MagnitudeDB(magnitude float64) float64 {
	const (
		minMagnitude = 1e-10 // Avoid log(0)
		dbMultiplier = 20.0
	)

	if magnitude < minMagnitude {
		magnitude = minMagnitude
	}
	return dbMultiplier * math.Log10(magnitude)
}
