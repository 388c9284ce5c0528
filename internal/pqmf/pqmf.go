// Package pqmf implements a pseudo-quadrature mirror filter bank: a
// cosine-modulated analysis/synthesis pair splitting audio into critically
// sampled sub-bands and reconstructing it with near-perfect accuracy.
//
// The prototype is a Kaiser-windowed lowpass whose cutoff is tuned with
// Nelder-Mead so its autocorrelation vanishes at multiples of twice the
// band count, which cancels aliasing between adjacent bands.
package pqmf

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/tphakala/simd/f64"
	"gonum.org/v1/gonum/optimize"

	"github.com/tphakala/go-reverb-emulator/internal/filter"
)

// DefaultAttenuation is the prototype stopband attenuation in dB.
const DefaultAttenuation = 100.0

const (
	// Penalty returned for cutoffs the search must not accept.
	invalidCutoffLoss = 1e10

	// The cutoff is searched as a multiple of 1/bands rad/sample within
	// these bounds. The upper bound keeps the prototype many times longer
	// than 2·bands taps.
	minCutoffScale = 0.5
	maxCutoffScale = math.Pi

	// A prototype must span at least this many alias lags of 2·bands taps.
	minAliasLags = 2

	maxCutoffEvaluations = 400
	cutoffTolerance      = 1e-12
	cutoffStallLimit     = 40
)

var (
	// ErrInvalidBands indicates a band count that is not a positive power of two.
	ErrInvalidBands = errors.New("band count must be a positive power of two")

	// ErrShape indicates band data that does not match the bank.
	ErrShape = errors.New("band shape mismatch")

	// ErrDegeneratePrototype indicates a prototype too short to cancel
	// aliasing between adjacent bands.
	ErrDegeneratePrototype = errors.New("degenerate prototype filter")
)

// Bank is a designed filter bank. It is immutable and safe for concurrent use.
type Bank struct {
	bands     int
	half      int // taps / 2; the filters are centred on this tap
	prototype filter.Prototype
	analysis  [][]float64

	// phases[k][φ] holds taps φ, φ+M, φ+2M, ... of filter k, reversed, so
	// synthesis is a dot product against consecutive band samples.
	phases   [][][]float64
	maxPhase int
}

// New designs a bank of bands sub-bands with the given prototype stopband
// attenuation. One band is the identity transform.
func New(bands int, attenuation float64) (*Bank, error) {
	if bands < 1 || bits.OnesCount(uint(bands)) != 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBands, bands)
	}
	if bands == 1 {
		return &Bank{bands: 1}, nil
	}

	proto, err := DesignPrototype(bands, attenuation)
	if err != nil {
		return nil, err
	}

	b := &Bank{
		bands:     bands,
		half:      len(proto.Taps) / 2,
		prototype: proto,
		analysis:  Modulate(proto.Taps, bands),
	}
	b.buildPhases()
	return b, nil
}

// DesignPrototype optimises the cutoff of the Kaiser prototype for a bank of
// the given size, starting from 1/bands rad/sample. The search is confined
// to [minCutoffScale, maxCutoffScale]/bands.
func DesignPrototype(bands int, attenuation float64) (filter.Prototype, error) {
	m := float64(bands)
	loss := func(scale float64) float64 {
		if scale < minCutoffScale || scale > maxCutoffScale {
			return invalidCutoffLoss
		}
		return PrototypeLoss(scale/m, attenuation, bands)
	}
	problem := optimize.Problem{
		Func: func(x []float64) float64 { return loss(x[0]) },
	}
	settings := &optimize.Settings{
		FuncEvaluations: maxCutoffEvaluations,
		Converger:       &optimize.FunctionConverge{Absolute: cutoffTolerance, Iterations: cutoffStallLimit},
	}

	scale := 1.0
	initialLoss := loss(scale)
	result, err := optimize.Minimize(problem, []float64{scale}, settings, &optimize.NelderMead{})
	switch {
	case result != nil && !math.IsNaN(result.F) && result.F <= initialLoss:
		// Hitting an evaluation limit still leaves the best point found.
		scale = result.X[0]
	case result == nil && err != nil:
		return filter.Prototype{}, fmt.Errorf("optimise prototype cutoff: %w", err)
	}

	proto, err := filter.DesignPrototype(scale/m, attenuation)
	if err != nil {
		return filter.Prototype{}, err
	}
	if err := checkPrototype(proto, attenuation, bands); err != nil {
		return filter.Prototype{}, err
	}
	return proto, nil
}

// checkPrototype rejects prototypes that cannot cancel aliasing for a bank
// of the given size.
func checkPrototype(proto filter.Prototype, attenuation float64, bands int) error {
	if minTaps := minAliasLags*2*bands + 1; len(proto.Taps) < minTaps {
		return fmt.Errorf("%w: %d taps for %d bands, need at least %d",
			ErrDegeneratePrototype, len(proto.Taps), bands, minTaps)
	}
	if l := PrototypeLoss(proto.Cutoff, attenuation, bands); l >= invalidCutoffLoss || math.IsNaN(l) {
		return fmt.Errorf("%w: cutoff %g rad/sample", ErrDegeneratePrototype, proto.Cutoff)
	}
	return nil
}

// PrototypeLoss is the largest magnitude of the prototype autocorrelation at
// non-zero lags that are multiples of 2·bands. Prototypes spanning fewer
// than minAliasLags such lags get the invalid-cutoff penalty.
func PrototypeLoss(wc, attenuation float64, bands int) float64 {
	proto, err := filter.DesignPrototype(wc, attenuation)
	if err != nil {
		return invalidCutoffLoss
	}

	h := proto.Taps
	step := 2 * bands
	if len(h) <= minAliasLags*step {
		return invalidCutoffLoss
	}
	var worst float64
	for lag := step; lag < len(h); lag += step {
		g := f64.DotProductUnsafe(h[:len(h)-lag], h[lag:])
		worst = max(worst, math.Abs(g))
	}
	return worst
}

// Modulate builds the analysis filters
//
//	h_k[t] = 2·h[t]·cos((2k+1)·π/(2M)·t + (-1)^k·π/4), t = -N/2 .. N/2
func Modulate(h []float64, bands int) [][]float64 {
	n := len(h)
	half := n / 2
	out := make([][]float64, bands)
	for k := range bands {
		phase := math.Pi / 4
		if k%2 == 1 {
			phase = -phase
		}
		freq := float64(2*k+1) * math.Pi / float64(2*bands)
		hk := make([]float64, n)
		for i := range n {
			t := float64(i - half)
			hk[i] = 2 * h[i] * math.Cos(freq*t+phase)
		}
		out[k] = hk
	}
	return out
}

func (b *Bank) buildPhases() {
	m := b.bands
	n := len(b.prototype.Taps)
	b.maxPhase = (n + m - 1) / m
	b.phases = make([][][]float64, m)
	for k, hk := range b.analysis {
		b.phases[k] = make([][]float64, m)
		for phi := range m {
			length := (n - phi + m - 1) / m
			rev := make([]float64, length)
			for i := range length {
				rev[length-1-i] = hk[phi+i*m]
			}
			b.phases[k][phi] = rev
		}
	}
}

// Bands returns the number of sub-bands.
func (b *Bank) Bands() int {
	return b.bands
}

// Prototype returns the designed lowpass prototype. It is empty for a
// single-band bank.
func (b *Bank) Prototype() filter.Prototype {
	return b.prototype
}

// Filters returns the analysis filters.
func (b *Bank) Filters() [][]float64 {
	return b.analysis
}

// Frames returns the band length for a signal of n samples.
func (b *Bank) Frames(n int) int {
	return (n + b.bands - 1) / b.bands
}

// Forward decomposes x into Bands() rows of Frames(len(x)) samples.
// Band k at frame j is the correlation of x with filter k centred on sample
// j·M; odd bands have every other frame negated so their spectra read the
// same way up as even bands.
func (b *Bank) Forward(x []float64) [][]float64 {
	if b.bands == 1 {
		return [][]float64{append([]float64(nil), x...)}
	}

	m := b.bands
	frames := b.Frames(len(x))
	taps := len(b.prototype.Taps)

	padded := make([]float64, max((frames-1)*m+taps, b.half+len(x)))
	copy(padded[b.half:], x)

	out := make([][]float64, m)
	for k, hk := range b.analysis {
		row := make([]float64, frames)
		for j := range frames {
			row[j] = f64.DotProductUnsafe(hk, padded[j*m:j*m+taps])
		}
		out[k] = row
	}
	reverseHalf(out)
	return out
}

// Inverse reconstructs M·frames samples from band data produced by Forward.
func (b *Bank) Inverse(bands [][]float64) ([]float64, error) {
	frames, err := b.checkShape(bands)
	if err != nil {
		return nil, err
	}
	if b.bands == 1 {
		return append([]float64(nil), bands[0]...), nil
	}

	m := b.bands
	lead := b.maxPhase - 1

	// Upsampling by M with gain M, then synthesis with filter k: only every
	// M-th input is non-zero, so each output sample needs one polyphase
	// component per band.
	scaled := make([][]float64, m)
	for k, row := range bands {
		v := make([]float64, lead+frames+b.maxPhase+1)
		for j, s := range row {
			v[lead+j] = s * float64(m)
		}
		scaled[k] = v
	}
	reverseHalfOffset(scaled, lead, frames)

	out := make([]float64, m*frames)
	for i := range out {
		s := i + b.half
		phi, q := s%m, s/m
		var acc float64
		for k := range m {
			comp := b.phases[k][phi]
			start := lead + q - len(comp) + 1
			acc += f64.DotProductUnsafe(comp, scaled[k][start:start+len(comp)])
		}
		out[i] = acc
	}
	return out, nil
}

// InverseAdjoint maps a gradient with respect to the output of Inverse back
// to a gradient with respect to its band input. len(g) must be a multiple
// of Bands().
func (b *Bank) InverseAdjoint(g []float64) ([][]float64, error) {
	if len(g)%b.bands != 0 {
		return nil, fmt.Errorf("%w: %d samples for %d bands", ErrShape, len(g), b.bands)
	}
	out := b.Forward(g)
	if b.bands == 1 {
		return out, nil
	}
	gain := float64(b.bands)
	for _, row := range out {
		f64.Scale(row, row, gain)
	}
	return out, nil
}

func (b *Bank) checkShape(bands [][]float64) (int, error) {
	if len(bands) != b.bands {
		return 0, fmt.Errorf("%w: %d rows for %d bands", ErrShape, len(bands), b.bands)
	}
	frames := len(bands[0])
	for k, row := range bands {
		if len(row) != frames {
			return 0, fmt.Errorf("%w: band %d has %d frames, band 0 has %d", ErrShape, k, len(row), frames)
		}
	}
	return frames, nil
}

// reverseHalf negates even frames of odd bands.
func reverseHalf(rows [][]float64) {
	reverseHalfOffset(rows, 0, -1)
}

func reverseHalfOffset(rows [][]float64, offset, frames int) {
	for k := 1; k < len(rows); k += 2 {
		row := rows[k]
		end := len(row)
		if frames >= 0 {
			end = offset + frames
		}
		for j := offset; j < end; j += 2 {
			row[j] = -row[j]
		}
	}
}
