package effect

import (
	"github.com/tphakala/simd/c128"
	"github.com/tphakala/simd/f64"
	"gonum.org/v1/gonum/dsp/fourier"
)

// convolver filters a stream with an impulse response using the
// overlap-save method. The last len(response)-1 input samples are carried
// between calls so consecutive blocks produce the same output as one call
// over their concatenation.
//
// Overlap-save:
//  1. Input is processed in blocks of fftSize samples overlapping by kernelLen-1
//  2. Each block yields blockSize = fftSize - kernelLen + 1 valid samples
//  3. The first kernelLen-1 results of each block are circular wrap and dropped
type convolver struct {
	kernel    []float64 // time-reversed response
	kernelLen int
	history   []float64
	scratch   []float64

	useFFT    bool
	fft       *fourier.FFT
	fftSize   int
	blockSize int
	kernelFFT []complex128
	scale     float64 // gonum does not normalise the inverse transform

	signalBlock []float64
	signalFFT   []complex128
	productFFT  []complex128
	ifftResult  []float64
}

// newConvolver prepares a streaming filter for response. It returns nil for
// an empty response.
func newConvolver(response []float64) *convolver {
	kernelLen := len(response)
	if kernelLen == 0 {
		return nil
	}

	// Correlating with the reversed response gives y[n] = sum h[k]*x[n-k].
	kernel := make([]float64, kernelLen)
	for i := range kernelLen {
		kernel[i] = response[kernelLen-1-i]
	}

	c := &convolver{
		kernel:    kernel,
		kernelLen: kernelLen,
		history:   make([]float64, kernelLen-1),
	}
	if kernelLen < minKernelForFFT {
		return c
	}

	fftSize := defaultFFTBlockSize
	for fftSize < 2*kernelLen {
		fftSize *= 2
	}
	c.useFFT = true
	c.fftSize = fftSize
	c.blockSize = fftSize - kernelLen + 1
	c.fft = fourier.NewFFT(fftSize)
	c.scale = 1.0 / float64(fftSize)

	// The FFT product computes a circular convolution, so the correlation
	// kernel is reversed once more: that is the original response.
	padded := make([]float64, fftSize)
	copy(padded, response)
	c.kernelFFT = c.fft.Coefficients(nil, padded)

	fftLen := fftSize/fftHermitianDivisor + 1
	c.signalBlock = make([]float64, fftSize)
	c.signalFFT = make([]complex128, fftLen)
	c.productFFT = make([]complex128, fftLen)
	c.ifftResult = make([]float64, fftSize)
	return c
}

// reset forgets the carried input.
func (c *convolver) reset() {
	clear(c.history)
}

// process filters src into dst, which must be at least len(src) long.
func (c *convolver) process(dst, src []float64) {
	if len(src) == 0 {
		return
	}
	c.scratch = append(c.scratch[:0], c.history...)
	c.scratch = append(c.scratch, src...)

	if c.useFFT {
		c.correlateFFT(dst[:len(src)], c.scratch)
	} else {
		for i := range src {
			dst[i] = f64.DotProductUnsafe(c.scratch[i:i+c.kernelLen], c.kernel)
		}
	}

	if overlap := c.kernelLen - 1; overlap > 0 {
		copy(c.history, c.scratch[len(c.scratch)-overlap:])
	}
}

// correlateFFT computes dst[n] = sum signal[n+k]*kernel[k] for every valid n.
func (c *convolver) correlateFFT(dst, signal []float64) {
	outputLen := len(signal) - c.kernelLen + 1
	overlap := c.kernelLen - 1

	for outIdx := 0; outIdx < outputLen; {
		clear(c.signalBlock)
		copyLen := min(c.fftSize, len(signal)-outIdx)
		copy(c.signalBlock, signal[outIdx:outIdx+copyLen])

		c.signalFFT = c.fft.Coefficients(c.signalFFT, c.signalBlock)
		c128.Mul(c.productFFT, c.signalFFT, c.kernelFFT)
		c.ifftResult = c.fft.Sequence(c.ifftResult, c.productFFT)
		f64.Scale(c.ifftResult, c.ifftResult, c.scale)

		valid := min(c.blockSize, outputLen-outIdx)
		copy(dst[outIdx:outIdx+valid], c.ifftResult[overlap:overlap+valid])
		outIdx += valid
	}
}
