// Command pqmf-analyze designs a PQMF bank and prints its prototype, the
// per-band frequency response and the reconstruction error on noise.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/tphakala/go-reverb-emulator/internal/filter"
	"github.com/tphakala/go-reverb-emulator/internal/pqmf"
)

const (
	defaultBands        = 16
	defaultPoints       = 4096
	defaultSignalLength = 1 << 15
	noiseAmplitude      = 0.5
	noiseSeed           = 1

	// Regions farther than this many band widths from a filter's centre
	// count as its stopband.
	stopbandDistance = 1.5
)

func main() {
	var (
		bands       = flag.Int("bands", defaultBands, "Number of sub-bands (power of two)")
		attenuation = flag.Float64("attenuation", pqmf.DefaultAttenuation, "Prototype stopband attenuation in dB")
		points      = flag.Int("points", defaultPoints, "Frequency response points from DC to Nyquist")
		length      = flag.Int("length", defaultSignalLength, "Noise length for the reconstruction test")
	)
	flag.Parse()

	if err := run(*bands, *attenuation, *points, *length); err != nil {
		log.Fatal(err)
	}
}

func run(bands int, attenuation float64, points, length int) error {
	bank, err := pqmf.New(bands, attenuation)
	if err != nil {
		return err
	}

	fmt.Println("=== PQMF Bank ===")
	fmt.Printf("  Bands: %d\n", bank.Bands())
	if bands == 1 {
		fmt.Println("  Single band: identity transform")
		return nil
	}

	proto := bank.Prototype()
	fmt.Printf("  Prototype taps: %d\n", len(proto.Taps))
	fmt.Printf("  Kaiser beta: %.4f\n", proto.Beta)
	fmt.Printf("  Cutoff: %.6f rad/sample (%.4f × π/M)\n", proto.Cutoff, proto.Cutoff/(math.Pi/float64(bands)))
	fmt.Printf("  Cutoff loss: %.3e\n", pqmf.PrototypeLoss(proto.Cutoff, attenuation, bands))

	var dc float64
	for _, h := range proto.Taps {
		dc += h
	}
	fmt.Printf("  Prototype DC gain: %.10f\n", dc)

	fmt.Println("\nPer-band response:")
	fmt.Println("  band   centre   peak dB   stopband dB")
	width := 0.5 / float64(bands) // normalised, Nyquist = 0.5
	for k, hk := range bank.Filters() {
		resp := filter.ComputeFrequencyResponse(hk, points)
		centre := (float64(k) + 0.5) * width
		peak, stop := 0.0, 0.0
		for i, f := range resp.Frequencies {
			m := resp.Magnitude[i]
			peak = max(peak, m)
			if math.Abs(f-centre) > stopbandDistance*width {
				stop = max(stop, m)
			}
		}
		fmt.Printf("  %4d   %.4f   %7.2f   %11.2f\n", k, centre, filter.MagnitudeDB(peak), filter.MagnitudeDB(stop))
	}

	noise := distuv.Uniform{Min: -noiseAmplitude, Max: noiseAmplitude, Src: rand.New(rand.NewPCG(noiseSeed, noiseSeed))}
	src := make([]float64, length)
	for i := range src {
		src[i] = noise.Rand()
	}
	x, _ := pqmf.CenterPadNextPow2(src)
	y, err := bank.Inverse(bank.Forward(x))
	if err != nil {
		return err
	}

	// Edges lose a filter length of context.
	edge := len(proto.Taps)
	var sig, errPow float64
	for i := edge; i < len(x)-edge; i++ {
		sig += x[i] * x[i]
		d := y[i] - x[i]
		errPow += d * d
	}
	fmt.Println("\nReconstruction:")
	fmt.Printf("  Samples: %d (padded from %d)\n", len(x), length)
	if errPow == 0 {
		fmt.Println("  SNR: exact")
		return nil
	}
	fmt.Printf("  SNR: %.2f dB\n", 10*math.Log10(sig/errPow))
	return nil
}
