// Package tail measures how long a reverb keeps ringing after its input
// stops. The measured maximum bounds the silence every training chunk must
// reserve so the wet signal fits in the model input.
package tail

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/tphakala/go-reverb-emulator/internal/audiobuf"
	"github.com/tphakala/go-reverb-emulator/internal/effect"
	"github.com/tphakala/go-reverb-emulator/internal/logging"
)

// SilenceThreshold is the mean absolute amplitude below which the sliding
// window counts as silent.
const SilenceThreshold = 1e-5

var (
	// ErrConfiguration indicates the model input cannot hold the tail.
	ErrConfiguration = errors.New("model input size must be greater or equal to the max tail length")

	// ErrInvalidParams indicates non-positive estimator parameters.
	ErrInvalidParams = errors.New("invalid tail estimator parameters")
)

// Params controls the estimator.
type Params struct {
	SampleRate    int
	BlockSize     int     // effect processing block size
	WindowLength  int     // sliding mean length in samples
	NoiseDuration float64 // seconds of noise, followed by as much silence
	NumNoises     int     // trials; the maximum is reported
}

// Validate reports the first invalid field.
func (p Params) Validate() error {
	switch {
	case p.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %d", ErrInvalidParams, p.SampleRate)
	case p.BlockSize <= 0:
		return fmt.Errorf("%w: block size %d", ErrInvalidParams, p.BlockSize)
	case p.WindowLength <= 0:
		return fmt.Errorf("%w: window length %d", ErrInvalidParams, p.WindowLength)
	case p.NoiseDuration <= 0:
		return fmt.Errorf("%w: noise duration %g", ErrInvalidParams, p.NoiseDuration)
	case p.NumNoises <= 0:
		return fmt.Errorf("%w: noise count %d", ErrInvalidParams, p.NumNoises)
	}
	return nil
}

// NoiseSamples returns the length of the noise burst (and of the silence).
func (p Params) NoiseSamples() int {
	return int(p.NoiseDuration * float64(p.SampleRate))
}

// Estimator drives an effect with noise bursts.
type Estimator struct {
	params Params
	rng    *rand.Rand
	log    logrus.FieldLogger
}

// NewEstimator validates params. A nil logger discards output.
func NewEstimator(params Params, rng *rand.Rand, log logrus.FieldLogger) (*Estimator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Estimator{params: params, rng: rng, log: logging.OrDiscard(log)}, nil
}

// Estimate returns the largest tail in samples over all trials.
func (e *Estimator) Estimate(p effect.Processor) (int, error) {
	maxTail := 0
	for trial := range e.params.NumNoises {
		tail, err := e.Trial(p)
		if err != nil {
			return 0, fmt.Errorf("trial %d: %w", trial, err)
		}
		e.log.WithFields(logrus.Fields{"trial": trial, "tail": tail}).Debug("tail trial")
		maxTail = max(maxTail, tail)
	}
	e.log.WithField("tail", maxTail).Info("estimated max tail length")
	return maxTail, nil
}

// Trial runs one noise burst followed by silence through p and returns
// its tail length.
func (e *Estimator) Trial(p effect.Processor) (int, error) {
	n := e.params.NoiseSamples()
	noise := distuv.Normal{Mu: 0, Sigma: 1, Src: e.rng}
	signal := make([]float64, 2*n)
	for i := range n {
		signal[i] = noise.Rand()
	}

	wet, err := effect.ProcessInBlocks(p, audiobuf.FromMono(signal, e.params.SampleRate),
		e.params.SampleRate, e.params.BlockSize)
	if err != nil {
		return 0, err
	}
	return Measure(wet.Flatten(), n, e.params.WindowLength), nil
}

// Measure scans rendered with a sliding window of windowLength samples,
// advancing one sample at a time, and stops at the first position past
// noiseSamples whose window mean absolute amplitude is below
// SilenceThreshold. Windows are truncated at the end of the signal. The
// result is that position minus noiseSamples, or len(rendered)-noiseSamples
// when the signal never falls silent.
func Measure(rendered []float64, noiseSamples, windowLength int) int {
	n := len(rendered)
	w := newWindow(windowLength)
	for i := range min(windowLength, n) {
		w.push(rendered[i])
	}

	i := 0
	for ; i < n; i++ {
		if i > noiseSamples && w.mean() < SilenceThreshold {
			break
		}
		w.pop()
		if next := i + windowLength; next < n {
			w.push(rendered[next])
		}
	}
	return i - noiseSamples
}

// CheckModelSize fails with ErrConfiguration when the model input cannot
// hold the tail.
func CheckModelSize(modelChunkSize, maxTail int) error {
	if modelChunkSize < maxTail {
		return fmt.Errorf("%w: model input %d < tail %d", ErrConfiguration, modelChunkSize, maxTail)
	}
	return nil
}
