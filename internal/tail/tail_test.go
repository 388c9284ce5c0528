package tail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-reverb-emulator/internal/audiobuf"
	"github.com/tphakala/go-reverb-emulator/internal/effect"
	"github.com/tphakala/go-reverb-emulator/internal/testutil"
)

func testParams() Params {
	return Params{
		SampleRate:    8000,
		BlockSize:     512,
		WindowLength:  64,
		NoiseDuration: 0.5,
		NumNoises:     2,
	}
}

// slowMeasure is the direct definition: a fresh mean for every position.
func slowMeasure(rendered []float64, noiseSamples, windowLength int) int {
	i := 0
	for ; i < len(rendered); i++ {
		end := min(i+windowLength, len(rendered))
		var sum float64
		for _, v := range rendered[i:end] {
			if v < 0 {
				v = -v
			}
			sum += v
		}
		if i > noiseSamples && sum/float64(end-i) < SilenceThreshold {
			break
		}
	}
	return i - noiseSamples
}

func TestMeasure(t *testing.T) {
	decay := make([]float64, 3000)
	for i := range 1000 {
		decay[i] = 1
	}
	for i := 1000; i < 1500; i++ {
		decay[i] = 0.5
	}

	tests := []struct {
		name         string
		rendered     []float64
		noiseSamples int
		window       int
		want         int
	}{
		{"silence right after noise", decay[:2000], 1500, 10, 1},
		{"tail of ringing", decay, 1000, 10, 500},
		{"window longer than tail", decay, 1000, 100, 500},
		{"never silent", decay[:1200], 1000, 10, 200},
		{"empty", nil, 0, 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Measure(tt.rendered, tt.noiseSamples, tt.window)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, slowMeasure(tt.rendered, tt.noiseSamples, tt.window), got)
		})
	}
}

func TestMeasure_MatchesDirectScanOnDecayingNoise(t *testing.T) {
	rng := testutil.NewRand(7)
	rendered := testutil.Noise(rng, 20000, 1)
	gain := 1.0
	for i := 5000; i < len(rendered); i++ {
		gain *= 0.999
		rendered[i] *= gain
	}
	for _, window := range []int{1, 17, 256, 4096} {
		assert.Equal(t, slowMeasure(rendered, 5000, window), Measure(rendered, 5000, window), "window %d", window)
	}
}

func TestWindow(t *testing.T) {
	w := newWindow(3)
	assert.InDelta(t, 0.0, w.mean(), 0)

	w.push(-3)
	w.push(3)
	w.push(6)
	assert.InDelta(t, 4.0, w.mean(), 1e-12)

	w.pop()
	assert.InDelta(t, 4.5, w.mean(), 1e-12)
	w.push(0)
	assert.InDelta(t, 3.0, w.mean(), 1e-12)

	w.pop()
	w.pop()
	w.pop()
	w.pop()
	assert.Equal(t, 0, w.size)
}

func TestEstimator_BypassHasNoTail(t *testing.T) {
	e, err := NewEstimator(testParams(), testutil.NewRand(1), nil)
	require.NoError(t, err)

	got, err := e.Estimate(effect.Bypass{})
	require.NoError(t, err)
	assert.LessOrEqual(t, got, 1)
}

func TestEstimator_DelayedEchoTail(t *testing.T) {
	params := testParams()
	response := make([]float64, 200)
	response[0] = 1
	response[199] = 0.5
	r, err := effect.NewConvolutionReverb(audiobuf.FromMono(response, params.SampleRate))
	require.NoError(t, err)

	e, err := NewEstimator(params, testutil.NewRand(2), nil)
	require.NoError(t, err)
	got, err := e.Estimate(effect.NewBoard(r))
	require.NoError(t, err)

	// The echo keeps ringing for 199 samples after the burst ends.
	assert.InDelta(t, 199, got, 2)
}

func TestEstimator_PlateTailWithinSilence(t *testing.T) {
	params := testParams()
	params.NoiseDuration = 2
	params.NumNoises = 1
	board := effect.NewBoard(effect.NewPlateReverb(effect.PlateParams{RoomSize: 0.1, Damping: 0.5, Gain: effect.DefaultPlateGain}))

	e, err := NewEstimator(params, testutil.NewRand(3), nil)
	require.NoError(t, err)
	got, err := e.Estimate(board)
	require.NoError(t, err)
	assert.Greater(t, got, 1)
	assert.Less(t, got, params.NoiseSamples())
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"sample rate", func(p *Params) { p.SampleRate = 0 }},
		{"block size", func(p *Params) { p.BlockSize = -1 }},
		{"window", func(p *Params) { p.WindowLength = 0 }},
		{"duration", func(p *Params) { p.NoiseDuration = 0 }},
		{"count", func(p *Params) { p.NumNoises = 0 }},
	}
	require.NoError(t, testParams().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams()
			tt.mutate(&p)
			_, err := NewEstimator(p, testutil.NewRand(1), nil)
			require.ErrorIs(t, err, ErrInvalidParams)
		})
	}
}

func TestCheckModelSize(t *testing.T) {
	require.NoError(t, CheckModelSize(88200, 4410))
	require.NoError(t, CheckModelSize(4410, 4410))
	require.ErrorIs(t, CheckModelSize(4409, 4410), ErrConfiguration)
}
