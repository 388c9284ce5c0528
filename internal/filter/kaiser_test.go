package filter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/go-reverb-emulator/internal/testutil"
)

const (
	windowTolerance = 1e-10

	testWindowLength21 = 21
	testBeta8          = 8.653728
	testAttenuation100 = 100.0
)

// TestKaiserWindow_Symmetry verifies that Kaiser window is symmetric.
func TestKaiserWindow_Symmetry(t *testing.T) {
	tests := []struct {
		name   string
		length int
		beta   float64
	}{
		{"length_11_beta_5", 11, 5.0},
		{"length_21_beta_8", testWindowLength21, testBeta8},
		{"length_51_beta_10", 51, 10.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			window := KaiserWindow(tt.length, tt.beta)

			assert.Len(t, window, tt.length, "window length mismatch")
			testutil.AssertSymmetric(t, window, windowTolerance)
			assert.InDelta(t, 1.0, window[tt.length/2], windowTolerance, "center value should be 1")
		})
	}
}

func TestKaiserWindow_EdgeCases(t *testing.T) {
	assert.Empty(t, KaiserWindow(0, 5))
	assert.Empty(t, KaiserWindow(-1, 5))
	assert.Equal(t, []float64{1}, KaiserWindow(1, 5))
}

func TestDesignPrototype(t *testing.T) {
	wc := math.Pi / 8

	proto, err := DesignPrototype(wc, testAttenuation100)
	require.NoError(t, err)

	assert.Equal(t, 1, len(proto.Taps)%2, "prototype must have odd length")
	testutil.AssertSymmetric(t, proto.Taps, windowTolerance)
	testutil.AssertNoNaNOrInf(t, proto.Taps)
	assert.InDelta(t, wc/math.Pi, proto.Taps[len(proto.Taps)/2], windowTolerance)

	response := ComputeFrequencyResponse(proto.Taps, 1024)

	// DC gain of an unscaled windowed sinc is close to one.
	assert.InDelta(t, 1.0, response.Magnitude[0], 1e-3)

	// Well past the transition band the response is deep in the stopband.
	for k, f := range response.Frequencies {
		if 2*math.Pi*f > 2.5*wc {
			assert.Less(t, MagnitudeDB(response.Magnitude[k]), -80.0,
				"stopband leak at f=%.4f", f)
		}
	}
}

func TestDesignPrototype_InvalidCutoff(t *testing.T) {
	for _, wc := range []float64{0, -1, math.Pi, 4} {
		_, err := DesignPrototype(wc, testAttenuation100)
		assert.ErrorIs(t, err, ErrInvalidCutoff)
	}
}

func TestMagnitudeDB(t *testing.T) {
	assert.InDelta(t, 0.0, MagnitudeDB(1), 1e-12)
	assert.InDelta(t, -20.0, MagnitudeDB(0.1), 1e-12)
	assert.InDelta(t, -200.0, MagnitudeDB(0), 1e-12)
}
