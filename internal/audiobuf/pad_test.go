package audiobuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/go-reverb-emulator/internal/testutil"
)

func TestZeroPad_NoOp(t *testing.T) {
	b := stereo([]float64{1, 2, 3}, []float64{4, 5, 6})

	for _, pad := range []int{0, -5} {
		got := ZeroPad(b, pad)
		assert.Equal(t, b, got)
	}
}

func TestZeroPad_AppendsZeros(t *testing.T) {
	src := testutil.Ramp(100, 1)
	b := FromMono(src, testRate)

	for _, pad := range []int{1, 7, 256} {
		got := ZeroPad(b, pad)
		require.Equal(t, 100+pad, got.Len())
		assert.Equal(t, src, got.Channels[0][:100], "original samples must stay unshifted")
		testutil.AssertAllZero(t, got.Channels[0][100:])
	}
}

func TestPadAmounts(t *testing.T) {
	rng := testutil.NewRand(1)

	tests := []struct {
		name      string
		strategy  PadStrategy
		safe      bool
		wantStart int
		wantEnd   int
	}{
		{"end", PadEnd, false, 0, 10},
		{"end_safe", PadEnd, true, 0, 10},
		{"beginning", PadBeginning, false, 10, 0},
		{"beginning_safe", PadBeginning, true, 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := PadAmounts(tt.strategy, 10, tt.safe, rng)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}

func TestPadAmounts_Split(t *testing.T) {
	rng := testutil.NewRand(2)

	for range 200 {
		start, end := PadAmounts(PadSplit, 10, false, rng)
		assert.GreaterOrEqual(t, start, 0)
		assert.LessOrEqual(t, start, 10)
		assert.Equal(t, 10, start+end)

		start, end = PadAmounts(PadSplit, 10, true, rng)
		assert.LessOrEqual(t, start, 10)
		assert.Equal(t, 10, end, "safe split always pads the full length at the end")
	}
}

func TestDrawPadStrategy_Weights(t *testing.T) {
	rng := testutil.NewRand(3)
	counts := map[PadStrategy]int{}
	const draws = 20000

	for range draws {
		counts[DrawPadStrategy(rng)]++
	}

	assert.InDelta(t, 0.2, float64(counts[PadEnd])/draws, 0.02)
	assert.InDelta(t, 0.2, float64(counts[PadBeginning])/draws, 0.02)
	assert.InDelta(t, 0.6, float64(counts[PadSplit])/draws, 0.02)
}

func TestZeroPadRandom_PreservesSignal(t *testing.T) {
	rng := testutil.NewRand(4)
	src := testutil.Ramp(50, 1)
	b := FromMono(src, testRate)

	for range 100 {
		got := ZeroPadRandom(b, 20, false, rng)
		require.Equal(t, 70, got.Len())

		// The signal appears contiguously after the leading zeros.
		lead := 0
		for got.Channels[0][lead] == 0 {
			lead++
		}
		assert.Equal(t, src, got.Channels[0][lead:lead+50])
	}
}

func TestZeroPadRandom_Safe(t *testing.T) {
	rng := testutil.NewRand(5)
	b := FromMono(testutil.Ramp(50, 1), testRate)

	for range 100 {
		got := ZeroPadRandom(b, 20, true, rng)
		n := got.Len()
		assert.GreaterOrEqual(t, n, 70)
		testutil.AssertAllZero(t, got.Channels[0][n-20:], "safe padding ends with the full pad length")
	}
}

func TestZeroPadRandom_NoOp(t *testing.T) {
	b := FromMono([]float64{1, 2}, testRate)
	assert.Equal(t, b, ZeroPadRandom(b, 0, true, testutil.NewRand(6)))
}

func TestAgglomerate(t *testing.T) {
	a := FromMono([]float64{1, 2, 3}, testRate)
	b := FromMono([]float64{4, 5}, testRate)

	t.Run("exact", func(t *testing.T) {
		got, err := Agglomerate([]Buffer{a, b}, 5)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2, 3, 4, 5}, got.Channels[0])
	})

	t.Run("truncate", func(t *testing.T) {
		got, err := Agglomerate([]Buffer{a}, 2)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2}, got.Channels[0])
	})

	t.Run("pad", func(t *testing.T) {
		got, err := Agglomerate([]Buffer{a, b}, 8)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2, 3, 4, 5, 0, 0, 0}, got.Channels[0])
	})

	t.Run("channel_mismatch", func(t *testing.T) {
		_, err := Agglomerate([]Buffer{a, stereo([]float64{1}, []float64{1})}, 4)
		assert.ErrorIs(t, err, ErrChannelMismatch)
	})
}
