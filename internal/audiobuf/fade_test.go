package audiobuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/go-reverb-emulator/internal/testutil"
)

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func TestApplyFade_ZeroLength(t *testing.T) {
	b := FromMono(testutil.Ramp(10, 1), testRate)

	for _, dir := range []FadeDirection{FadeIn, FadeOut} {
		got, err := ApplyFade(b, 0, dir)
		require.NoError(t, err)
		assert.Equal(t, b.Channels, got.Channels, "direction %s", dir)
	}
}

func TestApplyFade_In(t *testing.T) {
	b := FromMono(ones(10), testRate)

	got, err := ApplyFade(b, 5, FadeIn)
	require.NoError(t, err)

	testutil.AssertSlicesInDelta(t,
		[]float64{0, 0.25, 0.5, 0.75, 1, 1, 1, 1, 1, 1},
		got.Channels[0], 1e-12)

	// Input is untouched.
	assert.Equal(t, ones(10), b.Channels[0])
}

func TestApplyFade_Out(t *testing.T) {
	b := stereo(ones(6), ones(6))

	got, err := ApplyFade(b, 3, FadeOut)
	require.NoError(t, err)

	want := []float64{1, 1, 1, 1, 0.5, 0}
	for c := range got.Channels {
		testutil.AssertSlicesInDelta(t, want, got.Channels[c], 1e-12)
	}
}

func TestApplyFade_InClampsToLength(t *testing.T) {
	b := FromMono(ones(3), testRate)

	got, err := ApplyFade(b, 100, FadeIn)
	require.NoError(t, err)
	testutil.AssertSlicesInDelta(t, []float64{0, 0.5, 1}, got.Channels[0], 1e-12)
}

func TestApplyFade_OutTooLong(t *testing.T) {
	b := FromMono(ones(3), testRate)

	_, err := ApplyFade(b, 4, FadeOut)
	assert.ErrorIs(t, err, ErrInvalidFadeLength)
}

func TestApplyFade_EmptyBufferFadeIn(t *testing.T) {
	b := FromMono([]float64{}, testRate)

	got, err := ApplyFade(b, 2205, FadeIn)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
}
