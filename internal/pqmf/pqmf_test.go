package pqmf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-reverb-emulator/internal/filter"
	"github.com/tphakala/go-reverb-emulator/internal/testutil"
)

func newBank(t *testing.T, bands int) *Bank {
	t.Helper()
	b, err := New(bands, DefaultAttenuation)
	require.NoError(t, err)
	return b
}

// snrDB compares the interior of got against want, skipping edge samples
// where the truncated band data cannot cancel.
func snrDB(want, got []float64, edge int) float64 {
	var signal, noise float64
	for i := edge; i < len(want)-edge; i++ {
		d := want[i] - got[i]
		signal += want[i] * want[i]
		noise += d * d
	}
	if noise == 0 {
		return math.Inf(1)
	}
	return 10 * math.Log10(signal/noise)
}

func TestNew_InvalidBands(t *testing.T) {
	for _, bands := range []int{0, -2, 3, 12} {
		_, err := New(bands, DefaultAttenuation)
		require.ErrorIs(t, err, ErrInvalidBands, "bands=%d", bands)
	}
}

func TestPrototype(t *testing.T) {
	for _, bands := range []int{2, 4, 16} {
		b := newBank(t, bands)
		proto := b.Prototype()

		assert.Equal(t, 1, len(proto.Taps)%2, "odd length")
		testutil.AssertSymmetric(t, proto.Taps, 1e-12)

		// The optimised cutoff stays below the centre of band 1.
		assert.Greater(t, proto.Cutoff, 0.0)
		assert.Less(t, proto.Cutoff, math.Pi/float64(bands), "bands=%d", bands)

		// It must be at least as good as the starting point.
		assert.LessOrEqual(t, PrototypeLoss(proto.Cutoff, DefaultAttenuation, bands),
			PrototypeLoss(1/float64(bands), DefaultAttenuation, bands))
	}
}

func TestDesignPrototype_LargeBanks(t *testing.T) {
	for _, bands := range []int{8, 16, 32, 64, 128} {
		proto, err := DesignPrototype(bands, DefaultAttenuation)
		require.NoError(t, err, "bands=%d", bands)

		// Several alias lags must fit inside the prototype.
		assert.Greater(t, len(proto.Taps), 4*2*bands, "bands=%d", bands)

		scale := proto.Cutoff * float64(bands)
		assert.GreaterOrEqual(t, scale, minCutoffScale, "bands=%d", bands)
		assert.LessOrEqual(t, scale, maxCutoffScale, "bands=%d", bands)

		loss := PrototypeLoss(proto.Cutoff, DefaultAttenuation, bands)
		assert.Positive(t, loss, "bands=%d", bands)
		assert.Less(t, loss, invalidCutoffLoss, "bands=%d", bands)
	}
}

func TestPrototypeLoss_ShortPrototype(t *testing.T) {
	// A cutoff this wide yields far fewer than 2·64 taps: no alias lag fits.
	proto, err := filter.DesignPrototype(2.5, DefaultAttenuation)
	require.NoError(t, err)
	require.Less(t, len(proto.Taps), 2*64)

	assert.InDelta(t, invalidCutoffLoss, PrototypeLoss(2.5, DefaultAttenuation, 64), 0)
	require.ErrorIs(t, checkPrototype(proto, DefaultAttenuation, 64), ErrDegeneratePrototype)

	// The same design is long enough for a two-band bank.
	assert.NoError(t, checkPrototype(proto, DefaultAttenuation, 2))
}

func TestModulate(t *testing.T) {
	b := newBank(t, 4)
	filters := b.Filters()
	require.Len(t, filters, 4)

	n := len(b.Prototype().Taps)
	for k, hk := range filters {
		require.Len(t, hk, n)

		// Filter k passes the centre of its band and rejects DC for k > 0.
		resp := filter.ComputeFrequencyResponse(hk, 512)
		centre := int(float64(2*k+1) / 16 * 2 * 512)
		assert.Greater(t, resp.Magnitude[centre], 0.5, "band %d centre", k)
		if k > 0 {
			assert.Less(t, filter.MagnitudeDB(resp.Magnitude[0]), -60.0, "band %d DC", k)
		}
	}
}

func TestForward_Shape(t *testing.T) {
	b := newBank(t, 8)
	tests := []struct {
		n, frames int
	}{
		{1024, 128},
		{1000, 125},
		{1001, 126},
		{0, 0},
	}
	for _, tt := range tests {
		bands := b.Forward(make([]float64, tt.n))
		require.Len(t, bands, 8)
		for _, row := range bands {
			assert.Len(t, row, tt.frames)
		}
		assert.Equal(t, tt.frames, b.Frames(tt.n))
	}
}

func TestRoundTrip(t *testing.T) {
	rng := testutil.NewRand(11)
	tests := []struct {
		name   string
		bands  int
		n      int
		minSNR float64
	}{
		{"2 bands pow2", 2, 4096, 30},
		{"4 bands pow2", 4, 8192, 30},
		{"16 bands pow2", 16, 16384, 45},
		{"4 bands not pow2", 4, 6000, 30},
		{"16 bands not pow2", 16, 10007, 45},
		{"32 bands pow2", 32, 32768, 45},
		{"64 bands pow2", 64, 65536, 45},
		{"64 bands not pow2", 64, 50001, 45},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBank(t, tt.bands)
			x := testutil.Noise(rng, tt.n, 0.5)

			y, err := b.Inverse(b.Forward(x))
			require.NoError(t, err)
			require.Len(t, y, tt.bands*b.Frames(tt.n))
			testutil.AssertNoNaNOrInf(t, y)

			edge := len(b.Prototype().Taps)
			assert.Greater(t, snrDB(x, y[:tt.n], edge), tt.minSNR)
		})
	}
}

func TestRoundTrip_CenterPadded(t *testing.T) {
	b := newBank(t, 8)
	x := testutil.Sine(3000, 440, 44100, 0.8)

	padded, left := CenterPadNextPow2(x)
	require.Len(t, padded, 4096)

	y, err := b.Inverse(b.Forward(padded))
	require.NoError(t, err)
	require.Len(t, y, 4096)

	cropped := y[left : left+len(x)]
	assert.Greater(t, snrDB(x, cropped, 0), 30.0)
}

func TestSingleBandIsIdentity(t *testing.T) {
	b := newBank(t, 1)
	x := testutil.Ramp(10, 0)

	bands := b.Forward(x)
	require.Len(t, bands, 1)
	assert.Equal(t, x, bands[0])

	y, err := b.Inverse(bands)
	require.NoError(t, err)
	assert.Equal(t, x, y)

	g, err := b.InverseAdjoint(x)
	require.NoError(t, err)
	assert.Equal(t, x, g[0])
}

func TestInverse_ShapeErrors(t *testing.T) {
	b := newBank(t, 4)
	_, err := b.Inverse(make([][]float64, 3))
	require.ErrorIs(t, err, ErrShape)

	ragged := [][]float64{make([]float64, 4), make([]float64, 4), make([]float64, 3), make([]float64, 4)}
	_, err = b.Inverse(ragged)
	require.ErrorIs(t, err, ErrShape)

	_, err = b.InverseAdjoint(make([]float64, 10))
	require.ErrorIs(t, err, ErrShape)
}

// <Inverse(u), g> must equal <u, InverseAdjoint(g)> for any u, g.
func TestInverseAdjoint_DotProductIdentity(t *testing.T) {
	rng := testutil.NewRand(5)
	for _, bands := range []int{2, 8} {
		b := newBank(t, bands)
		frames := 300

		u := make([][]float64, bands)
		for k := range u {
			u[k] = testutil.Noise(rng, frames, 1)
		}
		g := testutil.Noise(rng, bands*frames, 1)

		y, err := b.Inverse(u)
		require.NoError(t, err)
		adj, err := b.InverseAdjoint(g)
		require.NoError(t, err)

		var lhs, rhs float64
		for i := range y {
			lhs += y[i] * g[i]
		}
		for k := range u {
			for j := range u[k] {
				rhs += u[k][j] * adj[k][j]
			}
		}
		testutil.AssertRelativeError(t, lhs, rhs, 1e-9)
	}
}

func TestNextPow2(t *testing.T) {
	tests := []struct{ n, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {4, 4}, {5, 8}, {88200, 131072}, {131072, 131072},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NextPow2(tt.n), "n=%d", tt.n)
	}
}

func TestCenterPadding(t *testing.T) {
	tests := []struct{ n, left, right int }{
		{4, 0, 0},
		{3, 0, 1},
		{5, 1, 2},
		{6, 1, 1},
		{88200, 21436, 21436},
	}
	for _, tt := range tests {
		left, right := CenterPadding(tt.n)
		assert.Equal(t, tt.left, left, "n=%d", tt.n)
		assert.Equal(t, tt.right, right, "n=%d", tt.n)
	}

	padded, left := CenterPadNextPow2([]float64{1, 2, 3, 4, 5})
	assert.Equal(t, 1, left)
	assert.Equal(t, []float64{0, 1, 2, 3, 4, 5, 0, 0}, padded)
}
