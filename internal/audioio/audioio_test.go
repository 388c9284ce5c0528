package audioio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/go-reverb-emulator/internal/audiobuf"
	"github.com/tphakala/go-reverb-emulator/internal/testutil"
)

const testRate = 44100

func TestWriteRead_RoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		bitDepth  int
		tolerance float64
	}{
		{"pcm16", BitDepth16, testutil.PCM16Tolerance},
		{"pcm24", BitDepth24, testutil.PCM24Tolerance},
		{"pcm32", BitDepth32, 1e-8},
	}

	left := testutil.Sine(1000, 440, testRate, 0.5)
	right := testutil.Sine(1000, 1000, testRate, 0.25)
	buf := audiobuf.Buffer{Channels: [][]float64{left, right}, SampleRate: testRate}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "roundtrip.wav")
			require.NoError(t, Write(path, buf, tt.bitDepth))

			got, err := Read(path)
			require.NoError(t, err)

			assert.Equal(t, testRate, got.SampleRate)
			require.Equal(t, 2, got.NumChannels())
			testutil.AssertSlicesInDelta(t, left, got.Channels[0], tt.tolerance)
			testutil.AssertSlicesInDelta(t, right, got.Channels[1], tt.tolerance)
		})
	}
}

func TestWrite_Clips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	buf := audiobuf.FromMono([]float64{2, -2, 0.5}, testRate)
	require.NoError(t, Write(path, buf, BitDepth16))

	got, err := Read(path)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, got.Channels[0][0], testutil.PCM16Tolerance)
	assert.InDelta(t, -1.0, got.Channels[0][1], testutil.PCM16Tolerance)
	assert.InDelta(t, 0.5, got.Channels[0][2], testutil.PCM16Tolerance)
}

func TestWriteRead_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.wav")
	buf := audiobuf.New(2, 0, testRate)
	require.NoError(t, Write(path, buf, 0))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
	assert.Equal(t, 2, got.NumChannels())
}

func TestWrite_FailureLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.wav")

	err := Write(path, audiobuf.FromMono([]float64{0.1}, testRate), 12)
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRead_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Read(filepath.Join(dir, "missing.wav"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	mp3 := filepath.Join(dir, "song.mp3")
	require.NoError(t, os.WriteFile(mp3, []byte("ID3"), 0o644))
	_, err = Read(mp3)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	junk := filepath.Join(dir, "junk.wav")
	require.NoError(t, os.WriteFile(junk, []byte("not a riff file at all"), 0o644))
	_, err = Read(junk)
	assert.Error(t, err)
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	for _, name := range []string{
		filepath.Join(dir, "b.wav"),
		filepath.Join(dir, "a.WAV"),
		filepath.Join(dir, "notes.txt"),
		filepath.Join(sub, "c.aif"),
		filepath.Join(dir, "d.wav.partial-123"),
	} {
		require.NoError(t, os.WriteFile(name, nil, 0o644))
	}

	files, err := List(dir, ExtWAV, ExtAIF)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.WAV"),
		filepath.Join(dir, "b.wav"),
		filepath.Join(sub, "c.aif"),
	}, files)

	_, err = List(filepath.Join(dir, "nope"), ExtWAV)
	assert.Error(t, err)
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "take1", BaseName("/data/in/take1.wav"))
	assert.Equal(t, "a.b", BaseName("a.b.aif"))
}
