package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-reverb-emulator/internal/audiobuf"
	"github.com/tphakala/go-reverb-emulator/internal/audioio"
	"github.com/tphakala/go-reverb-emulator/internal/config"
	"github.com/tphakala/go-reverb-emulator/internal/dataset"
	"github.com/tphakala/go-reverb-emulator/internal/effect"
	"github.com/tphakala/go-reverb-emulator/internal/tail"
	"github.com/tphakala/go-reverb-emulator/internal/testutil"
)

const testRate = 8000

// testConfig lays out a run under root with 4000-sample chunks.
func testConfig(root string) config.Config {
	cfg := config.Default()
	cfg.General.SampleRate = testRate
	cfg.General.DatasetPath = filepath.Join(root, "processed", "data.rvds")
	cfg.Preprocess.ModelChunkSize = 4000
	cfg.Preprocess.FixedTail = 400
	cfg.Preprocess.BoardChunkSize = 512
	cfg.Preprocess.SlidingMeanLength = 64
	cfg.Preprocess.NoiseDuration = 0.05
	cfg.Preprocess.NumNoises = 2
	cfg.Preprocess.InputDir = filepath.Join(root, "raw")
	cfg.Preprocess.DryOutputDir = filepath.Join(root, "dry")
	cfg.Preprocess.ShortOutputDir = filepath.Join(root, "short")
	cfg.Preprocess.WetOutputDir = filepath.Join(root, "wet")
	return cfg
}

func writeSources(t *testing.T, dir string, lengths map[string]int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, n := range lengths {
		buf := audiobuf.FromMono(testutil.Sine(n, 220, testRate, 0.5), testRate)
		require.NoError(t, audioio.Write(filepath.Join(dir, name), buf, audioio.BitDepth16))
	}
}

func TestPipeline_Stages(t *testing.T) {
	p, err := New(Options{Config: testConfig(t.TempDir()), Processor: effect.Bypass{}})
	require.NoError(t, err)
	assert.Equal(t, []string{"tail", "segment", "agglomerate", "render", "dataset", "cleanup"}, p.Stages())
}

func TestPipeline_Run(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(root)
	// Segment length 3600: a gives 2 full segments and 2800 left, b gives 1
	// and 1400, c is a short segment only. Padded shorts a and b fill one
	// agglomerated chunk; c is dropped.
	writeSources(t, cfg.Preprocess.InputDir, map[string]int{"a.wav": 10000, "b.wav": 5000, "c.wav": 2000})

	p, err := New(Options{Config: cfg, Rand: testutil.NewRand(7)})
	require.NoError(t, err)

	rep, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 400, rep.Tail)
	assert.Equal(t, 3600, rep.SegmentLength)
	assert.Equal(t, 3, rep.Sources)
	assert.Equal(t, 3, rep.FullSegments)
	assert.Equal(t, 3, rep.ShortSegments)
	assert.Equal(t, 1, rep.Agglomerated)
	assert.Equal(t, 4, rep.WetFiles)
	assert.Equal(t, cfg.General.DatasetPath, rep.DatasetPath)

	_, err = os.Stat(cfg.Preprocess.ShortOutputDir)
	assert.True(t, os.IsNotExist(err), "short directory must be removed")

	ds, err := dataset.Load(rep.DatasetPath)
	require.NoError(t, err)
	require.Equal(t, 4, ds.Len())
	names := make([]string, ds.Len())
	for i, pair := range ds.Pairs {
		names[i] = pair.Name
		assert.Equal(t, 4000, pair.Dry.Len(), pair.Name)
		assert.Equal(t, pair.Dry.Len(), pair.Wet.Len(), pair.Name)
		assert.Equal(t, testRate, pair.Dry.SampleRate)
	}
	assert.Equal(t, []string{"agglomerated_0", "asegment_0", "asegment_1", "bsegment_0"}, names)

	_, err = dataset.ReadManifest(rep.DatasetPath + dataset.ManifestSuffix)
	require.NoError(t, err)
}

func TestPipeline_KeepShort(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(root)
	cfg.Preprocess.KeepShort = true
	writeSources(t, cfg.Preprocess.InputDir, map[string]int{"a.wav": 5000})

	p, err := New(Options{Config: cfg, Processor: effect.Bypass{}, Rand: testutil.NewRand(1)})
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	require.NoError(t, err)

	shorts, err := audioio.List(cfg.Preprocess.ShortOutputDir, audioio.ExtWAV)
	require.NoError(t, err)
	assert.Len(t, shorts, 1)
}

func TestPipeline_EstimatedTail(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(root)
	cfg.Preprocess.FixedTail = 0
	writeSources(t, cfg.Preprocess.InputDir, map[string]int{"a.wav": 9000})

	p, err := New(Options{Config: cfg, Processor: effect.Bypass{}, Rand: testutil.NewRand(3)})
	require.NoError(t, err)
	rep, err := p.Run(context.Background())
	require.NoError(t, err)

	// A dry-only processor has no tail to speak of.
	assert.LessOrEqual(t, rep.Tail, 1)
	assert.Equal(t, 2, rep.FullSegments)
}

func TestPipeline_TailLongerThanModelInput(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(root)
	cfg.Preprocess.FixedTail = 5000
	writeSources(t, cfg.Preprocess.InputDir, map[string]int{"a.wav": 9000})

	p, err := New(Options{Config: cfg, Processor: effect.Bypass{}})
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	require.ErrorIs(t, err, tail.ErrConfiguration)

	// Nothing was written.
	_, statErr := os.Stat(cfg.Preprocess.DryOutputDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPipeline_Errors(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.General.SampleRate = 0
	_, err := New(Options{Config: cfg})
	require.ErrorIs(t, err, config.ErrInvalidConfig)

	cfg = testConfig(t.TempDir())
	cfg.Preprocess.PluginPath = filepath.Join(t.TempDir(), "missing.wav")
	_, err = New(Options{Config: cfg})
	require.Error(t, err)

	p, err := New(Options{Config: testConfig(t.TempDir()), Processor: effect.Bypass{}})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// Missing input directory fails in the segment stage.
	p, err = New(Options{Config: testConfig(t.TempDir()), Processor: effect.Bypass{}})
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "segment stage")
}
