package reverb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-reverb-emulator/internal/audiobuf"
	"github.com/tphakala/go-reverb-emulator/internal/audioio"
	"github.com/tphakala/go-reverb-emulator/internal/dataset"
	"github.com/tphakala/go-reverb-emulator/internal/testutil"
	"github.com/tphakala/go-reverb-emulator/internal/train"
)

const testRate = 8000

// smallConfig trains a tiny model for two epochs under root.
func smallConfig(root string) Config {
	cfg := DefaultConfig()
	cfg.General.SampleRate = testRate
	cfg.General.DatasetPath = filepath.Join(root, "data.rvds")
	cfg.Train.Epochs = 2
	cfg.Train.BatchSize = 2
	cfg.Train.Bands = 4
	cfg.Train.Hidden = []int{8, 4}
	cfg.Train.LatentSize = 3
	cfg.Train.LearningRate = 1e-3
	cfg.Train.ValidationSplit = 0.34
	cfg.Train.LogDir = filepath.Join(root, "runs")
	return cfg
}

// writeEchoDataset stores n pairs whose wet half is an attenuated echo.
func writeEchoDataset(t *testing.T, path string, n, frames int) {
	t.Helper()
	ds := &dataset.Dataset{}
	for i := range n {
		dry := testutil.Sine(frames, 200+50*float64(i), testRate, 0.5)
		wet := make([]float64, frames)
		for j := range wet {
			wet[j] = 0.5 * dry[j]
			if j >= 40 {
				wet[j] += 0.25 * dry[j-40]
			}
		}
		ds.Pairs = append(ds.Pairs, dataset.Pair{
			Name: fmt.Sprintf("pair_%d", i),
			Dry:  audiobuf.FromMono(dry, testRate),
			Wet:  audiobuf.FromMono(wet, testRate),
		})
	}
	require.NoError(t, dataset.Write(path, ds))
}

func TestTrain_Deterministic(t *testing.T) {
	root := t.TempDir()
	cfg := smallConfig(root)
	writeEchoDataset(t, cfg.General.DatasetPath, 6, 1024)

	res, err := Train(context.Background(), cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, train.Deterministic, res.Mode)
	assert.Equal(t, 4, res.Train)
	assert.Equal(t, 2, res.Val)
	require.Len(t, res.Epochs, 4, "train and validation stats per epoch")
	assert.Equal(t, train.Training, res.Epochs[0].Phase)
	assert.Equal(t, train.Validation, res.Epochs[1].Phase)
	for _, s := range res.Epochs {
		assert.Zero(t, s.KL)
		assert.Positive(t, s.Loss)
	}

	assert.Equal(t, filepath.Join(cfg.Train.LogDir, res.RunID), res.RunDir)
	for _, name := range []string{"train.yaml", "val.yaml", "input.wav", "target.wav", "output.wav"} {
		assert.FileExists(t, filepath.Join(res.RunDir, "epoch_1", name))
	}

	out, err := audioio.Read(filepath.Join(res.RunDir, "epoch_1", "output.wav"))
	require.NoError(t, err)
	assert.Equal(t, 1024, out.Len())
	assert.Equal(t, testRate, out.SampleRate)
}

func TestTrain_Variational(t *testing.T) {
	root := t.TempDir()
	cfg := smallConfig(root)
	cfg.Train.Variational = true
	cfg.Train.Optimizer = "sgd"
	cfg.Train.Criterion = "l1"
	writeEchoDataset(t, cfg.General.DatasetPath, 4, 512)

	res, err := Train(context.Background(), cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, train.Variational, res.Mode)
	require.NotEmpty(t, res.Epochs)
	for _, s := range res.Epochs {
		assert.GreaterOrEqual(t, s.KL, 0.0)
		assert.InDelta(t, s.Reconstruction+s.KL, s.Loss, 1e-9)
	}
}

func TestTrain_Errors(t *testing.T) {
	root := t.TempDir()

	cfg := smallConfig(root)
	cfg.Train.Bands = 3
	_, err := Train(context.Background(), cfg, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)

	cfg = smallConfig(root)
	_, err = Train(context.Background(), cfg, nil)
	require.ErrorIs(t, err, os.ErrNotExist)

	writeEchoDataset(t, cfg.General.DatasetPath, 2, 256)
	cfg.Train.Optimizer = "rmsprop"
	_, err = Train(context.Background(), cfg, nil)
	require.Error(t, err)

	cfg = smallConfig(root)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Train(ctx, cfg, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.NotEmpty(t, res.RunID)
	assert.Empty(t, res.Epochs)
}

func TestPreprocessThenTrain(t *testing.T) {
	root := t.TempDir()
	cfg := smallConfig(root)
	cfg.Preprocess.ModelChunkSize = 4000
	cfg.Preprocess.FixedTail = 400
	cfg.Preprocess.InputDir = filepath.Join(root, "raw")
	cfg.Preprocess.DryOutputDir = filepath.Join(root, "dry")
	cfg.Preprocess.ShortOutputDir = filepath.Join(root, "short")
	cfg.Preprocess.WetOutputDir = filepath.Join(root, "wet")
	cfg.Train.Epochs = 1

	require.NoError(t, os.MkdirAll(cfg.Preprocess.InputDir, 0o755))
	for i, n := range []int{12000, 10000} {
		buf := audiobuf.FromMono(testutil.Sine(n, 330, testRate, 0.4), testRate)
		path := filepath.Join(cfg.Preprocess.InputDir, fmt.Sprintf("take%d.wav", i))
		require.NoError(t, audioio.Write(path, buf, audioio.BitDepth16))
	}

	rep, err := Preprocess(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, rep.FullSegments)
	assert.Equal(t, 1, rep.Agglomerated)
	assert.Equal(t, 6, rep.WetFiles)

	res, err := Train(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Train+res.Val)
	assert.Len(t, res.Epochs, 2)
}

func TestPreprocess_TailTooLong(t *testing.T) {
	root := t.TempDir()
	cfg := smallConfig(root)
	cfg.Preprocess.ModelChunkSize = 1000
	cfg.Preprocess.FixedTail = 2000
	cfg.Preprocess.InputDir = filepath.Join(root, "raw")

	_, err := Preprocess(context.Background(), cfg, nil)
	require.ErrorIs(t, err, ErrConfiguration)
}
