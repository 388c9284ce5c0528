package reverb

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/tphakala/go-reverb-emulator/internal/config"
	"github.com/tphakala/go-reverb-emulator/internal/dataset"
	"github.com/tphakala/go-reverb-emulator/internal/logging"
	"github.com/tphakala/go-reverb-emulator/internal/nn"
	"github.com/tphakala/go-reverb-emulator/internal/pipeline"
	"github.com/tphakala/go-reverb-emulator/internal/pqmf"
	"github.com/tphakala/go-reverb-emulator/internal/tail"
	"github.com/tphakala/go-reverb-emulator/internal/train"
)

type (
	// Config is the complete parameter set.
	Config = config.Config

	// Report summarises a preprocessing run.
	Report = pipeline.Report

	// EpochStats are the per-step means of one phase of an epoch.
	EpochStats = train.EpochStats

	// Mode selects deterministic or variational training.
	Mode = train.Mode
)

var (
	// ErrConfiguration indicates a model input shorter than the reverb tail.
	ErrConfiguration = tail.ErrConfiguration

	// ErrInvalidConfig indicates a malformed configuration value.
	ErrInvalidConfig = config.ErrInvalidConfig

	// ErrPairMismatch indicates dry and wet corpora that do not pair up.
	ErrPairMismatch = dataset.ErrPairMismatch
)

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return config.Default()
}

// LoadConfig layers a YAML file, a .env file and the environment over
// DefaultConfig. Either path may be empty.
func LoadConfig(path, envFile string) (Config, error) {
	return config.Load(path, envFile)
}

// Preprocess runs the preprocessing pipeline with the configured effect.
// A nil logger discards output.
func Preprocess(ctx context.Context, cfg Config, log logrus.FieldLogger) (Report, error) {
	p, err := pipeline.New(pipeline.Options{Config: cfg, Log: log})
	if err != nil {
		return Report{}, err
	}
	return p.Run(ctx)
}

// TrainResult describes a finished training run.
type TrainResult struct {
	RunID  string
	RunDir string
	Mode   Mode
	Train  int // training pairs
	Val    int // validation pairs
	Epochs []EpochStats
}

// Train fits the reference model to the dataset at general.dataset_path.
// Statistics gathered before a failure are returned with the error.
func Train(ctx context.Context, cfg Config, log logrus.FieldLogger) (TrainResult, error) {
	if err := cfg.Validate(); err != nil {
		return TrainResult{}, err
	}
	log = logging.OrDiscard(log)
	g, t := cfg.General, cfg.Train
	rng := rand.New(rand.NewPCG(g.Seed, g.Seed))

	ds, err := dataset.Load(g.DatasetPath)
	if err != nil {
		return TrainResult{}, err
	}
	trainSet, valSet, err := ds.Split(t.ValidationSplit, rng)
	if err != nil {
		return TrainResult{}, err
	}

	bank, err := pqmf.New(t.Bands, t.Attenuation)
	if err != nil {
		return TrainResult{}, err
	}

	mode, latent := train.Deterministic, 0
	if t.Variational {
		mode, latent = train.Variational, t.LatentSize
	}
	enc, dec, err := nn.NewReferenceModel(t.Bands, t.Hidden, latent, rng)
	if err != nil {
		return TrainResult{}, err
	}
	params := slices.Concat(enc.Parameters(), dec.Parameters())
	opt, err := nn.NewOptimizer(t.Optimizer, params, t.LearningRate)
	if err != nil {
		return TrainResult{}, err
	}
	crit, err := nn.NewCriterion(t.Criterion)
	if err != nil {
		return TrainResult{}, err
	}

	runLog, err := train.NewRunLog(t.LogDir, g.BitDepth, log)
	if err != nil {
		return TrainResult{}, err
	}

	sampleRate := g.SampleRate
	if ds.Len() > 0 {
		sampleRate = ds.Pairs[0].Dry.SampleRate
	}
	trainer, err := train.New(train.Options{
		Mode:        mode,
		Bank:        bank,
		Encoder:     enc,
		Decoder:     dec,
		Criterion:   crit,
		Optimizer:   opt,
		BatchSize:   t.BatchSize,
		MaxGradNorm: t.MaxGradNorm,
		SampleRate:  sampleRate,
		Rand:        rng,
		Reporter:    runLog,
		Log:         log.WithField("run", runLog.ID()),
	})
	if err != nil {
		return TrainResult{}, err
	}

	log.WithFields(logrus.Fields{
		"mode":       mode.String(),
		"train":      trainSet.Len(),
		"val":        valSet.Len(),
		"bands":      t.Bands,
		"parameters": countParams(params),
	}).Info("training started")

	res := TrainResult{
		RunID:  runLog.ID(),
		RunDir: runLog.Dir(),
		Mode:   mode,
		Train:  trainSet.Len(),
		Val:    valSet.Len(),
	}
	res.Epochs, err = trainer.Fit(ctx, t.Epochs, trainSet, valSet)
	if err != nil {
		return res, fmt.Errorf("run %s: %w", res.RunID, err)
	}
	return res, nil
}

func countParams(params []*nn.Param) int {
	var n int
	for _, p := range params {
		r, c := p.Value.Dims()
		n += r * c
	}
	return n
}
