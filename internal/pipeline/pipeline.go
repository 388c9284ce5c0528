// Package pipeline implements the preprocessing pipeline that turns a
// directory of recordings into a dry/wet training dataset.
//
// The run is decomposed into stages executed in order over a shared State:
//
//	tail → segment → agglomerate → render → dataset → cleanup
//
// The tail stage gates the rest: a model input shorter than the reverb tail
// aborts before any file is touched.
package pipeline

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tphakala/go-reverb-emulator/internal/config"
	"github.com/tphakala/go-reverb-emulator/internal/dataset"
	"github.com/tphakala/go-reverb-emulator/internal/effect"
	"github.com/tphakala/go-reverb-emulator/internal/logging"
	"github.com/tphakala/go-reverb-emulator/internal/segment"
)

// Stage is one step of the run.
type Stage interface {
	Name() string
	Run(ctx context.Context, s *State) error
}

// State is what the stages produce and consume.
type State struct {
	Config config.Config

	Tail         int
	Segments     []segment.FileResult
	Agglomerated []string
	Wet          []string
	DatasetPath  string
}

// Report summarises a finished run.
type Report struct {
	Tail          int
	SegmentLength int
	Sources       int
	FullSegments  int
	ShortSegments int
	Agglomerated  int
	WetFiles      int
	DatasetPath   string
	Duration      time.Duration
}

// Options configures a Pipeline. Only Config is required.
type Options struct {
	Config config.Config

	// Processor renders wet audio and drives tail estimation. Nil opens the
	// configured impulse response, or the plate when none is set.
	Processor effect.Processor

	// Materializer stores the dataset. Nil selects dataset.FileMaterializer.
	Materializer dataset.Materializer

	// Rand drives noise, fades and padding. Nil seeds from the config.
	Rand *rand.Rand

	Log logrus.FieldLogger
}

// Pipeline runs the stages.
type Pipeline struct {
	stages []Stage
	cfg    config.Config
	log    logrus.FieldLogger
}

// New validates the configuration and assembles the stages.
func New(opts Options) (*Pipeline, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logging.OrDiscard(opts.Log)

	proc := opts.Processor
	if proc == nil {
		board, err := effect.Open(cfg.Preprocess.PluginPath, cfg.Preprocess.Plate)
		if err != nil {
			return nil, err
		}
		proc = board
	}
	proc.Configure(effect.FullyWet)

	mat := opts.Materializer
	if mat == nil {
		mat = dataset.NewFileMaterializer(log)
	}

	rng := opts.Rand
	if rng == nil {
		seed := cfg.General.Seed
		rng = rand.New(rand.NewPCG(seed, seed))
	}

	stages := []Stage{
		&tailStage{proc: proc, rng: rng, log: log},
		&segmentStage{rng: rng, log: log},
		&agglomerateStage{log: log},
		&renderStage{proc: proc, log: log},
		&datasetStage{mat: mat},
		&cleanupStage{},
	}
	return &Pipeline{stages: stages, cfg: cfg, log: log}, nil
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Run executes every stage. It stops at the first error, or when ctx is
// cancelled between stages.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	st := &State{Config: p.cfg}

	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		stageStart := time.Now()
		if err := stage.Run(ctx, st); err != nil {
			return Report{}, fmt.Errorf("%s stage: %w", stage.Name(), err)
		}
		p.log.WithFields(logrus.Fields{
			"stage":    stage.Name(),
			"duration": time.Since(stageStart).Round(time.Millisecond),
		}).Info("stage finished")
	}

	rep := st.report()
	rep.Duration = time.Since(start)
	return rep, nil
}

func (s *State) report() Report {
	rep := Report{
		Tail:          s.Tail,
		SegmentLength: s.Config.Preprocess.ModelChunkSize - s.Tail,
		Sources:       len(s.Segments),
		Agglomerated:  len(s.Agglomerated),
		WetFiles:      len(s.Wet),
		DatasetPath:   s.DatasetPath,
	}
	for _, r := range s.Segments {
		rep.FullSegments += len(r.Full)
		rep.ShortSegments++
	}
	return rep
}
