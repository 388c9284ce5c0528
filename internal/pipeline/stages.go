package pipeline

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/tphakala/go-reverb-emulator/internal/agglomerate"
	"github.com/tphakala/go-reverb-emulator/internal/audioio"
	"github.com/tphakala/go-reverb-emulator/internal/dataset"
	"github.com/tphakala/go-reverb-emulator/internal/effect"
	"github.com/tphakala/go-reverb-emulator/internal/render"
	"github.com/tphakala/go-reverb-emulator/internal/segment"
	"github.com/tphakala/go-reverb-emulator/internal/tail"
)

// tailStage measures the reverb tail, or takes the configured fixed tail,
// and checks it fits in the model input.
type tailStage struct {
	proc effect.Processor
	rng  *rand.Rand
	log  logrus.FieldLogger
}

func (*tailStage) Name() string { return "tail" }

func (t *tailStage) Run(_ context.Context, s *State) error {
	g, p := s.Config.General, s.Config.Preprocess

	if p.FixedTail > 0 {
		s.Tail = p.FixedTail
	} else {
		est, err := tail.NewEstimator(tail.Params{
			SampleRate:    g.SampleRate,
			BlockSize:     p.BoardChunkSize,
			WindowLength:  p.SlidingMeanLength,
			NoiseDuration: p.NoiseDuration,
			NumNoises:     p.NumNoises,
		}, t.rng, t.log)
		if err != nil {
			return err
		}
		if s.Tail, err = est.Estimate(t.proc); err != nil {
			return err
		}
	}

	t.log.WithFields(logrus.Fields{"tail": s.Tail, "fixed": p.FixedTail > 0}).Info("max tail length")
	return tail.CheckModelSize(p.ModelChunkSize, s.Tail)
}

type segmentStage struct {
	rng *rand.Rand
	log logrus.FieldLogger
}

func (*segmentStage) Name() string { return "segment" }

func (t *segmentStage) Run(_ context.Context, s *State) error {
	p := s.Config.Preprocess
	seg, err := segment.New(segment.Params{
		ModelChunkSize: p.ModelChunkSize,
		MaxTail:        s.Tail,
		BitDepth:       s.Config.General.BitDepth,
	}, t.rng, t.log)
	if err != nil {
		return err
	}
	s.Segments, err = seg.SegmentDir(p.InputDir, p.DryOutputDir, p.ShortOutputDir)
	return err
}

type agglomerateStage struct {
	log logrus.FieldLogger
}

func (*agglomerateStage) Name() string { return "agglomerate" }

func (t *agglomerateStage) Run(_ context.Context, s *State) error {
	g, p := s.Config.General, s.Config.Preprocess
	agg, err := agglomerate.New(p.ModelChunkSize, g.SampleRate, g.BitDepth, t.log)
	if err != nil {
		return err
	}
	s.Agglomerated, err = agg.Run(p.ShortOutputDir, p.DryOutputDir)
	return err
}

type renderStage struct {
	proc effect.Processor
	log  logrus.FieldLogger
}

func (*renderStage) Name() string { return "render" }

func (t *renderStage) Run(_ context.Context, s *State) error {
	p := s.Config.Preprocess
	r, err := render.New(t.proc, p.BoardChunkSize, s.Config.General.BitDepth, t.log)
	if err != nil {
		return err
	}
	s.Wet, err = r.RenderDir(p.DryOutputDir, p.WetOutputDir)
	return err
}

type datasetStage struct {
	mat dataset.Materializer
}

func (*datasetStage) Name() string { return "dataset" }

func (t *datasetStage) Run(_ context.Context, s *State) error {
	p := s.Config.Preprocess
	dry, err := audioio.List(p.DryOutputDir, audioio.ExtWAV)
	if err != nil {
		return err
	}
	wet, err := audioio.List(p.WetOutputDir, audioio.ExtWAV)
	if err != nil {
		return err
	}
	dest := s.Config.General.DatasetPath
	if err := t.mat.Save(dry, wet, dest); err != nil {
		return err
	}
	s.DatasetPath = dest
	return nil
}

// cleanupStage removes the short-segment directory.
type cleanupStage struct{}

func (*cleanupStage) Name() string { return "cleanup" }

func (*cleanupStage) Run(_ context.Context, s *State) error {
	p := s.Config.Preprocess
	if p.KeepShort {
		return nil
	}
	if err := os.RemoveAll(p.ShortOutputDir); err != nil {
		return fmt.Errorf("remove short segments: %w", err)
	}
	return nil
}
