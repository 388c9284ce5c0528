package train

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tphakala/go-reverb-emulator/internal/dataset"
)

// EpochStats are the per-step means of one phase of an epoch.
type EpochStats struct {
	Epoch          int
	Phase          Phase
	Steps          int
	Loss           float64
	Reconstruction float64
	KL             float64
	BandLoss       float64
}

// Reporter receives epoch summaries and one audio example per epoch.
type Reporter interface {
	ReportEpoch(stats EpochStats) error
	ReportExample(epoch int, ex Example, sampleRate int) error
}

type accumulator struct {
	stats EpochStats
}

func (a *accumulator) add(r Result) {
	a.stats.Steps++
	a.stats.Loss += r.Loss
	a.stats.Reconstruction += r.Reconstruction
	a.stats.KL += r.KL
	a.stats.BandLoss += r.BandLoss
}

func (a *accumulator) mean() EpochStats {
	s := a.stats
	if s.Steps > 0 {
		n := float64(s.Steps)
		s.Loss /= n
		s.Reconstruction /= n
		s.KL /= n
		s.BandLoss /= n
	}
	return s
}

// Fit trains for the given number of epochs, evaluating valSet (which may
// be empty) after each one, and returns the statistics of every phase.
// The audio example of each epoch comes from its last training batch.
func (t *Trainer) Fit(ctx context.Context, epochs int, trainSet, valSet *dataset.Dataset) ([]EpochStats, error) {
	if trainSet.Len() == 0 {
		return nil, fmt.Errorf("%w: training set is empty", ErrEmptyBatch)
	}

	var history []EpochStats
	for epoch := range epochs {
		trainStats, example, err := t.runPhase(ctx, epoch, Training, trainSet)
		if err != nil {
			return history, err
		}
		history = append(history, trainStats)

		if valSet != nil && valSet.Len() > 0 {
			valStats, _, err := t.runPhase(ctx, epoch, Validation, valSet)
			if err != nil {
				return history, err
			}
			history = append(history, valStats)
		}

		if err := t.reportExample(epoch, example); err != nil {
			return history, err
		}
	}
	return history, nil
}

func (t *Trainer) runPhase(ctx context.Context, epoch int, phase Phase, ds *dataset.Dataset) (EpochStats, Example, error) {
	rng := t.opts.Rand
	if phase == Validation {
		rng = nil
	}
	batches, err := ds.Batches(t.opts.BatchSize, rng)
	if err != nil {
		return EpochStats{}, Example{}, err
	}

	acc := accumulator{stats: EpochStats{Epoch: epoch, Phase: phase}}
	var last Example
	for i, b := range batches {
		if err := ctx.Err(); err != nil {
			return EpochStats{}, Example{}, err
		}
		res, err := t.Step(b, phase)
		if err != nil {
			return EpochStats{}, Example{}, fmt.Errorf("epoch %d %s batch %d: %w", epoch, phase, i, err)
		}
		acc.add(res)
		last = res.Example

		t.log.WithFields(logrus.Fields{
			"epoch": epoch, "phase": phase.String(), "batch": i,
			"loss": res.Loss, "grad_norm_enc": res.GradNormEnc, "grad_norm_dec": res.GradNormDec,
		}).Debug("step")
	}

	stats := acc.mean()
	t.log.WithFields(logrus.Fields{
		"epoch": epoch, "phase": phase.String(), "steps": stats.Steps,
		"loss": stats.Loss, "criterion": stats.Reconstruction, "kl": stats.KL, "band_loss": stats.BandLoss,
	}).Info("epoch finished")

	if t.opts.Reporter != nil {
		if err := t.opts.Reporter.ReportEpoch(stats); err != nil {
			return EpochStats{}, Example{}, err
		}
	}
	return stats, last, nil
}

func (t *Trainer) reportExample(epoch int, ex Example) error {
	if t.opts.Reporter == nil || len(ex.Input) == 0 {
		return nil
	}
	return t.opts.Reporter.ReportExample(epoch, ex, t.opts.SampleRate)
}
