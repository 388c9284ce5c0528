package nn

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Criterion names accepted by NewCriterion.
const (
	CriterionMSE = "mse"
	CriterionL1  = "l1"
)

// Criterion compares a prediction with its target and returns the loss and
// its gradient with respect to the prediction.
type Criterion interface {
	Name() string
	Loss(pred, target []float64) (loss float64, grad []float64, err error)
}

// NewCriterion returns the criterion with the given name.
func NewCriterion(name string) (Criterion, error) {
	switch strings.ToLower(name) {
	case CriterionMSE:
		return MSE{}, nil
	case CriterionL1:
		return L1{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCriterion, name)
	}
}

// MSE is the mean squared error.
type MSE struct{}

// Name implements Criterion.
func (MSE) Name() string { return CriterionMSE }

// Loss implements Criterion.
func (MSE) Loss(pred, target []float64) (float64, []float64, error) {
	diff, err := difference(pred, target)
	if err != nil {
		return 0, nil, err
	}
	n := float64(len(diff))
	loss := floats.Dot(diff, diff) / n
	floats.Scale(2/n, diff)
	return loss, diff, nil
}

// L1 is the mean absolute error. Its gradient at zero is zero.
type L1 struct{}

// Name implements Criterion.
func (L1) Name() string { return CriterionL1 }

// Loss implements Criterion.
func (L1) Loss(pred, target []float64) (float64, []float64, error) {
	diff, err := difference(pred, target)
	if err != nil {
		return 0, nil, err
	}
	n := float64(len(diff))
	loss := floats.Norm(diff, 1) / n
	for i, d := range diff {
		switch {
		case d > 0:
			diff[i] = 1 / n
		case d < 0:
			diff[i] = -1 / n
		default:
			diff[i] = 0
		}
	}
	return loss, diff, nil
}

func difference(pred, target []float64) ([]float64, error) {
	if len(pred) != len(target) || len(pred) == 0 {
		return nil, fmt.Errorf("%w: prediction %d, target %d", ErrShape, len(pred), len(target))
	}
	diff := make([]float64, len(pred))
	floats.SubTo(diff, pred, target)
	return diff, nil
}
