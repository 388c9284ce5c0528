package nn

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Linear applies the same dense map to every frame:
//
//	y[:, t] = act(W·x[:, t] + b)
//
// with act = tanh or the identity.
type Linear struct {
	weight *Param
	bias   *Param
	tanh   bool

	input  *mat.Dense
	output *mat.Dense
}

// NewLinear returns a layer mapping in channels to out channels.
func NewLinear(name string, in, out int, tanh bool, rng *rand.Rand) (*Linear, error) {
	if in <= 0 || out <= 0 {
		return nil, fmt.Errorf("%w: linear %s %d→%d", ErrInvalidArchitecture, name, in, out)
	}
	l := &Linear{
		weight: newParam(name+".weight", out, in),
		bias:   newParam(name+".bias", out, 1),
		tanh:   tanh,
	}
	xavier(l.weight, in, out, rng)
	return l, nil
}

// In returns the number of input channels.
func (l *Linear) In() int {
	_, c := l.weight.Value.Dims()
	return c
}

// Out returns the number of output channels.
func (l *Linear) Out() int {
	r, _ := l.weight.Value.Dims()
	return r
}

// Forward implements Block.
func (l *Linear) Forward(x *mat.Dense) *mat.Dense {
	_, frames := x.Dims()
	y := mat.NewDense(l.Out(), frames, nil)
	y.Mul(l.weight.Value, x)

	b := l.bias.Value.RawMatrix().Data
	y.Apply(func(i, _ int, v float64) float64 {
		v += b[i]
		if l.tanh {
			return math.Tanh(v)
		}
		return v
	}, y)

	l.input, l.output = x, y
	return y
}

// Backward implements Block.
func (l *Linear) Backward(grad *mat.Dense) *mat.Dense {
	pre := mat.DenseCopyOf(grad)
	if l.tanh {
		pre.Apply(func(i, j int, g float64) float64 {
			y := l.output.At(i, j)
			return g * (1 - y*y)
		}, pre)
	}

	var dw mat.Dense
	dw.Mul(pre, l.input.T())
	l.weight.Grad.Add(l.weight.Grad, &dw)

	db := l.bias.Grad.RawMatrix().Data
	for i := range db {
		db[i] += floats.Sum(pre.RawRowView(i))
	}

	dx := mat.NewDense(l.In(), pre.RawMatrix().Cols, nil)
	dx.Mul(l.weight.Value.T(), pre)
	return dx
}

// Parameters implements Block.
func (l *Linear) Parameters() []*Param {
	return []*Param{l.weight, l.bias}
}
