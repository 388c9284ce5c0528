// Package nn defines the network contract the trainer drives and a small
// reference network implementing it.
//
// Signals are channels × time matrices: band channels from the filter bank
// on rows, frames on columns. Layers cache their last forward pass, so a
// Backward call refers to the most recent Forward and a network must not be
// shared between goroutines.
package nn

import (
	"errors"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// ErrShape indicates operands whose dimensions do not fit together.
	ErrShape = errors.New("tensor shape mismatch")

	// ErrInvalidArchitecture indicates non-positive layer sizes.
	ErrInvalidArchitecture = errors.New("invalid network architecture")

	// ErrUnknownCriterion indicates an unsupported loss name.
	ErrUnknownCriterion = errors.New("unknown criterion")

	// ErrUnknownOptimizer indicates an unsupported optimizer name.
	ErrUnknownOptimizer = errors.New("unknown optimizer")
)

// Param is a trainable matrix and its accumulated gradient.
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

func newParam(name string, rows, cols int) *Param {
	return &Param{
		Name:  name,
		Value: mat.NewDense(rows, cols, nil),
		Grad:  mat.NewDense(rows, cols, nil),
	}
}

// ZeroGrad clears the gradient.
func (p *Param) ZeroGrad() {
	p.Grad.Zero()
}

// Block is one stage of an encoder.
type Block interface {
	Forward(x *mat.Dense) *mat.Dense
	// Backward takes the gradient of the loss with respect to the last
	// output, accumulates parameter gradients and returns the gradient with
	// respect to the last input.
	Backward(grad *mat.Dense) *mat.Dense
	Parameters() []*Param
}

// Encoder is an ordered list of blocks. The trainer runs them itself so it
// can keep every intermediate output for the decoder's skip connections.
type Encoder interface {
	Blocks() []Block
	Parameters() []*Param
}

// VariationalEncoder also maps its input to a diagonal Gaussian over the
// latent.
type VariationalEncoder interface {
	Encoder
	Encode(x *mat.Dense) (mu, logvar *mat.Dense)
	// BackwardEncode accumulates gradients for the last Encode call and
	// returns the gradient with respect to its input.
	BackwardEncode(gradMu, gradLogvar *mat.Dense) *mat.Dense
}

// Decoder maps a latent and skip connections, deepest first, to output
// bands.
type Decoder interface {
	Decode(z *mat.Dense, skips []*mat.Dense) (*mat.Dense, error)
	// Backward returns the gradients with respect to z and each skip.
	Backward(grad *mat.Dense) (gradZ *mat.Dense, gradSkips []*mat.Dense)
	Parameters() []*Param
}

// FromRows copies channel slices of equal, non-zero length into a matrix.
func FromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrShape
	}
	m := mat.NewDense(len(rows), len(rows[0]), nil)
	for i, row := range rows {
		if len(row) != len(rows[0]) {
			return nil, ErrShape
		}
		m.SetRow(i, row)
	}
	return m, nil
}

// Rows copies m into channel slices.
func Rows(m mat.Matrix) [][]float64 {
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}

// xavier fills p with Glorot-uniform values for a fanIn → fanOut map.
func xavier(p *Param, fanIn, fanOut int, rng *rand.Rand) {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	dist := distuv.Uniform{Min: -limit, Max: limit, Src: rng}
	data := p.Value.RawMatrix().Data
	for i := range data {
		data[i] = dist.Rand()
	}
}
