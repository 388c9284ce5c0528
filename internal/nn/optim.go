package nn

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Optimizer names accepted by NewOptimizer.
const (
	OptimizerAdam = "adam"
	OptimizerSGD  = "sgd"
)

// Adam defaults.
const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
)

// clipEpsilon keeps the clipping coefficient finite for zero gradients.
const clipEpsilon = 1e-6

// Optimizer updates a fixed set of parameters from their gradients.
type Optimizer interface {
	ZeroGrad()
	Step()
}

// NewOptimizer returns the named optimizer over params with learning rate lr.
func NewOptimizer(name string, params []*Param, lr float64) (Optimizer, error) {
	switch strings.ToLower(name) {
	case OptimizerAdam:
		return NewAdam(params, lr), nil
	case OptimizerSGD:
		return NewSGD(params, lr, 0), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOptimizer, name)
	}
}

func zeroGrads(params []*Param) {
	for _, p := range params {
		p.ZeroGrad()
	}
}

// SGD is stochastic gradient descent with optional momentum.
type SGD struct {
	params   []*Param
	lr       float64
	momentum float64
	velocity [][]float64
}

// NewSGD returns an SGD optimizer.
func NewSGD(params []*Param, lr, momentum float64) *SGD {
	s := &SGD{params: params, lr: lr, momentum: momentum}
	if momentum > 0 {
		s.velocity = make([][]float64, len(params))
		for i, p := range params {
			s.velocity[i] = make([]float64, len(p.Grad.RawMatrix().Data))
		}
	}
	return s
}

// ZeroGrad implements Optimizer.
func (s *SGD) ZeroGrad() { zeroGrads(s.params) }

// Step implements Optimizer.
func (s *SGD) Step() {
	for i, p := range s.params {
		g := p.Grad.RawMatrix().Data
		w := p.Value.RawMatrix().Data
		if s.momentum > 0 {
			v := s.velocity[i]
			floats.Scale(s.momentum, v)
			floats.Add(v, g)
			g = v
		}
		floats.AddScaled(w, -s.lr, g)
	}
}

// Adam is the Adam optimizer with bias-corrected moment estimates.
type Adam struct {
	params []*Param
	lr     float64
	beta1  float64
	beta2  float64
	eps    float64

	step int
	m, v [][]float64
}

// NewAdam returns an Adam optimizer with the usual betas.
func NewAdam(params []*Param, lr float64) *Adam {
	a := &Adam{params: params, lr: lr, beta1: adamBeta1, beta2: adamBeta2, eps: adamEpsilon}
	a.m = make([][]float64, len(params))
	a.v = make([][]float64, len(params))
	for i, p := range params {
		n := len(p.Grad.RawMatrix().Data)
		a.m[i] = make([]float64, n)
		a.v[i] = make([]float64, n)
	}
	return a
}

// ZeroGrad implements Optimizer.
func (a *Adam) ZeroGrad() { zeroGrads(a.params) }

// Step implements Optimizer.
func (a *Adam) Step() {
	a.step++
	c1 := 1 - math.Pow(a.beta1, float64(a.step))
	c2 := 1 - math.Pow(a.beta2, float64(a.step))

	for i, p := range a.params {
		g := p.Grad.RawMatrix().Data
		w := p.Value.RawMatrix().Data
		m, v := a.m[i], a.v[i]
		for j, gj := range g {
			m[j] = a.beta1*m[j] + (1-a.beta1)*gj
			v[j] = a.beta2*v[j] + (1-a.beta2)*gj*gj
			w[j] -= a.lr * (m[j] / c1) / (math.Sqrt(v[j]/c2) + a.eps)
		}
	}
}

// ClipGradNorm rescales the gradients of params so their joint L2 norm is
// at most maxNorm and returns the norm before clipping.
func ClipGradNorm(params []*Param, maxNorm float64) float64 {
	var sq float64
	for _, p := range params {
		g := p.Grad.RawMatrix().Data
		sq += floats.Dot(g, g)
	}
	total := math.Sqrt(sq)

	coef := maxNorm / (total + clipEpsilon)
	if coef < 1 {
		for _, p := range params {
			floats.Scale(coef, p.Grad.RawMatrix().Data)
		}
	}
	return total
}
