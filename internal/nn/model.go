package nn

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// DenseEncoder is a stack of tanh Linear blocks over band channels.
type DenseEncoder struct {
	blocks []Block
}

// NewDenseEncoder maps bands channels through the hidden sizes in order.
func NewDenseEncoder(bands int, hidden []int, rng *rand.Rand) (*DenseEncoder, error) {
	if len(hidden) == 0 {
		return nil, fmt.Errorf("%w: encoder needs at least one block", ErrInvalidArchitecture)
	}
	e := &DenseEncoder{}
	in := bands
	for i, out := range hidden {
		l, err := NewLinear(fmt.Sprintf("encoder.%d", i), in, out, true, rng)
		if err != nil {
			return nil, err
		}
		e.blocks = append(e.blocks, l)
		in = out
	}
	return e, nil
}

// Blocks implements Encoder.
func (e *DenseEncoder) Blocks() []Block {
	return e.blocks
}

// Parameters implements Encoder.
func (e *DenseEncoder) Parameters() []*Param {
	var ps []*Param
	for _, b := range e.blocks {
		ps = append(ps, b.Parameters()...)
	}
	return ps
}

// VariationalDenseEncoder adds linear mu and logvar heads on top of the
// last block.
type VariationalDenseEncoder struct {
	*DenseEncoder
	mu     *Linear
	logvar *Linear
}

// NewVariationalDenseEncoder returns an encoder with a latent of the given
// number of channels.
func NewVariationalDenseEncoder(bands int, hidden []int, latent int, rng *rand.Rand) (*VariationalDenseEncoder, error) {
	base, err := NewDenseEncoder(bands, hidden, rng)
	if err != nil {
		return nil, err
	}
	last := hidden[len(hidden)-1]
	mu, err := NewLinear("encoder.mu", last, latent, false, rng)
	if err != nil {
		return nil, err
	}
	logvar, err := NewLinear("encoder.logvar", last, latent, false, rng)
	if err != nil {
		return nil, err
	}
	return &VariationalDenseEncoder{DenseEncoder: base, mu: mu, logvar: logvar}, nil
}

// Encode implements VariationalEncoder.
func (e *VariationalDenseEncoder) Encode(x *mat.Dense) (mu, logvar *mat.Dense) {
	h := x
	for _, b := range e.blocks {
		h = b.Forward(h)
	}
	return e.mu.Forward(h), e.logvar.Forward(h)
}

// BackwardEncode implements VariationalEncoder.
func (e *VariationalDenseEncoder) BackwardEncode(gradMu, gradLogvar *mat.Dense) *mat.Dense {
	g := e.mu.Backward(gradMu)
	g.Add(g, e.logvar.Backward(gradLogvar))
	for i := len(e.blocks) - 1; i >= 0; i-- {
		g = e.blocks[i].Backward(g)
	}
	return g
}

// Parameters implements Encoder.
func (e *VariationalDenseEncoder) Parameters() []*Param {
	ps := e.DenseEncoder.Parameters()
	ps = append(ps, e.mu.Parameters()...)
	return append(ps, e.logvar.Parameters()...)
}

// SkipDecoder concatenates the running state with one skip per layer:
//
//	h₀ = z, hⱼ₊₁ = layerⱼ([hⱼ; skipⱼ])
//
// Every layer but the last is tanh and returns to the skip's width.
type SkipDecoder struct {
	layers    []*Linear
	skipSizes []int
}

// NewSkipDecoder builds a decoder for a latent of latent channels, skips of
// the given widths (deepest first) and out output channels.
func NewSkipDecoder(latent int, skipSizes []int, out int, rng *rand.Rand) (*SkipDecoder, error) {
	if len(skipSizes) == 0 {
		return nil, fmt.Errorf("%w: decoder needs at least one skip", ErrInvalidArchitecture)
	}
	d := &SkipDecoder{skipSizes: slices.Clone(skipSizes)}
	width := latent
	for j, s := range skipSizes {
		last := j == len(skipSizes)-1
		next := s
		if last {
			next = out
		}
		l, err := NewLinear(fmt.Sprintf("decoder.%d", j), width+s, next, !last, rng)
		if err != nil {
			return nil, err
		}
		d.layers = append(d.layers, l)
		width = next
	}
	return d, nil
}

// Decode implements Decoder.
func (d *SkipDecoder) Decode(z *mat.Dense, skips []*mat.Dense) (*mat.Dense, error) {
	if len(skips) != len(d.layers) {
		return nil, fmt.Errorf("%w: %d skips for %d layers", ErrShape, len(skips), len(d.layers))
	}
	h := z
	for j, l := range d.layers {
		hr, hc := h.Dims()
		sr, sc := skips[j].Dims()
		if hc != sc || hr+sr != l.In() {
			return nil, fmt.Errorf("%w: decoder layer %d got %d+%d×%d, want %d rows × %d",
				ErrShape, j, hr, sr, sc, l.In(), hc)
		}
		in := mat.NewDense(hr+sr, hc, nil)
		in.Stack(h, skips[j])
		h = l.Forward(in)
	}
	return h, nil
}

// Backward implements Decoder.
func (d *SkipDecoder) Backward(grad *mat.Dense) (gradZ *mat.Dense, gradSkips []*mat.Dense) {
	gradSkips = make([]*mat.Dense, len(d.layers))
	g := grad
	for j := len(d.layers) - 1; j >= 0; j-- {
		gin := d.layers[j].Backward(g)
		rows, cols := gin.Dims()
		split := rows - d.skipSizes[j]
		gradSkips[j] = mat.DenseCopyOf(gin.Slice(split, rows, 0, cols))
		g = mat.DenseCopyOf(gin.Slice(0, split, 0, cols))
	}
	return g, gradSkips
}

// Parameters implements Decoder.
func (d *SkipDecoder) Parameters() []*Param {
	var ps []*Param
	for _, l := range d.layers {
		ps = append(ps, l.Parameters()...)
	}
	return ps
}

// NewReferenceModel builds the encoder/decoder pair trained by the command
// line tool. A positive latent selects a variational encoder with that many
// latent channels; otherwise the latent is the last hidden layer.
//
// The decoder receives the encoder outputs in reverse, minus the deepest
// one, followed by the input bands.
func NewReferenceModel(bands int, hidden []int, latent int, rng *rand.Rand) (Encoder, Decoder, error) {
	if bands <= 0 || len(hidden) == 0 {
		return nil, nil, fmt.Errorf("%w: %d bands, %d hidden layers", ErrInvalidArchitecture, bands, len(hidden))
	}

	var (
		enc Encoder
		err error
	)
	zWidth := hidden[len(hidden)-1]
	if latent > 0 {
		enc, err = NewVariationalDenseEncoder(bands, hidden, latent, rng)
		zWidth = latent
	} else {
		enc, err = NewDenseEncoder(bands, hidden, rng)
	}
	if err != nil {
		return nil, nil, err
	}

	skips := slices.Clone(hidden[:len(hidden)-1])
	slices.Reverse(skips)
	skips = append(skips, bands)

	dec, err := NewSkipDecoder(zWidth, skips, bands, rng)
	if err != nil {
		return nil, nil, err
	}
	return enc, dec, nil
}
