// Package train fits an encoder/decoder pair to predict the wet half of a
// dry/wet pair from the dry half, one pair per batch, in the sub-band domain
// of a PQMF bank.
//
// Per batch:
//
//  1. the first pair is flattened to one channel and wet is cut to dry's length,
//  2. both are centred in a power-of-two buffer and split into bands,
//  3. the dry bands run through the encoder blocks; the deepest output is the
//     latent and the others, reversed, then the dry bands, are the skips,
//  4. in variational mode the latent is sampled from the encoder's Gaussian
//     and a KL term joins the loss,
//  5. the decoded bands are synthesised and cropped back to the dry region,
//  6. the loss compares prediction + dry with wet.
//
// Training steps then backpropagate, clip encoder and decoder gradients
// separately and step the optimizer.
package train

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/tphakala/go-reverb-emulator/internal/dataset"
	"github.com/tphakala/go-reverb-emulator/internal/logging"
	"github.com/tphakala/go-reverb-emulator/internal/nn"
	"github.com/tphakala/go-reverb-emulator/internal/pqmf"
)

// DefaultMaxGradNorm bounds the encoder and decoder gradient norms.
const DefaultMaxGradNorm = 1.0

var (
	// ErrShapeMismatch indicates a pair whose halves cannot be aligned.
	ErrShapeMismatch = errors.New("dry/wet shape mismatch")

	// ErrEmptyBatch indicates a batch without pairs.
	ErrEmptyBatch = errors.New("empty batch")

	// ErrInvalidOptions indicates an incomplete trainer setup.
	ErrInvalidOptions = errors.New("invalid trainer options")
)

// Mode selects how the latent is produced.
type Mode int

const (
	// Deterministic uses the deepest encoder output as the latent.
	Deterministic Mode = iota
	// Variational samples the latent from the encoder's Gaussian and adds
	// a KL divergence term to the loss.
	Variational
)

func (m Mode) String() string {
	switch m {
	case Deterministic:
		return "deterministic"
	case Variational:
		return "variational"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Phase selects whether a step updates the model.
type Phase int

const (
	Training Phase = iota
	Validation
)

func (p Phase) String() string {
	if p == Training {
		return "train"
	}
	return "val"
}

// Options configures a Trainer. Bank, Encoder, Decoder, Criterion and
// Optimizer are required.
type Options struct {
	Mode      Mode
	Bank      *pqmf.Bank
	Encoder   nn.Encoder
	Decoder   nn.Decoder
	Criterion nn.Criterion
	Optimizer nn.Optimizer

	BatchSize   int
	MaxGradNorm float64 // DefaultMaxGradNorm when zero
	SampleRate  int     // attached to logged audio

	Rand     *rand.Rand // batch shuffling and reparameterisation noise
	Reporter Reporter   // nil disables reporting
	Log      logrus.FieldLogger
}

// Trainer runs steps and epochs.
type Trainer struct {
	opts    Options
	vae     nn.VariationalEncoder
	noise   distuv.Normal
	log     logrus.FieldLogger
	encPars []*nn.Param
	decPars []*nn.Param
}

// New validates opts. Variational mode requires an nn.VariationalEncoder.
func New(opts Options) (*Trainer, error) {
	switch {
	case opts.Bank == nil, opts.Encoder == nil, opts.Decoder == nil,
		opts.Criterion == nil, opts.Optimizer == nil:
		return nil, fmt.Errorf("%w: bank, encoder, decoder, criterion and optimizer are required", ErrInvalidOptions)
	case len(opts.Encoder.Blocks()) == 0:
		return nil, fmt.Errorf("%w: encoder has no blocks", ErrInvalidOptions)
	case opts.BatchSize <= 0:
		return nil, fmt.Errorf("%w: batch size %d", ErrInvalidOptions, opts.BatchSize)
	case opts.Rand == nil:
		return nil, fmt.Errorf("%w: random source is required", ErrInvalidOptions)
	}
	if opts.MaxGradNorm == 0 {
		opts.MaxGradNorm = DefaultMaxGradNorm
	}

	t := &Trainer{
		opts:    opts,
		noise:   distuv.Normal{Mu: 0, Sigma: 1, Src: opts.Rand},
		log:     logging.OrDiscard(opts.Log),
		encPars: opts.Encoder.Parameters(),
		decPars: opts.Decoder.Parameters(),
	}

	switch opts.Mode {
	case Deterministic:
	case Variational:
		vae, ok := opts.Encoder.(nn.VariationalEncoder)
		if !ok {
			return nil, fmt.Errorf("%w: variational mode needs a variational encoder", ErrInvalidOptions)
		}
		t.vae = vae
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, opts.Mode)
	}
	return t, nil
}

// Result holds the outcome of one step.
type Result struct {
	Loss           float64 // Reconstruction + KL
	Reconstruction float64
	KL             float64 // zero in deterministic mode
	BandLoss       float64 // MSE between predicted and wet bands
	GradNormEnc    float64 // before clipping; training steps only
	GradNormDec    float64

	Example Example
}

// Example is one input/target/output triple at the dry length.
type Example struct {
	Input  []float64
	Target []float64
	Output []float64 // prediction + input
}

// forward state kept for the backward pass.
type pass struct {
	left, n   int
	frames    int
	blockOuts []*mat.Dense
	mu        *mat.Dense
	logvar    *mat.Dense
	eps       *mat.Dense
	predLen   int
}

// Step runs one batch. Validation steps leave the model untouched.
func (t *Trainer) Step(batch dataset.Batch, phase Phase) (Result, error) {
	if len(batch.Pairs) == 0 {
		return Result{}, ErrEmptyBatch
	}
	pair := batch.Pairs[0]

	dry := pair.Dry.Flatten()
	wet := pair.Wet.Flatten()
	if len(dry) == 0 || len(wet) < len(dry) {
		return Result{}, fmt.Errorf("%w: %s has %d dry and %d wet samples", ErrShapeMismatch, pair.Name, len(dry), len(wet))
	}
	wet = wet[:len(dry)]

	bank := t.opts.Bank
	paddedDry, left := pqmf.CenterPadNextPow2(dry)
	paddedWet, _ := pqmf.CenterPadNextPow2(wet)
	dryBands := bank.Forward(paddedDry)
	wetBands := bank.Forward(paddedWet)

	x, err := nn.FromRows(dryBands)
	if err != nil {
		return Result{}, err
	}

	st := &pass{left: left, n: len(dry)}
	blocks := t.opts.Encoder.Blocks()
	h := x
	for _, b := range blocks {
		h = b.Forward(h)
		st.blockOuts = append(st.blockOuts, h)
	}
	z := st.blockOuts[len(st.blockOuts)-1]
	skips := make([]*mat.Dense, 0, len(blocks))
	for i := len(blocks) - 2; i >= 0; i-- {
		skips = append(skips, st.blockOuts[i])
	}
	skips = append(skips, x)

	var kl float64
	if t.opts.Mode == Variational {
		z, kl = t.sample(x, st)
	}

	outBands, err := t.opts.Decoder.Decode(z, skips)
	if err != nil {
		return Result{}, err
	}
	rows := nn.Rows(outBands)
	synth, err := bank.Inverse(rows)
	if err != nil {
		return Result{}, err
	}
	st.predLen = len(synth)
	pred := synth[left : left+len(dry)]

	output := make([]float64, len(dry))
	for i := range output {
		output[i] = pred[i] + dry[i]
	}

	recon, grad, err := t.opts.Criterion.Loss(output, wet)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Loss:           recon + kl,
		Reconstruction: recon,
		KL:             kl,
		BandLoss:       bandLoss(dryBands, rows, wetBands),
		Example:        Example{Input: dry, Target: wet, Output: output},
	}

	if phase == Training {
		if err := t.backward(grad, st); err != nil {
			return Result{}, err
		}
		res.GradNormEnc = nn.ClipGradNorm(t.encPars, t.opts.MaxGradNorm)
		res.GradNormDec = nn.ClipGradNorm(t.decPars, t.opts.MaxGradNorm)
		t.opts.Optimizer.Step()
	}
	return res, nil
}

// sample draws z = mu + exp(logvar/2)·ε and returns it with
//
//	KL = -0.5·Σ(1 + logvar - mu² - exp(logvar)) / frames
func (t *Trainer) sample(x *mat.Dense, st *pass) (*mat.Dense, float64) {
	st.mu, st.logvar = t.vae.Encode(x)
	r, c := st.mu.Dims()
	st.frames = c

	st.eps = mat.NewDense(r, c, nil)
	z := mat.NewDense(r, c, nil)
	var sum float64
	for i := range r {
		for j := range c {
			mu, lv := st.mu.At(i, j), st.logvar.At(i, j)
			e := t.noise.Rand()
			st.eps.Set(i, j, e)
			z.Set(i, j, mu+math.Exp(0.5*lv)*e)
			sum += 1 + lv - mu*mu - math.Exp(lv)
		}
	}
	return z, -0.5 * sum / float64(c)
}

func (t *Trainer) backward(gradOutput []float64, st *pass) error {
	t.opts.Optimizer.ZeroGrad()

	// Output = pred + dry, and pred is a crop of the synthesised signal.
	gradSynth := make([]float64, st.predLen)
	copy(gradSynth[st.left:st.left+st.n], gradOutput)
	gradBands, err := t.opts.Bank.InverseAdjoint(gradSynth)
	if err != nil {
		return err
	}
	g, err := nn.FromRows(gradBands)
	if err != nil {
		return err
	}

	gradZ, gradSkips := t.opts.Decoder.Backward(g)

	blocks := t.opts.Encoder.Blocks()
	last := len(blocks) - 1

	// gradOut is the gradient with respect to the output of block i.
	// In variational mode the deepest output only reaches the loss through
	// the Gaussian heads, which BackwardEncode covers down to the input.
	var gradOut *mat.Dense
	start := last
	if t.opts.Mode == Variational {
		gradMu, gradLogvar := t.sampleGrad(gradZ, st)
		t.vae.BackwardEncode(gradMu, gradLogvar)
		start = last - 1
	} else {
		gradOut = gradZ
	}

	// Block i feeds skip last-1-i; the final skip is the dry input.
	for i := start; i >= 0; i-- {
		if i < last {
			skip := gradSkips[last-1-i]
			if gradOut == nil {
				gradOut = skip
			} else {
				gradOut.Add(gradOut, skip)
			}
		}
		gradOut = blocks[i].Backward(gradOut)
	}
	return nil
}

// sampleGrad maps the latent gradient through the reparameterisation and
// adds the KL gradient.
func (t *Trainer) sampleGrad(gradZ *mat.Dense, st *pass) (gradMu, gradLogvar *mat.Dense) {
	r, c := st.mu.Dims()
	inv := 1 / float64(st.frames)
	gradMu = mat.NewDense(r, c, nil)
	gradLogvar = mat.NewDense(r, c, nil)
	for i := range r {
		for j := range c {
			gz := gradZ.At(i, j)
			mu, lv := st.mu.At(i, j), st.logvar.At(i, j)
			gradMu.Set(i, j, gz+mu*inv)
			gradLogvar.Set(i, j, gz*0.5*math.Exp(0.5*lv)*st.eps.At(i, j)+0.5*(math.Exp(lv)-1)*inv)
		}
	}
	return gradMu, gradLogvar
}

// bandLoss is the mean squared error between dry + predicted bands and the
// wet bands.
func bandLoss(dry, pred, wet [][]float64) float64 {
	var sum float64
	var n int
	for k := range wet {
		for j := range wet[k] {
			d := dry[k][j] + pred[k][j] - wet[k][j]
			sum += d * d
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
