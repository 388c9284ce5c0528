// Package effect provides the reverb processors that render wet training
// audio. A Processor is stateful: consecutive calls with reset=false
// continue the same stream, carrying the reverb tail across block
// boundaries.
package effect

import (
	"errors"
	"fmt"

	"github.com/tphakala/go-reverb-emulator/internal/audiobuf"
)

var (
	// ErrInvalidSampleRate indicates a non-positive sample rate.
	ErrInvalidSampleRate = errors.New("invalid sample rate")

	// ErrInvalidBlockSize indicates a non-positive processing block size.
	ErrInvalidBlockSize = errors.New("invalid block size")

	// ErrEmptyResponse indicates an impulse response without samples.
	ErrEmptyResponse = errors.New("empty impulse response")

	// ErrStreamMismatch indicates a continued stream changed its channel
	// count or sample rate without a reset.
	ErrStreamMismatch = errors.New("stream layout changed without reset")
)

// Processor is an audio effect with a dry/wet blend.
type Processor interface {
	// Configure sets the dry/wet blend in [0, 1]; 1 is fully wet.
	Configure(blendDryWet float64)

	// Process renders buf and returns a buffer of the same length and
	// channel count. reset discards state from previous calls.
	Process(buf audiobuf.Buffer, sampleRate int, reset bool) (audiobuf.Buffer, error)
}

// Reverb is the wet-signal core driven by a Board.
type Reverb interface {
	// Prepare clears all state for a stream of numChannels channels.
	Prepare(numChannels, sampleRate int) error

	// Render writes the wet signal for src into dst (same length).
	Render(channel int, dst, src []float64)
}

// Board hosts a Reverb and mixes its output with the dry signal.
type Board struct {
	reverb     Reverb
	blend      float64
	channels   int
	sampleRate int
	prepared   bool
	wet        []float64
}

// NewBoard returns a fully wet board around reverb.
func NewBoard(reverb Reverb) *Board {
	return &Board{reverb: reverb, blend: FullyWet}
}

// Open builds the board for a plugin path: an impulse response file when
// path is set, otherwise the algorithmic plate.
func Open(path string, plate PlateParams) (*Board, error) {
	if path == "" {
		return NewBoard(NewPlateReverb(plate)), nil
	}
	r, err := LoadConvolutionReverb(path)
	if err != nil {
		return nil, err
	}
	return NewBoard(r), nil
}

// Configure implements Processor.
func (b *Board) Configure(blendDryWet float64) {
	b.blend = clamp(blendDryWet, 0, 1)
}

// Blend returns the current dry/wet blend.
func (b *Board) Blend() float64 {
	return b.blend
}

// Process implements Processor.
func (b *Board) Process(buf audiobuf.Buffer, sampleRate int, reset bool) (audiobuf.Buffer, error) {
	if sampleRate <= 0 {
		return audiobuf.Buffer{}, fmt.Errorf("%w: %d", ErrInvalidSampleRate, sampleRate)
	}

	numChannels := buf.NumChannels()
	if b.prepared && !reset && (numChannels != b.channels || sampleRate != b.sampleRate) {
		return audiobuf.Buffer{}, fmt.Errorf("%w: %d ch @ %d Hz, stream is %d ch @ %d Hz",
			ErrStreamMismatch, numChannels, sampleRate, b.channels, b.sampleRate)
	}
	if reset || !b.prepared {
		if err := b.reverb.Prepare(numChannels, sampleRate); err != nil {
			return audiobuf.Buffer{}, err
		}
		b.channels, b.sampleRate, b.prepared = numChannels, sampleRate, true
	}

	n := buf.Len()
	out := audiobuf.New(numChannels, n, sampleRate)
	if cap(b.wet) < n {
		b.wet = make([]float64, n)
	}
	wet := b.wet[:n]
	dryGain := 1 - b.blend
	for c, src := range buf.Channels {
		b.reverb.Render(c, wet, src)
		dst := out.Channels[c]
		for i := range dst {
			dst[i] = dryGain*src[i] + b.blend*wet[i]
		}
	}
	return out, nil
}

// Bypass passes audio through unchanged.
type Bypass struct{}

// Configure implements Processor.
func (Bypass) Configure(float64) {}

// Process implements Processor.
func (Bypass) Process(buf audiobuf.Buffer, sampleRate int, _ bool) (audiobuf.Buffer, error) {
	if sampleRate <= 0 {
		return audiobuf.Buffer{}, fmt.Errorf("%w: %d", ErrInvalidSampleRate, sampleRate)
	}
	out := buf.Clone()
	out.SampleRate = sampleRate
	return out, nil
}

// ProcessInBlocks runs buf through p in blocks of blockSize frames and
// concatenates the outputs. The first block resets p, later blocks continue
// the stream, so every call starts from a clean state.
func ProcessInBlocks(p Processor, buf audiobuf.Buffer, sampleRate, blockSize int) (audiobuf.Buffer, error) {
	if blockSize <= 0 {
		return audiobuf.Buffer{}, fmt.Errorf("%w: %d", ErrInvalidBlockSize, blockSize)
	}

	n := buf.Len()
	if n == 0 {
		return p.Process(buf, sampleRate, true)
	}

	blocks := make([]audiobuf.Buffer, 0, (n+blockSize-1)/blockSize)
	for start := 0; start < n; start += blockSize {
		out, err := p.Process(buf.Slice(start, start+blockSize), sampleRate, start == 0)
		if err != nil {
			return audiobuf.Buffer{}, fmt.Errorf("block at frame %d: %w", start, err)
		}
		blocks = append(blocks, out)
	}
	return audiobuf.Concat(blocks...)
}
