package effect

import (
	"fmt"

	"github.com/tphakala/go-reverb-emulator/internal/audiobuf"
	"github.com/tphakala/go-reverb-emulator/internal/audioio"
)

// ConvolutionReverb renders a measured space from an impulse response.
// Channel c of the input is filtered with response channel c modulo the
// number of response channels, so a mono response serves any layout.
type ConvolutionReverb struct {
	response   audiobuf.Buffer
	convolvers []*convolver
}

// NewConvolutionReverb wraps an impulse response.
func NewConvolutionReverb(response audiobuf.Buffer) (*ConvolutionReverb, error) {
	if response.NumChannels() == 0 || response.Len() == 0 {
		return nil, ErrEmptyResponse
	}
	return &ConvolutionReverb{response: response.Clone()}, nil
}

// LoadConvolutionReverb reads an impulse response from a .wav or .aif file.
func LoadConvolutionReverb(path string) (*ConvolutionReverb, error) {
	response, err := audioio.Read(path)
	if err != nil {
		return nil, fmt.Errorf("load impulse response: %w", err)
	}
	r, err := NewConvolutionReverb(response)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// ResponseLength returns the impulse response length in samples.
func (r *ConvolutionReverb) ResponseLength() int {
	return r.response.Len()
}

// Prepare implements Reverb. The processing rate must equal the rate the
// response was recorded at.
func (r *ConvolutionReverb) Prepare(numChannels, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSampleRate, sampleRate)
	}
	if sampleRate != r.response.SampleRate {
		return fmt.Errorf("%w: impulse response is %d Hz, stream is %d Hz",
			audiobuf.ErrSampleRateMismatch, r.response.SampleRate, sampleRate)
	}

	if len(r.convolvers) != numChannels {
		r.convolvers = make([]*convolver, numChannels)
		for c := range r.convolvers {
			r.convolvers[c] = newConvolver(r.response.Channels[c%r.response.NumChannels()])
		}
		return nil
	}
	for _, conv := range r.convolvers {
		conv.reset()
	}
	return nil
}

// Render implements Reverb.
func (r *ConvolutionReverb) Render(channel int, dst, src []float64) {
	r.convolvers[channel].process(dst, src)
}
