// Package audiobuf holds planar floating-point audio buffers and the
// padding, fade and concatenation utilities used to build training chunks.
package audiobuf

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFadeLength indicates a fade-out longer than the signal.
	ErrInvalidFadeLength = errors.New("fade length exceeds signal length")

	// ErrChannelMismatch indicates buffers with differing channel counts
	// were combined.
	ErrChannelMismatch = errors.New("channel count mismatch")

	// ErrSampleRateMismatch indicates buffers with differing sample rates
	// were combined.
	ErrSampleRateMismatch = errors.New("sample rate mismatch")
)

// Buffer is planar audio: Channels[c][n] is sample n of channel c.
// All channels have the same length.
type Buffer struct {
	Channels   [][]float64
	SampleRate int
}

// New allocates a silent buffer.
func New(numChannels, numFrames, sampleRate int) Buffer {
	channels := make([][]float64, numChannels)
	for c := range channels {
		channels[c] = make([]float64, numFrames)
	}
	return Buffer{Channels: channels, SampleRate: sampleRate}
}

// FromMono wraps a single channel.
func FromMono(samples []float64, sampleRate int) Buffer {
	return Buffer{Channels: [][]float64{samples}, SampleRate: sampleRate}
}

// Len returns the number of frames (samples per channel).
func (b Buffer) Len() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// NumChannels returns the channel count.
func (b Buffer) NumChannels() int {
	return len(b.Channels)
}

// Clone returns a deep copy.
func (b Buffer) Clone() Buffer {
	out := Buffer{Channels: make([][]float64, len(b.Channels)), SampleRate: b.SampleRate}
	for c, ch := range b.Channels {
		out.Channels[c] = append([]float64(nil), ch...)
	}
	return out
}

// Slice returns frames [start, end) as a copy. Bounds are clamped to the
// buffer, so slicing past the end yields a shorter (possibly empty) buffer.
func (b Buffer) Slice(start, end int) Buffer {
	n := b.Len()
	start = min(max(start, 0), n)
	end = min(max(end, start), n)

	out := Buffer{Channels: make([][]float64, len(b.Channels)), SampleRate: b.SampleRate}
	for c, ch := range b.Channels {
		out.Channels[c] = append(make([]float64, 0, end-start), ch[start:end]...)
	}
	return out
}

// Flatten returns all channels concatenated channel after channel, the
// single-row view of a (channels, samples) array.
func (b Buffer) Flatten() []float64 {
	out := make([]float64, 0, b.NumChannels()*b.Len())
	for _, ch := range b.Channels {
		out = append(out, ch...)
	}
	return out
}

// Concat joins buffers along the sample axis. All inputs must share the
// channel count of the first one.
func Concat(buffers ...Buffer) (Buffer, error) {
	if len(buffers) == 0 {
		return Buffer{}, nil
	}

	numChannels := buffers[0].NumChannels()
	sampleRate := buffers[0].SampleRate
	total := 0
	for i, buf := range buffers {
		if buf.NumChannels() != numChannels {
			return Buffer{}, fmt.Errorf("%w: buffer %d has %d channels, want %d",
				ErrChannelMismatch, i, buf.NumChannels(), numChannels)
		}
		if buf.SampleRate != sampleRate {
			return Buffer{}, fmt.Errorf("%w: buffer %d is %d Hz, want %d Hz",
				ErrSampleRateMismatch, i, buf.SampleRate, sampleRate)
		}
		total += buf.Len()
	}

	out := Buffer{Channels: make([][]float64, numChannels), SampleRate: sampleRate}
	for c := range numChannels {
		joined := make([]float64, 0, total)
		for _, buf := range buffers {
			joined = append(joined, buf.Channels[c]...)
		}
		out.Channels[c] = joined
	}
	return out, nil
}
