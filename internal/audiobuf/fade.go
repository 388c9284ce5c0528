package audiobuf

import "fmt"

// FadeDirection selects the ramp applied by ApplyFade.
type FadeDirection int

const (
	// FadeIn ramps 0→1 over the first frames.
	FadeIn FadeDirection = iota
	// FadeOut ramps 1→0 over the last frames.
	FadeOut
)

// String implements fmt.Stringer.
func (d FadeDirection) String() string {
	if d == FadeOut {
		return "out"
	}
	return "in"
}

// ApplyFade multiplies a linear ramp over the first (FadeIn) or last
// (FadeOut) fadeLength frames and returns a new buffer.
//
// A fade-in longer than the buffer is clamped to the buffer length. A
// fade-out longer than the buffer is an error wrapping ErrInvalidFadeLength.
func ApplyFade(b Buffer, fadeLength int, direction FadeDirection) (Buffer, error) {
	n := b.Len()
	if fadeLength > n {
		if direction == FadeOut {
			return Buffer{}, fmt.Errorf("%w: fade-out of %d frames on %d frames",
				ErrInvalidFadeLength, fadeLength, n)
		}
		fadeLength = n
	}

	out := b.Clone()
	if fadeLength <= 0 {
		return out, nil
	}

	ramp := linspace(0, 1, fadeLength)
	offset := 0
	if direction == FadeOut {
		ramp = linspace(1, 0, fadeLength)
		offset = n - fadeLength
	}

	for _, ch := range out.Channels {
		for i, g := range ramp {
			ch[offset+i] *= g
		}
	}
	return out, nil
}

// linspace returns n evenly spaced values from start to stop inclusive.
func linspace(start, stop float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	out[n-1] = stop
	return out
}
