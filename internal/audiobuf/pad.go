package audiobuf

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// PadStrategy selects where ZeroPadRandom places the padding.
type PadStrategy int

const (
	// PadEnd appends all padding after the signal.
	PadEnd PadStrategy = iota
	// PadBeginning prepends all padding before the signal.
	PadBeginning
	// PadSplit splits the padding at a uniformly drawn point.
	PadSplit
)

// Draw weights for PadEnd, PadBeginning and PadSplit.
var padStrategyWeights = []float64{0.2, 0.2, 0.6}

// String implements fmt.Stringer.
func (s PadStrategy) String() string {
	switch s {
	case PadEnd:
		return "end"
	case PadBeginning:
		return "beginning"
	case PadSplit:
		return "random"
	default:
		return fmt.Sprintf("PadStrategy(%d)", int(s))
	}
}

// ZeroPad appends padLength zero frames to every channel. It is a no-op for
// padLength <= 0 and never shifts the original samples.
func ZeroPad(b Buffer, padLength int) Buffer {
	return padBoth(b, 0, padLength)
}

// ZeroPadRandom pads with padLength zeros using a randomly drawn strategy:
// 20% at the end, 20% at the beginning, 60% split at a uniform point in
// [0, padLength].
//
// With safe set, PadBeginning also pads the end by padLength, and PadSplit
// pads the end by the full padLength regardless of the drawn start offset,
// so the result always ends with at least padLength zeros.
func ZeroPadRandom(b Buffer, padLength int, safe bool, rng *rand.Rand) Buffer {
	if padLength <= 0 {
		return b
	}

	strategy := DrawPadStrategy(rng)
	start, end := PadAmounts(strategy, padLength, safe, rng)
	return padBoth(b, start, end)
}

// DrawPadStrategy draws a strategy with the configured weights.
func DrawPadStrategy(rng *rand.Rand) PadStrategy {
	return PadStrategy(distuv.NewCategorical(padStrategyWeights, rng).Rand())
}

// PadAmounts returns the leading and trailing pad lengths for strategy.
// rng is only consulted for PadSplit.
func PadAmounts(strategy PadStrategy, padLength int, safe bool, rng *rand.Rand) (start, end int) {
	switch strategy {
	case PadBeginning:
		if safe {
			return padLength, padLength
		}
		return padLength, 0
	case PadSplit:
		start = rng.IntN(padLength + 1)
		end = padLength - start
		if safe {
			end = padLength
		}
		return start, end
	default:
		return 0, padLength
	}
}

func padBoth(b Buffer, start, end int) Buffer {
	start = max(start, 0)
	end = max(end, 0)
	if start == 0 && end == 0 {
		return b
	}

	out := Buffer{Channels: make([][]float64, len(b.Channels)), SampleRate: b.SampleRate}
	for c, ch := range b.Channels {
		padded := make([]float64, start+len(ch)+end)
		copy(padded[start:], ch)
		out.Channels[c] = padded
	}
	return out
}

// Agglomerate concatenates buffers and fits the result to exactly
// targetLength frames: longer results are truncated from the end, shorter
// ones are zero-padded at the end.
func Agglomerate(buffers []Buffer, targetLength int) (Buffer, error) {
	combined, err := Concat(buffers...)
	if err != nil {
		return Buffer{}, err
	}

	switch n := combined.Len(); {
	case n > targetLength:
		return combined.Slice(0, targetLength), nil
	case n < targetLength:
		return ZeroPad(combined, targetLength-n), nil
	default:
		return combined, nil
	}
}
