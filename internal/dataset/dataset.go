// Package dataset persists paired dry/wet audio for training.
//
// A dataset is a binary container holding every pair as float32 samples
// and a YAML manifest next to it describing the pairs. The container layout
// (all integers little-endian):
//
//	magic "RVDS" | version u16 | pair count u32
//	per pair:
//	  name length u16 | name bytes | sample rate u32
//	  dry channels u16 | dry frames u32 | wet channels u16 | wet frames u32
//	  dry samples f32 (channel after channel) | wet samples f32
package dataset

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/tphakala/go-reverb-emulator/internal/audiobuf"
)

// Format constants.
const (
	Magic          = "RVDS"
	CurrentVersion = uint16(1)

	// ManifestSuffix is appended to the container path for the manifest.
	ManifestSuffix = ".yaml"
)

var (
	// ErrPairMismatch indicates dry and wet lists that do not pair up.
	ErrPairMismatch = errors.New("dry/wet pair mismatch")

	// ErrInvalidMagic indicates a file that is not a dataset container.
	ErrInvalidMagic = errors.New("invalid dataset magic")

	// ErrUnsupportedVersion indicates a container from a newer format.
	ErrUnsupportedVersion = errors.New("unsupported dataset version")

	// ErrCorrupted indicates a truncated or inconsistent container.
	ErrCorrupted = errors.New("corrupted dataset")

	// ErrUnencodable indicates a pair whose name, layout or length does not
	// fit the container header fields.
	ErrUnencodable = errors.New("pair cannot be encoded")

	// ErrInvalidSplit indicates a validation fraction outside [0, 1).
	ErrInvalidSplit = errors.New("invalid validation split")

	// ErrInvalidBatchSize indicates a non-positive batch size.
	ErrInvalidBatchSize = errors.New("invalid batch size")
)

// Pair is one training example.
type Pair struct {
	Name string
	Dry  audiobuf.Buffer
	Wet  audiobuf.Buffer
}

// Dataset is an ordered set of pairs.
type Dataset struct {
	Pairs []Pair
}

// Len returns the number of pairs.
func (d *Dataset) Len() int {
	return len(d.Pairs)
}

// Split partitions the pairs into training and validation sets. The pairs
// are shuffled with rng first when it is non-nil. At least one pair stays
// in the training set when valFraction > 0 and there are two or more pairs.
func (d *Dataset) Split(valFraction float64, rng *rand.Rand) (train, val *Dataset, err error) {
	if valFraction < 0 || valFraction >= 1 {
		return nil, nil, fmt.Errorf("%w: %g", ErrInvalidSplit, valFraction)
	}

	pairs := append([]Pair(nil), d.Pairs...)
	if rng != nil {
		rng.Shuffle(len(pairs), func(i, j int) { pairs[i], pairs[j] = pairs[j], pairs[i] })
	}

	numVal := int(valFraction * float64(len(pairs)))
	if valFraction > 0 && numVal == 0 && len(pairs) > 1 {
		numVal = 1
	}
	cut := len(pairs) - numVal
	return &Dataset{Pairs: pairs[:cut]}, &Dataset{Pairs: pairs[cut:]}, nil
}

// Batch groups consecutive pairs.
type Batch struct {
	Pairs []Pair
}

// Batches groups the pairs into batches of up to batchSize, shuffled with
// rng when it is non-nil. The last batch may be smaller.
func (d *Dataset) Batches(batchSize int, rng *rand.Rand) ([]Batch, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBatchSize, batchSize)
	}

	order := make([]int, len(d.Pairs))
	for i := range order {
		order[i] = i
	}
	if rng != nil {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	batches := make([]Batch, 0, (len(order)+batchSize-1)/batchSize)
	for start := 0; start < len(order); start += batchSize {
		end := min(start+batchSize, len(order))
		batch := Batch{Pairs: make([]Pair, 0, end-start)}
		for _, idx := range order[start:end] {
			batch.Pairs = append(batch.Pairs, d.Pairs[idx])
		}
		batches = append(batches, batch)
	}
	return batches, nil
}
