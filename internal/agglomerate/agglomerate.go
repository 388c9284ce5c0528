// Package agglomerate recombines the short trailing segments of many
// source files into full-length training chunks.
package agglomerate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/tphakala/go-reverb-emulator/internal/audiobuf"
	"github.com/tphakala/go-reverb-emulator/internal/audioio"
	"github.com/tphakala/go-reverb-emulator/internal/logging"
)

const dirMode = 0o755

// ErrInvalidChunkSize indicates a non-positive target length.
var ErrInvalidChunkSize = errors.New("invalid chunk size")

// Accumulator collects fragments until they cover a chunk.
type Accumulator struct {
	target   int
	pending  []audiobuf.Buffer
	total    int
	channels int
}

// NewAccumulator returns an accumulator emitting chunks of target frames.
func NewAccumulator(target int) (*Accumulator, error) {
	if target <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, target)
	}
	return &Accumulator{target: target}, nil
}

// Add appends a fragment. Once the pending frames reach the target, the
// fragments are agglomerated to exactly target frames and returned with
// ok set; the accumulator then starts empty again, so any excess in the
// last fragment is discarded. Fragments must share a channel count.
func (a *Accumulator) Add(fragment audiobuf.Buffer) (chunk audiobuf.Buffer, ok bool, err error) {
	if len(a.pending) > 0 && fragment.NumChannels() != a.channels {
		return audiobuf.Buffer{}, false, fmt.Errorf("%w: fragment has %d channels, pending chunk has %d",
			audiobuf.ErrChannelMismatch, fragment.NumChannels(), a.channels)
	}

	a.pending = append(a.pending, fragment)
	a.channels = fragment.NumChannels()
	a.total += fragment.Len()
	if a.total < a.target {
		return audiobuf.Buffer{}, false, nil
	}

	chunk, err = audiobuf.Agglomerate(a.pending, a.target)
	a.pending, a.total = nil, 0
	if err != nil {
		return audiobuf.Buffer{}, false, err
	}
	return chunk, true, nil
}

// Pending returns the frames held back from the next chunk.
func (a *Accumulator) Pending() int {
	return a.total
}

// Agglomerator writes agglomerated chunks to the dry corpus.
type Agglomerator struct {
	chunkSize  int
	sampleRate int
	bitDepth   int
	log        logrus.FieldLogger
}

// New returns an agglomerator writing chunkSize-frame files at sampleRate.
// A nil logger discards output.
func New(chunkSize, sampleRate, bitDepth int, log logrus.FieldLogger) (*Agglomerator, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, chunkSize)
	}
	return &Agglomerator{
		chunkSize:  chunkSize,
		sampleRate: sampleRate,
		bitDepth:   bitDepth,
		log:        logging.OrDiscard(log),
	}, nil
}

// Run agglomerates every .wav file under shortDir in walk order and writes
// agglomerated_<n>.wav files into dryDir. A remainder shorter than the
// chunk size at the end is dropped.
func (g *Agglomerator) Run(shortDir, dryDir string) ([]string, error) {
	if err := os.MkdirAll(dryDir, dirMode); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	fragments, err := audioio.List(shortDir, audioio.ExtWAV)
	if err != nil {
		return nil, err
	}

	acc, err := NewAccumulator(g.chunkSize)
	if err != nil {
		return nil, err
	}

	var written []string
	for _, path := range fragments {
		fragment, err := audioio.Read(path)
		if err != nil {
			return written, err
		}
		fragment.SampleRate = g.sampleRate

		chunk, ok, err := acc.Add(fragment)
		if err != nil {
			return written, fmt.Errorf("%s: %w", path, err)
		}
		if !ok {
			continue
		}

		out := filepath.Join(dryDir, Name(len(written)))
		if err := audioio.Write(out, chunk, g.bitDepth); err != nil {
			return written, err
		}
		written = append(written, out)
	}

	g.log.WithFields(logrus.Fields{
		"fragments":    len(fragments),
		"agglomerated": len(written),
		"dropped":      acc.Pending(),
	}).Info("agglomeration complete")
	return written, nil
}

// Name returns the file name of agglomerated chunk n.
func Name(n int) string {
	return fmt.Sprintf("agglomerated_%d%s", n, audioio.ExtWAV)
}
