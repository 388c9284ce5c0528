// Package segment slices source recordings into fixed-length training
// chunks that reserve room for the reverb tail.
//
// Every source file yields floor(len/segmentLength) full segments, each
// faded and randomly zero-padded by the tail length, plus one trailing short
// segment holding the remainder. Short segments are later agglomerated into
// full chunks.
package segment

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/tphakala/go-reverb-emulator/internal/audiobuf"
	"github.com/tphakala/go-reverb-emulator/internal/audioio"
	"github.com/tphakala/go-reverb-emulator/internal/logging"
)

// Fade policy.
const (
	// FadeProbability is the chance a segment is faded at all.
	FadeProbability = 0.9

	// Fade lengths are drawn uniformly from this range, in seconds.
	MinFadeSeconds = 0.05
	MaxFadeSeconds = 0.1
)

const dirMode = 0o755

// ErrInvalidParams indicates a segment length that is not positive.
var ErrInvalidParams = errors.New("invalid segmentation parameters")

// Params controls segmentation.
type Params struct {
	ModelChunkSize int // samples per model input
	MaxTail        int // samples reserved for the reverb tail
	BitDepth       int // output PCM bit depth
}

// SegmentLength returns ModelChunkSize - MaxTail.
func (p Params) SegmentLength() int {
	return p.ModelChunkSize - p.MaxTail
}

// Segmenter cuts audio into segments.
type Segmenter struct {
	params Params
	rng    *rand.Rand
	log    logrus.FieldLogger
}

// New validates params. A nil logger discards output.
func New(params Params, rng *rand.Rand, log logrus.FieldLogger) (*Segmenter, error) {
	if params.MaxTail < 0 || params.SegmentLength() <= 0 {
		return nil, fmt.Errorf("%w: model chunk %d, tail %d",
			ErrInvalidParams, params.ModelChunkSize, params.MaxTail)
	}
	return &Segmenter{params: params, rng: rng, log: logging.OrDiscard(log)}, nil
}

// Split cuts buf into full segments and the trailing short segment, with
// fades and padding applied. The short segment may hold only padding when
// the length is an exact multiple of the segment length.
func (s *Segmenter) Split(buf audiobuf.Buffer) (full []audiobuf.Buffer, short audiobuf.Buffer, err error) {
	segmentLength := s.params.SegmentLength()
	numSegments := buf.Len() / segmentLength

	full = make([]audiobuf.Buffer, 0, numSegments)
	for i := range numSegments {
		seg := buf.Slice(i*segmentLength, (i+1)*segmentLength)
		if s.shouldFade() {
			fadeIn := s.fadeLength(buf.SampleRate)
			fadeOut := s.fadeLength(buf.SampleRate)
			if i > 0 {
				if seg, err = audiobuf.ApplyFade(seg, fadeIn, audiobuf.FadeIn); err != nil {
					return nil, audiobuf.Buffer{}, err
				}
			}
			if seg, err = audiobuf.ApplyFade(seg, fadeOut, audiobuf.FadeOut); err != nil {
				return nil, audiobuf.Buffer{}, fmt.Errorf("segment %d: %w", i, err)
			}
		}
		full = append(full, audiobuf.ZeroPadRandom(seg, s.params.MaxTail, false, s.rng))
	}

	short = buf.Slice(numSegments*segmentLength, buf.Len())
	if s.shouldFade() {
		if short, err = audiobuf.ApplyFade(short, s.fadeLength(buf.SampleRate), audiobuf.FadeIn); err != nil {
			return nil, audiobuf.Buffer{}, err
		}
	}
	short = audiobuf.ZeroPadRandom(short, s.params.MaxTail, true, s.rng)
	return full, short, nil
}

func (s *Segmenter) shouldFade() bool {
	return distuv.Bernoulli{P: FadeProbability, Src: s.rng}.Rand() == 1
}

func (s *Segmenter) fadeLength(sampleRate int) int {
	seconds := distuv.Uniform{Min: MinFadeSeconds, Max: MaxFadeSeconds, Src: s.rng}.Rand()
	return int(seconds * float64(sampleRate))
}

// FileResult lists the files written for one source.
type FileResult struct {
	Source string
	Full   []string
	Short  string
}

// SegmentFile splits the file at path, writing full segments to fullDir and
// the short segment to shortDir as <base>segment_<i>.wav. The short segment
// takes the index after the last full segment. On failure nothing written
// for this source is left behind.
func (s *Segmenter) SegmentFile(path, fullDir, shortDir string) (res FileResult, err error) {
	res.Source = path
	buf, err := audioio.Read(path)
	if err != nil {
		return res, err
	}

	full, short, err := s.Split(buf)
	if err != nil {
		return res, fmt.Errorf("%s: %w", path, err)
	}

	var written []string
	defer func() {
		if err != nil {
			for _, p := range written {
				_ = os.Remove(p)
			}
		}
	}()

	base := audioio.BaseName(path)
	for i, seg := range full {
		out := filepath.Join(fullDir, Name(base, i))
		if err = audioio.Write(out, seg, s.params.BitDepth); err != nil {
			return res, err
		}
		written = append(written, out)
	}

	shortPath := filepath.Join(shortDir, Name(base, len(full)))
	if err = audioio.Write(shortPath, short, s.params.BitDepth); err != nil {
		return res, err
	}

	res.Full = written
	res.Short = shortPath
	s.log.WithFields(logrus.Fields{
		"file":     path,
		"samples":  buf.Len(),
		"segments": len(full),
		"short":    short.Len(),
	}).Debug("segmented file")
	return res, nil
}

// SegmentDir segments every .wav, .aif and .aiff file under inputDir in
// lexical walk order. The first failing file aborts the run.
func (s *Segmenter) SegmentDir(inputDir, fullDir, shortDir string) ([]FileResult, error) {
	for _, dir := range []string{fullDir, shortDir} {
		if err := os.MkdirAll(dir, dirMode); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}

	sources, err := audioio.List(inputDir, audioio.ExtWAV, audioio.ExtAIF, audioio.ExtAIFF)
	if err != nil {
		return nil, err
	}

	results := make([]FileResult, 0, len(sources))
	for _, src := range sources {
		res, err := s.SegmentFile(src, fullDir, shortDir)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}

	s.log.WithFields(logrus.Fields{"files": len(results), "segment_length": s.params.SegmentLength()}).
		Info("segmentation complete")
	return results, nil
}

// Name returns the file name of segment i of base.
func Name(base string, i int) string {
	return fmt.Sprintf("%ssegment_%d%s", base, i, audioio.ExtWAV)
}
