// Package render produces the wet half of every training pair by running
// dry files through the effect processor.
package render

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/tphakala/go-reverb-emulator/internal/audioio"
	"github.com/tphakala/go-reverb-emulator/internal/effect"
	"github.com/tphakala/go-reverb-emulator/internal/logging"
)

const dirMode = 0o755

// Renderer applies a processor file by file.
type Renderer struct {
	proc      effect.Processor
	blockSize int
	bitDepth  int
	log       logrus.FieldLogger
}

// New returns a renderer processing blockSize frames per call. A nil logger
// discards output.
func New(proc effect.Processor, blockSize, bitDepth int, log logrus.FieldLogger) (*Renderer, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("%w: %d", effect.ErrInvalidBlockSize, blockSize)
	}
	return &Renderer{proc: proc, blockSize: blockSize, bitDepth: bitDepth, log: logging.OrDiscard(log)}, nil
}

// RenderFile processes src as one continuous stream, starting from a reset
// processor, and writes the result to dst at the source sample rate.
func (r *Renderer) RenderFile(src, dst string) error {
	dry, err := audioio.Read(src)
	if err != nil {
		return err
	}

	wet, err := effect.ProcessInBlocks(r.proc, dry, dry.SampleRate, r.blockSize)
	if err != nil {
		return fmt.Errorf("%s: %w", src, err)
	}
	if err := audioio.Write(dst, wet, r.bitDepth); err != nil {
		return err
	}

	r.log.WithFields(logrus.Fields{"file": src, "samples": wet.Len(), "channels": wet.NumChannels()}).
		Debug("rendered wet file")
	return nil
}

// RenderDir renders every .wav file under dryDir into wetDir under the same
// file name and returns the written paths in walk order.
func (r *Renderer) RenderDir(dryDir, wetDir string) ([]string, error) {
	if err := os.MkdirAll(wetDir, dirMode); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	sources, err := audioio.List(dryDir, audioio.ExtWAV)
	if err != nil {
		return nil, err
	}

	written := make([]string, 0, len(sources))
	for _, src := range sources {
		dst := filepath.Join(wetDir, filepath.Base(src))
		if err := r.RenderFile(src, dst); err != nil {
			return written, err
		}
		written = append(written, dst)
	}

	r.log.WithField("files", len(written)).Info("wet rendering complete")
	return written, nil
}
