// Package audioio reads and writes audio files as planar float buffers.
package audioio

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-audio/aiff"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/tphakala/go-reverb-emulator/internal/audiobuf"
)

const (
	// Supported PCM output bit depths
	BitDepth16 = 16
	BitDepth24 = 24
	BitDepth32 = 32

	// DefaultBitDepth is used when a caller passes zero.
	DefaultBitDepth = BitDepth24

	wavFormatPCM        = 1
	wavUnsignedBitDepth = 8
	wavUnsignedOffset   = 128
	outputFileMode      = 0o644
	tempPattern         = ".partial-*"
)

// Recognized input extensions.
const (
	ExtWAV  = ".wav"
	ExtAIF  = ".aif"
	ExtAIFF = ".aiff"
)

var (
	// ErrUnsupportedFormat indicates a file or bit depth that cannot be handled.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrInvalidFile indicates a container that failed header validation.
	ErrInvalidFile = errors.New("invalid audio file")
)

// Read decodes a .wav or .aif/.aiff file into a normalized float buffer.
func Read(path string) (audiobuf.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return audiobuf.Buffer{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var pcm *audio.IntBuffer
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ExtWAV:
		pcm, err = decodeWAV(f)
	case ExtAIF, ExtAIFF:
		pcm, err = decodeAIFF(f)
	default:
		return audiobuf.Buffer{}, fmt.Errorf("%w: extension %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return audiobuf.Buffer{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return fromIntBuffer(pcm)
}

func decodeWAV(r io.ReadSeeker) (*audio.IntBuffer, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		// A well-formed header with an empty data chunk is a valid,
		// zero-length signal.
		if decoder.Err() == nil && decoder.NumChans > 0 && decoder.BitDepth >= wavUnsignedBitDepth {
			return &audio.IntBuffer{
				Format:         &audio.Format{NumChannels: int(decoder.NumChans), SampleRate: int(decoder.SampleRate)},
				SourceBitDepth: int(decoder.BitDepth),
			}, nil
		}
		return nil, ErrInvalidFile
	}

	pcm, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, err
	}

	// 8-bit WAV samples are unsigned.
	if pcm.SourceBitDepth == wavUnsignedBitDepth {
		for i := range pcm.Data {
			pcm.Data[i] -= wavUnsignedOffset
		}
	}
	return pcm, nil
}

func decodeAIFF(r io.ReadSeeker) (*audio.IntBuffer, error) {
	decoder := aiff.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, ErrInvalidFile
	}
	return decoder.FullPCMBuffer()
}

// fromIntBuffer deinterleaves PCM integers into planar floats in [-1, 1].
func fromIntBuffer(pcm *audio.IntBuffer) (audiobuf.Buffer, error) {
	if pcm == nil || pcm.Format == nil || pcm.Format.NumChannels < 1 {
		return audiobuf.Buffer{}, ErrInvalidFile
	}

	maxVal := float64(audio.IntMaxSignedValue(pcm.SourceBitDepth))
	if maxVal == 0 {
		return audiobuf.Buffer{}, fmt.Errorf("%w: %d-bit samples", ErrUnsupportedFormat, pcm.SourceBitDepth)
	}

	// Smallest representable negative value maps to -1.
	scale := 1.0 / (maxVal + 1)

	numChannels := pcm.Format.NumChannels
	numFrames := len(pcm.Data) / numChannels
	buf := audiobuf.New(numChannels, numFrames, pcm.Format.SampleRate)

	for i := range numFrames {
		base := i * numChannels
		for c := range numChannels {
			buf.Channels[c][i] = float64(pcm.Data[base+c]) * scale
		}
	}
	return buf, nil
}

// Write encodes buf as PCM WAV at path. The data goes to a temporary file
// in the destination directory that is renamed over path only after the
// encoder has been closed, so a failed write never leaves a partial file.
func Write(path string, buf audiobuf.Buffer, bitDepth int) (err error) {
	if bitDepth == 0 {
		bitDepth = DefaultBitDepth
	}
	if bitDepth != BitDepth16 && bitDepth != BitDepth24 && bitDepth != BitDepth32 {
		return fmt.Errorf("%w: %d-bit output", ErrUnsupportedFormat, bitDepth)
	}
	if buf.NumChannels() < 1 {
		return fmt.Errorf("%w: buffer has no channels", ErrInvalidFile)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+tempPattern)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err = tmp.Chmod(outputFileMode); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}

	encoder := wav.NewEncoder(tmp, buf.SampleRate, bitDepth, buf.NumChannels(), wavFormatPCM)
	if err = encoder.Write(toIntBuffer(buf, bitDepth)); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err = encoder.Close(); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

// toIntBuffer interleaves planar floats into clipped PCM integers.
func toIntBuffer(buf audiobuf.Buffer, bitDepth int) *audio.IntBuffer {
	maxVal := float64(audio.IntMaxSignedValue(bitDepth))
	numChannels := buf.NumChannels()
	numFrames := buf.Len()

	data := make([]int, numFrames*numChannels)
	for i := range numFrames {
		base := i * numChannels
		for c := range numChannels {
			v := buf.Channels[c][i] * (maxVal + 1)
			data[base+c] = int(min(max(v, -maxVal-1), maxVal))
		}
	}

	return &audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{NumChannels: numChannels, SampleRate: buf.SampleRate},
		SourceBitDepth: bitDepth,
	}
}

// List returns the files under dir whose extension matches one of exts
// (case-insensitive), in lexical walk order. Temporary files left by an
// interrupted Write are skipped.
func List(dir string, exts ...string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.Contains(d.Name(), ".partial-") {
			return nil
		}
		if slices.Contains(exts, strings.ToLower(filepath.Ext(path))) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	return files, nil
}

// BaseName returns the file name without directory and extension.
func BaseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
