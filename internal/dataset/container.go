package dataset

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/tphakala/go-reverb-emulator/internal/audiobuf"
	"github.com/tphakala/go-reverb-emulator/internal/audioio"
	"github.com/tphakala/go-reverb-emulator/internal/logging"
)

const (
	bytesPerSample = 4
	fileMode       = 0o644
	dirMode        = 0o755
	tempPattern    = ".partial-*"
	writerBufSize  = 256 * 1024
)

// Materializer persists dry/wet file lists, paired by position.
type Materializer interface {
	Save(dry, wet []string, dest string) error
}

// FileMaterializer writes the binary container and its manifest.
type FileMaterializer struct {
	log logrus.FieldLogger
}

// NewFileMaterializer returns a materializer. A nil logger discards output.
func NewFileMaterializer(log logrus.FieldLogger) *FileMaterializer {
	return &FileMaterializer{log: logging.OrDiscard(log)}
}

// Save reads every pair and writes dest and dest+ManifestSuffix. The lists
// must have equal length and matching base names at each position.
func (m *FileMaterializer) Save(dry, wet []string, dest string) error {
	if err := CheckPairs(dry, wet); err != nil {
		return err
	}

	ds := &Dataset{Pairs: make([]Pair, 0, len(dry))}
	for i := range dry {
		d, err := audioio.Read(dry[i])
		if err != nil {
			return err
		}
		w, err := audioio.Read(wet[i])
		if err != nil {
			return err
		}
		ds.Pairs = append(ds.Pairs, Pair{Name: audioio.BaseName(dry[i]), Dry: d, Wet: w})
	}

	if err := os.MkdirAll(filepath.Dir(dest), dirMode); err != nil {
		return fmt.Errorf("create dataset directory: %w", err)
	}
	if err := Write(dest, ds); err != nil {
		return err
	}
	if err := WriteManifest(dest+ManifestSuffix, NewManifest(dest, dry, wet, ds)); err != nil {
		return err
	}

	m.log.WithFields(logrus.Fields{"pairs": ds.Len(), "path": dest}).Info("dataset saved")
	return nil
}

// CheckPairs verifies that dry[i] and wet[i] share a base name.
func CheckPairs(dry, wet []string) error {
	if len(dry) != len(wet) {
		return fmt.Errorf("%w: %d dry files, %d wet files", ErrPairMismatch, len(dry), len(wet))
	}
	for i := range dry {
		if audioio.BaseName(dry[i]) != audioio.BaseName(wet[i]) {
			return fmt.Errorf("%w: position %d pairs %s with %s", ErrPairMismatch, i, dry[i], wet[i])
		}
	}
	return nil
}

// Write stores ds at path through a temporary file renamed into place.
func Write(path string, ds *Dataset) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+tempPattern)
	if err != nil {
		return fmt.Errorf("failed to create dataset: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriterSize(tmp, writerBufSize)
	if err = encode(w, ds); err != nil {
		return fmt.Errorf("failed to encode dataset: %w", err)
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("failed to flush dataset: %w", err)
	}
	if err = tmp.Chmod(fileMode); err != nil {
		return fmt.Errorf("failed to set dataset mode: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close dataset: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to finalize dataset: %w", err)
	}
	return nil
}

func encode(w io.Writer, ds *Dataset) error {
	if !fitsUint32(len(ds.Pairs)) {
		return fmt.Errorf("%w: %d pairs", ErrUnencodable, len(ds.Pairs))
	}
	for _, p := range ds.Pairs {
		if err := checkEncodable(p); err != nil {
			return err
		}
	}

	le := binary.LittleEndian
	if _, err := io.WriteString(w, Magic); err != nil {
		return err
	}
	if err := binary.Write(w, le, CurrentVersion); err != nil {
		return err
	}
	if err := binary.Write(w, le, uint32(len(ds.Pairs))); err != nil {
		return err
	}

	for _, p := range ds.Pairs {
		header := []any{
			uint16(len(p.Name)), []byte(p.Name), uint32(p.Dry.SampleRate),
			uint16(p.Dry.NumChannels()), uint32(p.Dry.Len()),
			uint16(p.Wet.NumChannels()), uint32(p.Wet.Len()),
		}
		for _, v := range header {
			if err := binary.Write(w, le, v); err != nil {
				return err
			}
		}
		if err := writeSamples(w, p.Dry); err != nil {
			return err
		}
		if err := writeSamples(w, p.Wet); err != nil {
			return err
		}
	}
	return nil
}

// checkEncodable verifies that p fits the u16/u32 header fields and that its
// channels are equally long.
func checkEncodable(p Pair) error {
	if len(p.Name) > math.MaxUint16 {
		return fmt.Errorf("%w: name of %d bytes", ErrUnencodable, len(p.Name))
	}
	if !fitsUint32(p.Dry.SampleRate) {
		return fmt.Errorf("%w: %s sample rate %d", ErrUnencodable, p.Name, p.Dry.SampleRate)
	}
	for _, side := range []struct {
		label string
		buf   audiobuf.Buffer
	}{{"dry", p.Dry}, {"wet", p.Wet}} {
		if side.buf.NumChannels() > math.MaxUint16 {
			return fmt.Errorf("%w: %s %s has %d channels", ErrUnencodable, p.Name, side.label, side.buf.NumChannels())
		}
		frames := side.buf.Len()
		if !fitsUint32(frames) {
			return fmt.Errorf("%w: %s %s has %d frames", ErrUnencodable, p.Name, side.label, frames)
		}
		for c, ch := range side.buf.Channels {
			if len(ch) != frames {
				return fmt.Errorf("%w: %s %s channel %d has %d frames, channel 0 has %d",
					ErrUnencodable, p.Name, side.label, c, len(ch), frames)
			}
		}
	}
	return nil
}

func fitsUint32(n int) bool {
	return n >= 0 && uint64(n) <= math.MaxUint32
}

func writeSamples(w io.Writer, buf audiobuf.Buffer) error {
	raw := make([]byte, buf.Len()*bytesPerSample)
	for _, ch := range buf.Channels {
		for i, v := range ch {
			binary.LittleEndian.PutUint32(raw[i*bytesPerSample:], math.Float32bits(float32(v)))
		}
		if _, err := w.Write(raw); err != nil {
			return err
		}
	}
	return nil
}

// Load reads a container written by Write.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer func() { _ = f.Close() }()

	ds, err := decode(bufio.NewReaderSize(f, writerBufSize))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

func decode(r io.Reader) (*Dataset, error) {
	le := binary.LittleEndian
	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, corrupted(err)
	}
	if string(magic) != Magic {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMagic, magic)
	}

	var version uint16
	if err := binary.Read(r, le, &version); err != nil {
		return nil, corrupted(err)
	}
	if version != CurrentVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	var count uint32
	if err := binary.Read(r, le, &count); err != nil {
		return nil, corrupted(err)
	}

	ds := &Dataset{}
	for i := range count {
		p, err := decodePair(r)
		if err != nil {
			return nil, fmt.Errorf("pair %d: %w", i, err)
		}
		ds.Pairs = append(ds.Pairs, p)
	}
	return ds, nil
}

func decodePair(r io.Reader) (Pair, error) {
	le := binary.LittleEndian
	var nameLen uint16
	if err := binary.Read(r, le, &nameLen); err != nil {
		return Pair{}, corrupted(err)
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return Pair{}, corrupted(err)
	}

	var header struct {
		SampleRate  uint32
		DryChannels uint16
		DryFrames   uint32
		WetChannels uint16
		WetFrames   uint32
	}
	if err := binary.Read(r, le, &header); err != nil {
		return Pair{}, corrupted(err)
	}

	rate := int(header.SampleRate)
	dry, err := readSamples(r, int(header.DryChannels), int(header.DryFrames), rate)
	if err != nil {
		return Pair{}, err
	}
	wet, err := readSamples(r, int(header.WetChannels), int(header.WetFrames), rate)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Name: string(name), Dry: dry, Wet: wet}, nil
}

func readSamples(r io.Reader, channels, frames, sampleRate int) (audiobuf.Buffer, error) {
	buf := audiobuf.New(channels, frames, sampleRate)
	raw := make([]byte, frames*bytesPerSample)
	for _, ch := range buf.Channels {
		if _, err := io.ReadFull(r, raw); err != nil {
			return audiobuf.Buffer{}, corrupted(err)
		}
		for i := range ch {
			ch[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*bytesPerSample:])))
		}
	}
	return buf, nil
}

func corrupted(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: unexpected end of data", ErrCorrupted)
	}
	return err
}
