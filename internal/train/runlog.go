package train

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/go-reverb-emulator/internal/audiobuf"
	"github.com/tphakala/go-reverb-emulator/internal/audioio"
	"github.com/tphakala/go-reverb-emulator/internal/logging"
)

const (
	dirMode  = 0o755
	fileMode = 0o644
)

// RunLog is a Reporter writing under <logDir>/<run id>/epoch_<n>/: one
// YAML file per phase and input/target/output WAV files.
type RunLog struct {
	id       string
	dir      string
	bitDepth int
	log      logrus.FieldLogger
}

type epochRecord struct {
	Epoch          int     `yaml:"epoch"`
	Phase          string  `yaml:"phase"`
	Steps          int     `yaml:"steps"`
	Loss           float64 `yaml:"loss"`
	Reconstruction float64 `yaml:"criterion"`
	KL             float64 `yaml:"kl"`
	BandLoss       float64 `yaml:"band_loss"`
}

// NewRunLog creates a fresh run directory under logDir.
func NewRunLog(logDir string, bitDepth int, log logrus.FieldLogger) (*RunLog, error) {
	id := uuid.NewString()
	dir := filepath.Join(logDir, id)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	r := &RunLog{id: id, dir: dir, bitDepth: bitDepth, log: logging.OrDiscard(log).WithField("run", id)}
	r.log.WithField("dir", dir).Info("run log created")
	return r, nil
}

// ID returns the run identifier.
func (r *RunLog) ID() string { return r.id }

// Dir returns the run directory.
func (r *RunLog) Dir() string { return r.dir }

// EpochDir returns the directory of an epoch.
func (r *RunLog) EpochDir(epoch int) string {
	return filepath.Join(r.dir, fmt.Sprintf("epoch_%d", epoch))
}

// ReportEpoch implements Reporter.
func (r *RunLog) ReportEpoch(stats EpochStats) error {
	dir := r.EpochDir(stats.Epoch)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("failed to create epoch directory: %w", err)
	}
	data, err := yaml.Marshal(epochRecord{
		Epoch:          stats.Epoch,
		Phase:          stats.Phase.String(),
		Steps:          stats.Steps,
		Loss:           stats.Loss,
		Reconstruction: stats.Reconstruction,
		KL:             stats.KL,
		BandLoss:       stats.BandLoss,
	})
	if err != nil {
		return fmt.Errorf("failed to encode epoch stats: %w", err)
	}
	path := filepath.Join(dir, stats.Phase.String()+".yaml")
	if err := os.WriteFile(path, data, fileMode); err != nil {
		return fmt.Errorf("failed to write epoch stats: %w", err)
	}

	phase := stats.Phase.String()
	r.log.WithFields(logrus.Fields{
		"epoch":              stats.Epoch,
		phase + "/loss":      stats.Loss,
		phase + "/criterion": stats.Reconstruction,
		phase + "/kl":        stats.KL,
	}).Info("scalars")
	return nil
}

// ReportExample implements Reporter.
func (r *RunLog) ReportExample(epoch int, ex Example, sampleRate int) error {
	dir := r.EpochDir(epoch)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("failed to create epoch directory: %w", err)
	}
	for name, samples := range map[string][]float64{
		"input.wav":  ex.Input,
		"target.wav": ex.Target,
		"output.wav": ex.Output,
	} {
		if err := audioio.Write(filepath.Join(dir, name), audiobuf.FromMono(samples, sampleRate), r.bitDepth); err != nil {
			return err
		}
	}
	return nil
}
