// Package config holds the parameters shared by the preprocessing and
// training commands.
//
// Values are layered: Default, then an optional YAML file, then an optional
// .env file and the process environment (prefix REVERB, e.g.
// REVERB_PREPROCESS_MODEL_CHUNK_SIZE), then Validate.
package config

import (
	"errors"
	"fmt"
	"math/bits"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/go-reverb-emulator/internal/audioio"
	"github.com/tphakala/go-reverb-emulator/internal/effect"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "REVERB"

// ErrInvalidConfig indicates a malformed configuration value.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete parameter set.
type Config struct {
	General    General    `yaml:"general" envconfig:"GENERAL"`
	Preprocess Preprocess `yaml:"preprocess" envconfig:"PREPROCESS"`
	Train      Train      `yaml:"train" envconfig:"TRAIN"`
	Logging    Logging    `yaml:"logging" envconfig:"LOGGING"`
}

// General holds values used by every stage.
type General struct {
	SampleRate  int    `yaml:"sample_rate" envconfig:"SAMPLE_RATE"`
	BitDepth    int    `yaml:"bit_depth" envconfig:"BIT_DEPTH"`
	Seed        uint64 `yaml:"seed" envconfig:"SEED"`
	DatasetPath string `yaml:"dataset_path" envconfig:"DATASET_PATH"`
}

// Preprocess configures tail estimation, segmentation and rendering.
type Preprocess struct {
	// PluginPath is an impulse response file; empty selects the plate.
	PluginPath string             `yaml:"plugin_path" envconfig:"PLUGIN_PATH"`
	Plate      effect.PlateParams `yaml:"plate" envconfig:"PLATE"`

	BoardChunkSize    int     `yaml:"board_chunk_size" envconfig:"BOARD_CHUNK_SIZE"`
	SlidingMeanLength int     `yaml:"sliding_mean_length" envconfig:"SLIDING_MEAN_LENGTH"`
	NoiseDuration     float64 `yaml:"noise_duration" envconfig:"NOISE_DURATION"`
	NumNoises         int     `yaml:"num_noises" envconfig:"NUM_NOISES"`
	// FixedTail skips estimation when positive.
	FixedTail      int `yaml:"fixed_tail" envconfig:"FIXED_TAIL"`
	ModelChunkSize int `yaml:"model_chunk_size" envconfig:"MODEL_CHUNK_SIZE"`

	InputDir       string `yaml:"input_dir" envconfig:"INPUT_DIR"`
	DryOutputDir   string `yaml:"dry_output_dir" envconfig:"DRY_OUTPUT_DIR"`
	ShortOutputDir string `yaml:"short_output_dir" envconfig:"SHORT_OUTPUT_DIR"`
	WetOutputDir   string `yaml:"wet_output_dir" envconfig:"WET_OUTPUT_DIR"`
	KeepShort      bool   `yaml:"keep_short" envconfig:"KEEP_SHORT"`
}

// Train configures the model and its optimisation.
type Train struct {
	Epochs          int     `yaml:"epochs" envconfig:"EPOCHS"`
	BatchSize       int     `yaml:"batch_size" envconfig:"BATCH_SIZE"`
	Bands           int     `yaml:"bands" envconfig:"BANDS"`
	Attenuation     float64 `yaml:"attenuation" envconfig:"ATTENUATION"`
	Hidden          []int   `yaml:"hidden" envconfig:"HIDDEN"`
	Variational     bool    `yaml:"variational" envconfig:"VARIATIONAL"`
	LatentSize      int     `yaml:"latent_size" envconfig:"LATENT_SIZE"`
	Optimizer       string  `yaml:"optimizer" envconfig:"OPTIMIZER"`
	Criterion       string  `yaml:"criterion" envconfig:"CRITERION"`
	LearningRate    float64 `yaml:"learning_rate" envconfig:"LEARNING_RATE"`
	MaxGradNorm     float64 `yaml:"max_grad_norm" envconfig:"MAX_GRAD_NORM"`
	ValidationSplit float64 `yaml:"validation_split" envconfig:"VALIDATION_SPLIT"`
	LogDir          string  `yaml:"log_dir" envconfig:"LOG_DIR"`
}

// Logging configures the logrus logger.
type Logging struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" envconfig:"FORMAT"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		General: General{
			SampleRate:  44100,
			BitDepth:    audioio.BitDepth16,
			Seed:        1,
			DatasetPath: "data/processed/preprocessed_data.rvds",
		},
		Preprocess: Preprocess{
			Plate:             effect.DefaultPlateParams(),
			BoardChunkSize:    8192,
			SlidingMeanLength: 1024,
			NoiseDuration:     5,
			NumNoises:         10,
			ModelChunkSize:    262144,
			InputDir:          "data/raw",
			DryOutputDir:      "data/dry",
			ShortOutputDir:    "data/short",
			WetOutputDir:      "data/wet",
		},
		Train: Train{
			Epochs:          100,
			BatchSize:       8,
			Bands:           16,
			Attenuation:     100,
			Hidden:          []int{64, 32, 16},
			LatentSize:      16,
			Optimizer:       "adam",
			Criterion:       "mse",
			LearningRate:    1e-4,
			MaxGradNorm:     1,
			ValidationSplit: 0.1,
			LogDir:          "runs",
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load layers the YAML file at path (skipped when empty), the .env file at
// envFile (skipped when empty or missing) and the environment over Default,
// and validates the result.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
		}
	}

	if envFile != "" {
		// Variables already set in the environment take precedence.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid value.
func (c Config) Validate() error {
	g, p, t := c.General, c.Preprocess, c.Train
	switch {
	case g.SampleRate <= 0:
		return invalid("general.sample_rate", g.SampleRate)
	case !validBitDepth(g.BitDepth):
		return invalid("general.bit_depth", g.BitDepth)
	case p.BoardChunkSize <= 0:
		return invalid("preprocess.board_chunk_size", p.BoardChunkSize)
	case p.SlidingMeanLength <= 0:
		return invalid("preprocess.sliding_mean_length", p.SlidingMeanLength)
	case p.NoiseDuration <= 0:
		return invalid("preprocess.noise_duration", p.NoiseDuration)
	case p.NumNoises <= 0:
		return invalid("preprocess.num_noises", p.NumNoises)
	case p.FixedTail < 0:
		return invalid("preprocess.fixed_tail", p.FixedTail)
	case p.ModelChunkSize <= 0:
		return invalid("preprocess.model_chunk_size", p.ModelChunkSize)
	case t.Epochs <= 0:
		return invalid("train.epochs", t.Epochs)
	case t.BatchSize <= 0:
		return invalid("train.batch_size", t.BatchSize)
	case t.Bands <= 0 || bits.OnesCount(uint(t.Bands)) != 1:
		return invalid("train.bands", t.Bands)
	case t.Attenuation <= 0:
		return invalid("train.attenuation", t.Attenuation)
	case len(t.Hidden) == 0:
		return invalid("train.hidden", t.Hidden)
	case t.Variational && t.LatentSize <= 0:
		return invalid("train.latent_size", t.LatentSize)
	case t.LearningRate <= 0:
		return invalid("train.learning_rate", t.LearningRate)
	case t.MaxGradNorm <= 0:
		return invalid("train.max_grad_norm", t.MaxGradNorm)
	case t.ValidationSplit < 0 || t.ValidationSplit >= 1:
		return invalid("train.validation_split", t.ValidationSplit)
	}
	for _, h := range t.Hidden {
		if h <= 0 {
			return invalid("train.hidden", t.Hidden)
		}
	}
	return nil
}

func invalid(field string, value any) error {
	return fmt.Errorf("%w: %s = %v", ErrInvalidConfig, field, value)
}

func validBitDepth(b int) bool {
	switch b {
	case audioio.BitDepth16, audioio.BitDepth24, audioio.BitDepth32:
		return true
	}
	return false
}
