// Package config loads the YAML description of a training run.
package config

import (
	"os"
	"strings"

	"github.com/gopots/gopots/internal/checkpoint"
	"github.com/gopots/gopots/internal/device"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Model kinds understood by the CLI.
const (
	ModelImputationMLP        = "imputation.mlp"
	ModelForecastingLinear    = "forecasting.linear"
	ModelClassificationLinear = "classification.linear"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	Model string `yaml:"model"`

	// Synthetic data shape.
	Samples     int     `yaml:"samples"`
	Steps       int     `yaml:"steps"`
	Features    int     `yaml:"features"`
	Horizon     int     `yaml:"horizon"`
	Classes     int     `yaml:"classes"`
	MissingRate float64 `yaml:"missing_rate"`
	HoldoutRate float64 `yaml:"holdout_rate"`
	ValFraction float64 `yaml:"val_fraction"`
	Seed        uint64  `yaml:"seed"`

	Hidden       int     `yaml:"hidden"`
	LearningRate float64 `yaml:"learning_rate"`
	BatchSize    int     `yaml:"batch_size"`
	Epochs       int     `yaml:"epochs"`
	Patience     int     `yaml:"patience"`
	NumWorkers   int     `yaml:"num_workers"`

	Device     device.Spec         `yaml:"device"`
	SavingPath string              `yaml:"saving_path"`
	Strategy   checkpoint.Strategy `yaml:"model_saving_strategy"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Overrides captures CLI supplied values. Zero values leave the config as
// is, except Patience where nil means "not given" and 0 disables early
// stopping.
type Overrides struct {
	Model      string
	Epochs     int
	BatchSize  int
	Patience   *int
	NumWorkers int
	Device     string
	SavingPath string
	Strategy   string
	LogLevel   string
	Seed       uint64
}

// Default returns a small imputation run.
func Default() *Config {
	return &Config{
		Model:        ModelImputationMLP,
		Samples:      256,
		Steps:        24,
		Features:     4,
		Horizon:      6,
		Classes:      2,
		MissingRate:  0.1,
		HoldoutRate:  0.1,
		ValFraction:  0.2,
		Seed:         1,
		Hidden:       32,
		LearningRate: 1e-3,
		BatchSize:    32,
		Epochs:       20,
		Patience:     5,
		Strategy:     checkpoint.Best,
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// Load reads a YAML file over Default and validates the result. Unknown
// keys are rejected.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer f.Close()

	cfg := Default()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %q", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates c using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) error {
	if o.Model != "" {
		c.Model = o.Model
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.Patience != nil {
		c.Patience = *o.Patience
	}
	if o.NumWorkers > 0 {
		c.NumWorkers = o.NumWorkers
	}
	if o.Device != "" {
		c.Device = device.Spec(strings.Split(o.Device, ","))
	}
	if o.SavingPath != "" {
		c.SavingPath = o.SavingPath
	}
	if o.Strategy != "" {
		s, err := checkpoint.ParseStrategy(o.Strategy)
		if err != nil {
			return err
		}
		c.Strategy = s
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	return nil
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	switch c.Model {
	case ModelImputationMLP, ModelForecastingLinear, ModelClassificationLinear:
	default:
		return errors.Errorf("unknown model %q", c.Model)
	}
	if c.Samples <= 0 || c.Steps <= 0 || c.Features <= 0 {
		return errors.Errorf("samples, steps and features must be > 0 (got %d, %d, %d)", c.Samples, c.Steps, c.Features)
	}
	if c.Model == ModelForecastingLinear && c.Horizon <= 0 {
		return errors.Errorf("horizon must be > 0 for %s (got %d)", c.Model, c.Horizon)
	}
	if c.Model == ModelClassificationLinear && c.Classes < 2 {
		return errors.Errorf("classes must be >= 2 for %s (got %d)", c.Model, c.Classes)
	}
	for name, rate := range map[string]float64{"missing_rate": c.MissingRate, "holdout_rate": c.HoldoutRate} {
		if rate < 0 || rate >= 1 {
			return errors.Errorf("%s must be in [0, 1) (got %v)", name, rate)
		}
	}
	if c.ValFraction < 0 || c.ValFraction >= 1 {
		return errors.Errorf("val_fraction must be in [0, 1) (got %v)", c.ValFraction)
	}
	if c.Hidden <= 0 {
		return errors.Errorf("hidden must be > 0 (got %d)", c.Hidden)
	}
	if c.LearningRate <= 0 {
		return errors.Errorf("learning_rate must be > 0 (got %v)", c.LearningRate)
	}
	if c.BatchSize <= 0 {
		return errors.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.Epochs <= 0 {
		return errors.Errorf("epochs must be > 0 (got %d)", c.Epochs)
	}
	if c.Patience > c.Epochs {
		return errors.Errorf("patience must be <= epochs (got %d > %d)", c.Patience, c.Epochs)
	}
	if c.NumWorkers < 0 {
		return errors.Errorf("num_workers must be >= 0 (got %d)", c.NumWorkers)
	}
	return c.Strategy.Validate()
}
