// Package config loads experiment configuration for rank-pruning runs.
//
// Configs are YAML files describing the model to build, the pruning
// schedule, and the synthetic training setup used by the lowrank CLI.
// All validation errors surface as *prune.ScheduleConfigError so callers
// get the same error type whether a schedule is built from a file or in
// code.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lowrank-ml/lowrank/internal/prune"
)

// Model describes the factorized MLP the experiment builds.
type Model struct {
	InFeatures  int   `yaml:"in_features"`
	OutFeatures int   `yaml:"out_features"`
	Hidden      []int `yaml:"hidden"`
	MaxRank     int   `yaml:"max_rank"`
}

// Train describes the synthetic regression training loop.
type Train struct {
	Samples      int     `yaml:"samples"`
	BatchSize    int     `yaml:"batch_size"`
	LearningRate float64 `yaml:"learning_rate"`
	Seed         int64   `yaml:"seed"`
}

// Pruning describes the pruning engine configuration.
type Pruning struct {
	Pruner         string  `yaml:"pruner"`
	Scope          string  `yaml:"pruning_scope"`
	TargetSparsity float64 `yaml:"target_sparsity"`
	PruneEpochs    []int   `yaml:"prune_epochs"`
}

// Config is a full experiment configuration.
type Config struct {
	Name        string  `yaml:"name"`
	TotalEpochs int     `yaml:"total_epochs"`
	Model       Model   `yaml:"model"`
	Train       Train   `yaml:"train"`
	Pruning     Pruning `yaml:"pruning"`
}

// Load reads and validates a YAML experiment config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML config bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field the experiment relies on. Schedule-shaped
// fields are validated by building the schedule itself, so the CLI and
// the library agree on what is legal.
func (c *Config) Validate() error {
	if c.Model.InFeatures <= 0 {
		return &prune.ScheduleConfigError{Field: "model.in_features", Reason: "must be positive"}
	}
	if c.Model.OutFeatures <= 0 {
		return &prune.ScheduleConfigError{Field: "model.out_features", Reason: "must be positive"}
	}
	for i, h := range c.Model.Hidden {
		if h <= 0 {
			return &prune.ScheduleConfigError{
				Field:  fmt.Sprintf("model.hidden[%d]", i),
				Reason: "must be positive",
			}
		}
	}
	if c.Model.MaxRank <= 0 {
		return &prune.ScheduleConfigError{Field: "model.max_rank", Reason: "must be positive"}
	}
	if c.Train.Samples <= 0 {
		return &prune.ScheduleConfigError{Field: "train.samples", Reason: "must be positive"}
	}
	if c.Train.BatchSize <= 0 {
		return &prune.ScheduleConfigError{Field: "train.batch_size", Reason: "must be positive"}
	}
	if c.Train.LearningRate <= 0 {
		return &prune.ScheduleConfigError{Field: "train.learning_rate", Reason: "must be positive"}
	}

	switch c.Pruning.Pruner {
	case prune.ScorerMagnitude, prune.ScorerSNIP, prune.ScorerAlignment:
	default:
		return &prune.ScheduleConfigError{
			Field:  "pruning.pruner",
			Reason: fmt.Sprintf("unknown pruner %q", c.Pruning.Pruner),
		}
	}
	switch c.Pruning.Scope {
	case prune.ScopeLocal, prune.ScopeGlobal:
	default:
		return &prune.ScheduleConfigError{
			Field:  "pruning.pruning_scope",
			Reason: fmt.Sprintf("unknown scope %q", c.Pruning.Scope),
		}
	}

	// Shares validation with in-code construction.
	if _, err := c.Schedule(); err != nil {
		return err
	}
	return nil
}

// Schedule builds the prune.Schedule described by this config.
func (c *Config) Schedule() (*prune.Schedule, error) {
	return prune.NewSchedule(c.Pruning.PruneEpochs, c.Pruning.TargetSparsity, c.TotalEpochs)
}
