package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowrank-ml/lowrank/internal/config"
	"github.com/lowrank-ml/lowrank/internal/prune"
)

const validYAML = `
name: two-step-halving
total_epochs: 50

model:
  in_features: 32
  out_features: 16
  hidden: [64]
  max_rank: 10

train:
  samples: 256
  batch_size: 32
  learning_rate: 0.01
  seed: 42

pruning:
  pruner: magnitude
  pruning_scope: local
  target_sparsity: 0.5
  prune_epochs: [10, 30]
`

func TestParse_Valid(t *testing.T) {
	cfg, err := config.Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, "two-step-halving", cfg.Name)
	assert.Equal(t, 50, cfg.TotalEpochs)
	assert.Equal(t, 32, cfg.Model.InFeatures)
	assert.Equal(t, 16, cfg.Model.OutFeatures)
	assert.Equal(t, []int{64}, cfg.Model.Hidden)
	assert.Equal(t, 10, cfg.Model.MaxRank)
	assert.Equal(t, 256, cfg.Train.Samples)
	assert.Equal(t, int64(42), cfg.Train.Seed)
	assert.Equal(t, prune.ScorerMagnitude, cfg.Pruning.Pruner)
	assert.Equal(t, prune.ScopeLocal, cfg.Pruning.Scope)
	assert.Equal(t, []int{10, 30}, cfg.Pruning.PruneEpochs)
}

func TestParse_MalformedYAML(t *testing.T) {
	_, err := config.Parse([]byte("model: [not a mapping"))
	require.Error(t, err)
}

func TestParse_ValidationErrors(t *testing.T) {
	// Each case patches one section of an otherwise valid config.
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "zero in_features",
			mutate:  func(c *config.Config) { c.Model.InFeatures = 0 },
			wantErr: "model.in_features",
		},
		{
			name:    "negative hidden layer",
			mutate:  func(c *config.Config) { c.Model.Hidden = []int{64, -1} },
			wantErr: "model.hidden[1]",
		},
		{
			name:    "zero max_rank",
			mutate:  func(c *config.Config) { c.Model.MaxRank = 0 },
			wantErr: "model.max_rank",
		},
		{
			name:    "zero batch size",
			mutate:  func(c *config.Config) { c.Train.BatchSize = 0 },
			wantErr: "train.batch_size",
		},
		{
			name:    "unknown pruner",
			mutate:  func(c *config.Config) { c.Pruning.Pruner = "taylor" },
			wantErr: "pruning.pruner",
		},
		{
			name:    "unknown scope",
			mutate:  func(c *config.Config) { c.Pruning.Scope = "layerwise" },
			wantErr: "pruning.pruning_scope",
		},
		{
			name:    "sparsity above one",
			mutate:  func(c *config.Config) { c.Pruning.TargetSparsity = 1.5 },
			wantErr: "",
		},
		{
			name:    "prune epoch beyond total",
			mutate:  func(c *config.Config) { c.Pruning.PruneEpochs = []int{10, 60} },
			wantErr: "",
		},
		{
			name:    "no prune epochs",
			mutate:  func(c *config.Config) { c.Pruning.PruneEpochs = nil },
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Parse([]byte(validYAML))
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)

			var cfgErr *prune.ScheduleConfigError
			require.ErrorAs(t, err, &cfgErr)
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, cfgErr.Field)
			}
		})
	}
}

func TestConfig_Schedule(t *testing.T) {
	cfg, err := config.Parse([]byte(validYAML))
	require.NoError(t, err)

	schedule, err := cfg.Schedule()
	require.NoError(t, err)

	assert.Equal(t, 2, schedule.NumEvents())

	event, ok := schedule.EventIndex(10)
	assert.True(t, ok)
	assert.Equal(t, 1, event)

	event, ok = schedule.EventIndex(30)
	assert.True(t, ok)
	assert.Equal(t, 2, event)

	_, ok = schedule.EventIndex(20)
	assert.False(t, ok)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experiment.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "two-step-halving", cfg.Name)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	var cfgErr *prune.ScheduleConfigError
	assert.False(t, errors.As(err, &cfgErr), "file errors are not config errors")
}
