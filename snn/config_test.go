package snn

import (
	"testing"

	"snnssd/neuron"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 4, cfg.TimeSteps())
	assert.Equal(t, ReferenceStages, cfg.Stages)

	det := DefaultDetectorConfig()
	require.NoError(t, det.Validate())
	assert.Equal(t, 320, det.InputSize)
	assert.Equal(t, []int{32, 64, 128, 256, 512}, det.HeadChannels)
}

func TestDefaultConfigDoesNotShareStageTable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Stages[0].Channels = 999
	assert.Equal(t, 32, ReferenceStages[0].Channels)
}

func TestWidthScaling(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WidthMult = 0.5
	var got []int
	for _, s := range cfg.Stages {
		got = append(got, cfg.StageChannels(s))
	}
	assert.Equal(t, []int{16, 32, 64, 64}, got)
	assert.Equal(t, 128, cfg.ProjectedChannels(), "last channel only grows above width 1")

	cfg.WidthMult = 1.5
	assert.Equal(t, 192, cfg.ProjectedChannels())
	assert.Equal(t, 8, cfg.StageChannels(StageSetting{Expansion: 1, Channels: 8, Repeats: 1, Stride: 1}),
		"non-expanding stages keep their nominal width")
}

func TestConfigValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"input size":   func(c *Config) { c.InputSize = 100 },
		"zero classes": func(c *Config) { c.NumClasses = 0 },
		"zero width":   func(c *Config) { c.WidthMult = 0 },
		"stride":       func(c *Config) { c.Stages = []StageSetting{{6, 32, 1, 3}} },
		"repeats":      func(c *Config) { c.Stages = []StageSetting{{6, 32, 0, 1}} },
		"no stages":    func(c *Config) { c.Stages = nil },
		"stem":         func(c *Config) { c.StemChannels = 0 },
		"neuron":       func(c *Config) { c.Neuron.Threshold = -1 },
		"surrogate":    func(c *Config) { c.Neuron.Surrogate = "sigmoid" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestDetectorConfigValidateRejects(t *testing.T) {
	cfg := DefaultDetectorConfig()
	cfg.HeadChannels = []int{32, 64, 128}
	assert.ErrorIs(t, cfg.Validate(), ErrChannelSchedule)

	cfg = DefaultDetectorConfig()
	cfg.Taps = nil
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultDetectorConfig()
	cfg.Anchors = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultDetectorConfig()
	cfg.InputSize = 300
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestNeuronParamsCarryIntoConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Neuron.TimeSteps = 6
	cfg.Neuron.Reset = neuron.ResetHard
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 6, cfg.TimeSteps())
}
