package main

import (
	"path/filepath"
	"testing"

	"snnssd/snn"
	"snnssd/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopKIndices(t *testing.T) {
	vals := []float64{0.1, 0.7, -2, 0.4}
	assert.Equal(t, []int{1, 3}, topKIndices(vals, 2))
	assert.Equal(t, []int{1, 3, 0, 2}, topKIndices(vals, 10))
	assert.Empty(t, topKIndices(vals, 0))
	assert.Empty(t, topKIndices(vals, -1))
}

func TestRunConfigFollowsModelConfig(t *testing.T) {
	cfg := snn.DefaultConfig()
	cfg.InputSize = 64
	cfg.Neuron.TimeSteps = 2
	cfg.Seed = 9
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, utils.SaveModelConfig(path, cfg))

	loaded := snn.DefaultConfig()
	require.NoError(t, utils.LoadModelConfig(path, &loaded))
	rc := newRunConfig(loaded, 3)
	assert.Equal(t, utils.RunConfig{Batch: 3, InputSize: 64, TimeSteps: 2, Seed: 9, HEMode: utils.HEModeNone}, rc)
	require.NoError(t, utils.ValidateRunConfig(&rc))

	x := randomInput(rc)
	assert.Equal(t, []int{2, 3, snn.InputChannels, 64, 64}, x.Shape)
}
