package utils

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStages(t *testing.T) {
	rows, err := ParseStages("6,32,1,1  6,64,2,2")
	require.NoError(t, err)
	assert.Equal(t, [][4]int{{6, 32, 1, 1}, {6, 64, 2, 2}}, rows)

	_, err = ParseStages("")
	assert.Error(t, err)
	_, err = ParseStages("6,32,1")
	assert.Error(t, err)
	_, err = ParseStages("6,x,1,1")
	assert.Error(t, err)
}

func TestValidateRunConfig(t *testing.T) {
	ok := RunConfig{Batch: 8, InputSize: 32, TimeSteps: 4, HEMode: HEModeNone}
	assert.NoError(t, ValidateRunConfig(&ok))

	split := ok
	split.HEMode = HEModeSplit
	assert.NoError(t, ValidateRunConfig(&split))

	for name, mutate := range map[string]func(*RunConfig){
		"batch":  func(c *RunConfig) { c.Batch = 0 },
		"size":   func(c *RunConfig) { c.InputSize = -1 },
		"steps":  func(c *RunConfig) { c.TimeSteps = 0 },
		"hemode": func(c *RunConfig) { c.HEMode = "full" },
	} {
		cfg := ok
		mutate(&cfg)
		assert.Error(t, ValidateRunConfig(&cfg), name)
	}
}

func TestModelConfigRoundTrip(t *testing.T) {
	type model struct {
		Width  float64  `json:"width"`
		Taps   []string `json:"taps"`
		Unused int      `json:"unused"`
	}
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, SaveModelConfig(path, model{Width: 0.5, Taps: []string{"stage2", "last"}}))

	got := model{Unused: 7}
	require.NoError(t, LoadModelConfig(path, &got))
	assert.Equal(t, 0.5, got.Width)
	assert.Equal(t, []string{"stage2", "last"}, got.Taps)
	assert.Equal(t, 0, got.Unused, "fields present in the file overwrite defaults")

	assert.Error(t, LoadModelConfig(filepath.Join(t.TempDir(), "missing.json"), &got))
}
