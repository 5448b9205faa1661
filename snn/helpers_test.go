package snn

import (
	"testing"

	"snnssd/neuron"
	"snnssd/nn"
	"snnssd/tensor"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

// tinyConfig is a one-stage network small enough to count by hand.
func tinyConfig() Config {
	cfg := DefaultConfig()
	cfg.NumClasses = 2
	cfg.InputSize = 32
	cfg.StemChannels = 8
	cfg.LastChannel = 16
	cfg.Stages = []StageSetting{{Expansion: 1, Channels: 8, Repeats: 1, Stride: 1}}
	return cfg
}

// halfWidthConfig mirrors the demo classifier at a small resolution.
func halfWidthConfig() Config {
	cfg := DefaultConfig()
	cfg.NumClasses = 10
	cfg.InputSize = 32
	cfg.WidthMult = 0.5
	cfg.Neuron.NumThresholds = 4
	return cfg
}

func randomInput(seed uint64, shape ...int) *tensor.Tensor {
	rng := rand.New(rand.NewSource(seed))
	x := tensor.New(shape...)
	for i := range x.Data {
		x.Data[i] = rng.Float64()
	}
	return x
}

func newActivation(t *testing.T, cfg Config) nn.Activation {
	t.Helper()
	act, err := neuron.New(cfg.Neuron)
	require.NoError(t, err)
	return act
}

func zeroWeights(params []*nn.Parameter) {
	for _, p := range params {
		if p.Kind == nn.ConvWeight || p.Kind == nn.LinearWeight {
			for i := range p.Value.Data {
				p.Value.Data[i] = 0
			}
		}
	}
}
