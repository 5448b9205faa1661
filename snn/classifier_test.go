package snn

import (
	"math"
	"testing"

	"snnssd/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifierForwardShape(t *testing.T) {
	c, err := NewClassifier(halfWidthConfig())
	require.NoError(t, err)

	x := randomInput(11, 4, 8, 3, 32, 32)
	logits, err := c.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, []int{8, 10}, logits.Shape)

	shape, err := c.OutputShape(x.Shape)
	require.NoError(t, err)
	assert.Equal(t, logits.Shape, shape)
}

func TestClassifierReferenceOutputShape(t *testing.T) {
	c, err := NewClassifier(DefaultConfig())
	require.NoError(t, err)
	shape, err := c.OutputShape([]int{4, 2, 3, 224, 224})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1000}, shape)
}

func TestClassifierFeaturesAreSpikeCounts(t *testing.T) {
	cfg := halfWidthConfig()
	c, err := NewClassifier(cfg)
	require.NoError(t, err)

	feats, err := c.Features(randomInput(12, 4, 2, 3, 32, 32))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 128}, feats.Shape)

	// Every time step emits a whole number of quanta, so their sum does too.
	q := cfg.Neuron.Quantum()
	maxCount := float64(cfg.TimeSteps()) * cfg.Neuron.Threshold
	for _, v := range feats.Data {
		require.GreaterOrEqual(t, v, 0.0)
		require.LessOrEqual(t, v, maxCount+1e-9)
		levels := v / q
		require.InDelta(t, math.Round(levels), levels, 1e-9)
	}
}

func TestClassifierRejectsBadInput(t *testing.T) {
	c, err := NewClassifier(halfWidthConfig())
	require.NoError(t, err)

	_, err = c.Forward(tensor.New(2, 8, 3, 32, 32))
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = c.Forward(tensor.New(4, 8, 4, 32, 32))
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = c.OutputShape([]int{4, 8, 3, 32})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestClassifierIsDeterministicPerSeed(t *testing.T) {
	cfg := halfWidthConfig()
	a, err := NewClassifier(cfg)
	require.NoError(t, err)
	b, err := NewClassifier(cfg)
	require.NoError(t, err)

	x := randomInput(13, 4, 2, 3, 32, 32)
	ya, err := a.Forward(x)
	require.NoError(t, err)
	yb, err := b.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, ya.Data, yb.Data)

	again, err := a.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, ya.Data, again.Data, "forward keeps no state between calls")

	b.Reinitialize(cfg.Seed + 1)
	yc, err := b.Forward(x)
	require.NoError(t, err)
	assert.NotEqual(t, ya.Data, yc.Data)
}

func TestNumParameters(t *testing.T) {
	c, err := NewClassifier(tinyConfig())
	require.NoError(t, err)
	// stem:       conv 8*3*3*3 + bn 2*8
	// stage1:     dw 8*1*3*3 + bn 2*8 + project 8*8 + bn 2*8
	// last:       conv 16*8 + bn 2*16
	// classifier: 16*2 + 2
	want := (216 + 16) + (72 + 16 + 64 + 16) + (128 + 32) + 34
	assert.Equal(t, want, NumParameters(c))
}

func TestClassifierParameterNames(t *testing.T) {
	c, err := NewClassifier(tinyConfig())
	require.NoError(t, err)
	params := c.Parameters("")
	last := params[len(params)-2:]
	assert.Equal(t, "classifier.weight", last[0].Name)
	assert.Equal(t, []int{2, 16}, last[0].Value.Shape)
	assert.Equal(t, "classifier.bias", last[1].Name)
}
