package snn

import (
	"testing"

	"snnssd/tensor"

	"gonum.org/v1/gonum/floats"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeDivisible(t *testing.T) {
	cases := []struct {
		x    float64
		by   int
		want int
	}{
		{16, 8, 16},
		{12.5, 8, 16},
		{32 * 0.5, 8, 16},
		{128 * 0.5, 8, 64},
		{0.1, 8, 8},
		{33, 8, 40},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MakeDivisible(tc.x, tc.by), "MakeDivisible(%g, %d)", tc.x, tc.by)
	}
}

func TestBlockSpecShortcut(t *testing.T) {
	assert.True(t, BlockSpec{In: 16, Out: 16, Stride: 1, Expansion: 6}.Shortcut())
	assert.False(t, BlockSpec{In: 16, Out: 16, Stride: 2, Expansion: 6}.Shortcut())
	assert.False(t, BlockSpec{In: 16, Out: 32, Stride: 1, Expansion: 6}.Shortcut())
	assert.Equal(t, 96, BlockSpec{In: 16, Out: 16, Stride: 1, Expansion: 6}.Hidden())
}

func TestBlockSpecValidate(t *testing.T) {
	for _, spec := range []BlockSpec{
		{In: 16, Out: 16, Stride: 3, Expansion: 6},
		{In: 16, Out: 16, Stride: 0, Expansion: 6},
		{In: 16, Out: 16, Stride: 1, Expansion: 0},
		{In: 0, Out: 16, Stride: 1, Expansion: 6},
	} {
		err := spec.Validate()
		assert.ErrorIs(t, err, ErrInvalidConfig, "%+v", spec)
	}
}

func TestInvertedResidualShortcutPassesInputThrough(t *testing.T) {
	act := newActivation(t, DefaultConfig())
	block, err := NewInvertedResidual(BlockSpec{In: 8, Out: 8, Stride: 1, Expansion: 6}, act)
	require.NoError(t, err)
	// With a silent branch only the shortcut contributes.
	zeroWeights(block.Parameters(""))

	x := randomInput(1, 4, 2, 8, 6, 6)
	y, err := block.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, x.Shape, y.Shape)
	assert.InDeltaSlice(t, x.Data, y.Data, 1e-12)
}

func TestInvertedResidualShortcutAddsLiveBranch(t *testing.T) {
	act := newActivation(t, DefaultConfig())
	block, err := NewInvertedResidual(BlockSpec{In: 8, Out: 8, Stride: 1, Expansion: 6}, act)
	require.NoError(t, err)
	InitWeights(block.Parameters(""), 5)

	x := randomInput(3, 4, 2, 8, 6, 6)
	branch, err := block.branch.Forward(x)
	require.NoError(t, err)
	require.Greater(t, floats.Norm(branch.Data, 1), 0.0, "branch must contribute")

	y, err := block.Forward(x)
	require.NoError(t, err)
	want := make([]float64, len(x.Data))
	floats.AddTo(want, x.Data, branch.Data)
	assert.InDeltaSlice(t, want, y.Data, 1e-12)

	plain, err := NewInvertedResidual(BlockSpec{In: 8, Out: 16, Stride: 1, Expansion: 6}, act)
	require.NoError(t, err)
	InitWeights(plain.Parameters(""), 5)
	branch, err = plain.branch.Forward(x)
	require.NoError(t, err)
	y, err = plain.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, branch.Data, y.Data)
}

func TestInvertedResidualWithoutShortcut(t *testing.T) {
	act := newActivation(t, DefaultConfig())
	for _, spec := range []BlockSpec{
		{In: 8, Out: 8, Stride: 2, Expansion: 6},
		{In: 8, Out: 16, Stride: 1, Expansion: 6},
	} {
		block, err := NewInvertedResidual(spec, act)
		require.NoError(t, err)
		zeroWeights(block.Parameters(""))

		y, err := block.Forward(randomInput(2, 4, 2, 8, 6, 6))
		require.NoError(t, err)
		for _, v := range y.Data {
			require.Zero(t, v, "%s must not add its input", block.Tag())
		}
	}
}

func TestInvertedResidualShapes(t *testing.T) {
	act := newActivation(t, DefaultConfig())
	block, err := NewInvertedResidual(BlockSpec{In: 8, Out: 16, Stride: 2, Expansion: 6}, act)
	require.NoError(t, err)
	InitWeights(block.Parameters(""), 3)

	x := randomInput(3, 4, 2, 8, 8, 8)
	y, err := block.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 2, 16, 4, 4}, y.Shape, "time and batch axes are preserved")

	shape, err := block.OutputShape(x.Shape)
	require.NoError(t, err)
	assert.Equal(t, y.Shape, shape)

	_, err = block.Forward(tensor.New(4, 2, 9, 8, 8))
	assert.ErrorIs(t, err, ErrShapeInvariant)
}

func TestInvertedResidualExpansionOneSkipsExpand(t *testing.T) {
	act := newActivation(t, DefaultConfig())
	block, err := NewInvertedResidual(BlockSpec{In: 8, Out: 8, Stride: 1, Expansion: 1}, act)
	require.NoError(t, err)

	params := block.Parameters("features.1")
	// depthwise conv + bn, projection conv + bn
	assert.Len(t, params, 2*5)
	assert.Equal(t, "features.1.conv.0.0.weight", params[0].Name)
	assert.Equal(t, []int{8, 1, 3, 3}, params[0].Value.Shape)
}

func TestConvBNShapes(t *testing.T) {
	act := newActivation(t, DefaultConfig())
	stem, err := ConvBN(3, 16, 2, act)
	require.NoError(t, err)
	shape, err := stem.OutputShape([]int{4, 2, 3, 32, 32})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 2, 16, 16, 16}, shape)

	proj, err := Conv1x1BN(16, 32, act)
	require.NoError(t, err)
	shape, err = proj.OutputShape(shape)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 2, 32, 16, 16}, shape)

	_, err = ConvBN(0, 16, 1, act)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
