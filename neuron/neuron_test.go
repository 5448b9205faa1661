package neuron

import (
	"encoding/json"
	"math/rand"
	"testing"

	"snnssd/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNeuron(t *testing.T, mutate func(*Params)) *MultiThresholdLIF {
	t.Helper()
	var p Params
	p.Defaults()
	if mutate != nil {
		mutate(&p)
	}
	n, err := New(p)
	require.NoError(t, err)
	return n
}

func TestSoftResetIntegratesAcrossSteps(t *testing.T) {
	n := newNeuron(t, func(p *Params) {
		p.TimeSteps = 4
		p.NumThresholds = 2 // quantum 0.5
	})
	// one neuron, constant 0.3 input: v = .3 -> 0 ; .6 -> .5 (v=.1) ; .4 -> 0 ; .7 -> .5
	x := &tensor.Tensor{Data: []float64{0.3, 0.3, 0.3, 0.3}, Shape: []int{4, 1}}
	y, err := n.Apply(x)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0.5, 0, 0.5}, y.Data, 1e-12)
}

func TestHardResetDropsResidue(t *testing.T) {
	n := newNeuron(t, func(p *Params) {
		p.TimeSteps = 3
		p.NumThresholds = 2
		p.Reset = ResetHard
	})
	// v=.7 -> .5 then reset to 0 ; .7 -> .5 ; .7 -> .5
	x := &tensor.Tensor{Data: []float64{0.7, 0.7, 0.7}, Shape: []int{3, 1}}
	y, err := n.Apply(x)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 0.5, 0.5}, y.Data, 1e-12)

	soft := newNeuron(t, func(p *Params) {
		p.TimeSteps = 3
		p.NumThresholds = 2
	})
	// soft: .7 -> .5 (v=.2) ; .9 -> .5 (v=.4) ; 1.1 -> 1.0 (v=.1)
	ys, err := soft.Apply(x)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 0.5, 1.0}, ys.Data, 1e-12)
}

func TestOutputIsQuantized(t *testing.T) {
	n := newNeuron(t, func(p *Params) {
		p.TimeSteps = 4
		p.NumThresholds = 4
	})
	rng := rand.New(rand.NewSource(11))
	x := tensor.New(4, 2, 3, 5, 5)
	for i := range x.Data {
		x.Data[i] = rng.NormFloat64() * 2
	}
	y, err := n.Apply(x)
	require.NoError(t, err)
	assert.Equal(t, x.Shape, y.Shape)
	allowed := map[float64]bool{0: true, 0.25: true, 0.5: true, 0.75: true, 1: true}
	for i, v := range y.Data {
		if !allowed[v] {
			t.Fatalf("output %d = %v is not one of the %d levels", i, v, 5)
		}
	}
}

func TestStateIsCausal(t *testing.T) {
	n := newNeuron(t, func(p *Params) { p.TimeSteps = 4 })
	rng := rand.New(rand.NewSource(5))
	a := tensor.New(4, 10)
	for i := range a.Data {
		a.Data[i] = rng.Float64() * 2
	}
	b := a.Clone()
	// change only the last step
	for i := 30; i < 40; i++ {
		b.Data[i] = -b.Data[i]
	}
	ya, err := n.Apply(a)
	require.NoError(t, err)
	yb, err := n.Apply(b)
	require.NoError(t, err)
	assert.Equal(t, ya.Data[:30], yb.Data[:30], "earlier steps must not see later inputs")
}

func TestStateDoesNotLeakBetweenCalls(t *testing.T) {
	n := newNeuron(t, func(p *Params) { p.TimeSteps = 2 })
	x := &tensor.Tensor{Data: []float64{0.4, 0.4}, Shape: []int{2, 1}}
	first, err := n.Apply(x)
	require.NoError(t, err)
	second, err := n.Apply(x)
	require.NoError(t, err)
	assert.Equal(t, first.Data, second.Data)
}

func TestLeakageDecaysMembrane(t *testing.T) {
	n := newNeuron(t, func(p *Params) {
		p.TimeSteps = 2
		p.NumThresholds = 1
		p.Leakage = 0.5
	})
	// v = .6 -> 0 ; .6*.5+.6 = .9 -> 0 (threshold 1)
	x := &tensor.Tensor{Data: []float64{0.6, 0.6}, Shape: []int{2, 1}}
	y, err := n.Apply(x)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, y.Data)
}

func TestTimeStepMismatch(t *testing.T) {
	n := newNeuron(t, func(p *Params) { p.TimeSteps = 4 })
	_, err := n.Apply(tensor.New(3, 2))
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Params){
		"zero threshold":    func(p *Params) { p.Threshold = 0 },
		"zero levels":       func(p *Params) { p.NumThresholds = 0 },
		"leakage one":       func(p *Params) { p.Leakage = 1 },
		"unknown surrogate": func(p *Params) { p.Surrogate = "sigmoid" },
		"bad reset":         func(p *Params) { p.Reset = ResetMode(7) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			var p Params
			p.Defaults()
			mutate(&p)
			_, err := New(p)
			assert.ErrorIs(t, err, ErrInvalidParams)
		})
	}
}

func TestSurrogateGradients(t *testing.T) {
	ste := StraightThrough{}
	assert.Equal(t, 1.0, ste.Grad(0.3, 0.5, 2, 1))
	assert.Equal(t, 0.0, ste.Grad(-0.1, 0.5, 2, 1))
	assert.Equal(t, 0.0, ste.Grad(1.2, 0.5, 2, 1))

	pw := PiecewiseLinear{}
	assert.InDelta(t, 1.0, pw.Grad(0.5, 0.5, 2, 1), 1e-12)
	assert.InDelta(t, 0.5, pw.Grad(0.75, 0.5, 2, 1), 1e-12)
	assert.InDelta(t, 0.0, pw.Grad(0.75, 0.5, 2, 2), 1e-12)
	assert.InDelta(t, 0.0, pw.Grad(-1, 0.5, 2, 1), 1e-12)
}

func TestApplyWithGrad(t *testing.T) {
	n := newNeuron(t, func(p *Params) {
		p.TimeSteps = 2
		p.NumThresholds = 2
	})
	x := &tensor.Tensor{Data: []float64{0.3, -2}, Shape: []int{2, 1}}
	y, g, err := n.ApplyWithGrad(x)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, y.Data)
	// step 0: v=.3 inside range ; step 1: v=-1.7 saturated low
	assert.Equal(t, []float64{1, 0}, g.Data)
}

func TestResetModeJSON(t *testing.T) {
	var p Params
	p.Defaults()
	p.Reset = ResetHard
	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"reset":"hard"`)

	var back Params
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, p, back)
}
