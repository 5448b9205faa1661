package neuron

import "math"

const (
	SurrogateSTE       = "ste"
	SurrogatePiecewise = "piecewise"
)

// Surrogate supplies the pseudo-derivative of the quantized firing function
// with respect to the membrane potential v.
type Surrogate interface {
	Grad(v, quantum float64, levels int, alpha float64) float64
}

// Surrogates holds the supported surrogate gradient families by name.
var Surrogates = map[string]Surrogate{
	SurrogateSTE:       StraightThrough{},
	SurrogatePiecewise: PiecewiseLinear{},
}

// StraightThrough passes the gradient (scaled by alpha) wherever the
// quantizer is not saturated: 0 <= v <= levels*quantum.
type StraightThrough struct{}

func (StraightThrough) Grad(v, quantum float64, levels int, alpha float64) float64 {
	if v < 0 || v > float64(levels)*quantum {
		return 0
	}
	return alpha
}

// PiecewiseLinear is a triangle of half-width quantum/alpha centred on each
// firing threshold k*quantum, k = 1..levels, peaking at 1.
type PiecewiseLinear struct{}

func (PiecewiseLinear) Grad(v, quantum float64, levels int, alpha float64) float64 {
	k := math.Round(v / quantum)
	if k < 1 {
		k = 1
	}
	if k > float64(levels) {
		k = float64(levels)
	}
	dist := math.Abs(v-k*quantum) / quantum
	return math.Max(0, 1-alpha*dist)
}
