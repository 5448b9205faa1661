package neuron

import (
	"fmt"
	"math"

	"snnssd/tensor"
)

// MultiThresholdLIF is a leaky integrate-and-fire neuron with several firing
// levels. Each Apply call simulates T steps over a fresh membrane; nothing is
// carried between calls, so one instance may be shared by many layers.
type MultiThresholdLIF struct {
	params    Params
	surrogate Surrogate
}

// New validates p and builds the neuron.
func New(p Params) (*MultiThresholdLIF, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &MultiThresholdLIF{params: p, surrogate: Surrogates[p.Surrogate]}, nil
}

func (n *MultiThresholdLIF) Params() Params { return n.params }

// Apply runs the neuron over a (T, ...) tensor and returns the quantized
// output of the same shape.
func (n *MultiThresholdLIF) Apply(x *tensor.Tensor) (*tensor.Tensor, error) {
	out, _, err := n.simulate(x, false)
	return out, err
}

// ApplyWithGrad also returns the surrogate derivative of every output
// element with respect to its input, evaluated at the pre-firing membrane.
func (n *MultiThresholdLIF) ApplyWithGrad(x *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	return n.simulate(x, true)
}

func (n *MultiThresholdLIF) simulate(x *tensor.Tensor, withGrad bool) (*tensor.Tensor, *tensor.Tensor, error) {
	p := &n.params
	if len(x.Shape) < 1 || x.Shape[0] != p.TimeSteps {
		return nil, nil, fmt.Errorf("%w: expected %d leading time steps, got shape %v", ErrInvalidParams, p.TimeSteps, x.Shape)
	}
	steps := p.TimeSteps
	width := len(x.Data) / steps
	q := p.Quantum()
	levels := float64(p.NumThresholds)
	decay := 1 - p.Leakage

	out := tensor.New(x.Shape...)
	var grad *tensor.Tensor
	if withGrad {
		grad = tensor.New(x.Shape...)
	}

	// membrane state lives for this call only
	v := make([]float64, width)
	for i := range v {
		v[i] = p.VInit
	}

	for t := 0; t < steps; t++ {
		in := x.Data[t*width : (t+1)*width]
		dst := out.Data[t*width : (t+1)*width]
		for i := range v {
			v[i] = v[i]*decay + in[i]
			if withGrad {
				grad.Data[t*width+i] = n.surrogate.Grad(v[i], q, p.NumThresholds, p.Alpha)
			}
			k := math.Floor(v[i] / q)
			if k < 0 {
				k = 0
			} else if k > levels {
				k = levels
			}
			s := k * q
			dst[i] = s
			if k == 0 {
				continue
			}
			switch p.Reset {
			case ResetSoft:
				v[i] -= s
			case ResetHard:
				v[i] = p.VInit
			}
		}
	}
	return out, grad, nil
}

func (n *MultiThresholdLIF) Tag() string {
	return fmt.Sprintf("MultiThresholdLIF_T%d_L%d_%s", n.params.TimeSteps, n.params.NumThresholds, n.params.Reset)
}
