package layers

import (
	"fmt"

	"snnssd/nn"
	"snnssd/tensor"
)

// Residual adds its input to the output of Main: y = x + Main(x).
// The caller guarantees Main preserves the shape; a mismatch is an
// invariant violation, reported as ErrShapeMismatch.
type Residual struct {
	Main nn.Module
}

func NewResidual(main nn.Module) *Residual {
	return &Residual{Main: main}
}

func (r *Residual) OutputShape(in []int) ([]int, error) {
	out, err := r.Main.OutputShape(in)
	if err != nil {
		return nil, err
	}
	if !tensor.SameShape(in, out) {
		return nil, fmt.Errorf("%w: residual branch maps %v to %v", ErrShapeMismatch, in, out)
	}
	return out, nil
}

func (r *Residual) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	y, err := r.Main.Forward(x)
	if err != nil {
		return nil, err
	}
	if !tensor.SameShape(x.Shape, y.Shape) {
		return nil, fmt.Errorf("%w: residual branch maps %v to %v", ErrShapeMismatch, x.Shape, y.Shape)
	}
	for i, v := range x.Data {
		y.Data[i] += v
	}
	return y, nil
}

func (r *Residual) Parameters(prefix string) []*nn.Parameter {
	if p, ok := r.Main.(nn.Parameterized); ok {
		return p.Parameters(prefix)
	}
	return nil
}

func (r *Residual) Tag() string {
	return "Residual[" + r.Main.Tag() + "]"
}
