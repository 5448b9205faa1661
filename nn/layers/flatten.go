package layers

import (
	"fmt"

	"snnssd/tensor"
)

// Flatten keeps the leading (batch) axis and collapses the rest:
// (N, d1, d2, ...) -> (N, d1*d2*...).
type Flatten struct{}

func NewFlatten() *Flatten { return &Flatten{} }

func (f *Flatten) OutputShape(in []int) ([]int, error) {
	if len(in) < 2 {
		return nil, fmt.Errorf("%w: flatten expects rank >= 2, got %v", ErrShapeMismatch, in)
	}
	return []int{in[0], tensor.Size(in[1:])}, nil
}

func (f *Flatten) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	shape, err := f.OutputShape(x.Shape)
	if err != nil {
		return nil, err
	}
	y := tensor.New(shape...)
	copy(y.Data, x.Data)
	return y, nil
}

func (f *Flatten) Tag() string {
	return "Flatten"
}
