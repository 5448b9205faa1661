package layers

import (
	"fmt"

	"snnssd/nn"
	"snnssd/tensor"
)

// TimeDistributed applies Inner independently to every time step of a
// (T, B, ...) tensor by folding T into the batch axis. Weights are shared
// across time and no information crosses time slices.
type TimeDistributed struct {
	Inner *nn.Sequential
}

func NewTimeDistributed(inner ...nn.Module) *TimeDistributed {
	return &TimeDistributed{Inner: nn.NewSequential(inner...)}
}

func (td *TimeDistributed) fold(in []int) ([]int, error) {
	if len(in) < 3 {
		return nil, fmt.Errorf("%w: time-distributed input must be (T,B,...), got %v", ErrShapeMismatch, in)
	}
	folded := append([]int{in[0] * in[1]}, in[2:]...)
	return folded, nil
}

func (td *TimeDistributed) OutputShape(in []int) ([]int, error) {
	folded, err := td.fold(in)
	if err != nil {
		return nil, err
	}
	out, err := td.Inner.OutputShape(folded)
	if err != nil {
		return nil, err
	}
	if out[0] != folded[0] {
		return nil, fmt.Errorf("%w: inner modules changed the folded batch %d -> %d", ErrShapeMismatch, folded[0], out[0])
	}
	return append([]int{in[0], in[1]}, out[1:]...), nil
}

func (td *TimeDistributed) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	folded, err := td.fold(x.Shape)
	if err != nil {
		return nil, err
	}
	flat, err := x.Reshape(folded...)
	if err != nil {
		return nil, err
	}
	y, err := td.Inner.Forward(flat)
	if err != nil {
		return nil, err
	}
	if y.Shape[0] != folded[0] {
		return nil, fmt.Errorf("%w: inner modules changed the folded batch %d -> %d", ErrShapeMismatch, folded[0], y.Shape[0])
	}
	return y.Reshape(append([]int{x.Shape[0], x.Shape[1]}, y.Shape[1:]...)...)
}

func (td *TimeDistributed) Parameters(prefix string) []*nn.Parameter {
	return td.Inner.Parameters(prefix)
}

func (td *TimeDistributed) Tag() string {
	return "TimeDistributed[" + td.Inner.Tag() + "]"
}
