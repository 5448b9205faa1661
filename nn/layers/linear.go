package layers

import (
	"fmt"

	"snnssd/nn"
	"snnssd/tensor"
)

// Linear is a fully-connected layer: y = x·Wᵀ + B over (N, in) batches.
type Linear struct {
	W, B *tensor.Tensor // W: [outDim, inDim], B: [outDim]
}

// NewLinear(inDim→outDim) allocates zero W,B.
func NewLinear(inDim, outDim int) *Linear {
	return &Linear{W: tensor.New(outDim, inDim), B: tensor.New(outDim)}
}

func (l *Linear) InDim() int  { return l.W.Shape[1] }
func (l *Linear) OutDim() int { return l.W.Shape[0] }

func (l *Linear) OutputShape(in []int) ([]int, error) {
	if len(in) != 2 || in[1] != l.InDim() {
		return nil, fmt.Errorf("%w: linear(%d) got %v", ErrShapeMismatch, l.InDim(), in)
	}
	return []int{in[0], l.OutDim()}, nil
}

// Forward computes y = x·Wᵀ + B for a (N, inDim) tensor.
func (l *Linear) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	shape, err := l.OutputShape(x.Shape)
	if err != nil {
		return nil, err
	}
	wt, err := tensor.Permute(l.W, 1, 0)
	if err != nil {
		return nil, err
	}
	out, err := tensor.MatMul(x, wt)
	if err != nil {
		return nil, err
	}
	for n := 0; n < shape[0]; n++ {
		row := out.Data[n*shape[1] : (n+1)*shape[1]]
		for j := range row {
			row[j] += l.B.Data[j]
		}
	}
	return out, nil
}

func (l *Linear) Parameters(prefix string) []*nn.Parameter {
	return []*nn.Parameter{
		{Name: nn.JoinName(prefix, "weight"), Kind: nn.LinearWeight, Value: l.W},
		{Name: nn.JoinName(prefix, "bias"), Kind: nn.LinearBias, Value: l.B},
	}
}

func (l *Linear) Tag() string {
	return fmt.Sprintf("Linear_%d_%d", l.InDim(), l.OutDim())
}
