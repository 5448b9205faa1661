package layers

import (
	"fmt"
	"math"

	"snnssd/nn"
	"snnssd/tensor"
)

// BatchNorm2D normalizes (N, C, H, W) tensors per channel using running
// statistics. Only the inference form is implemented.
type BatchNorm2D struct {
	channels int
	Eps      float64

	Weight      *tensor.Tensor // gamma [C]
	Bias        *tensor.Tensor // beta [C]
	RunningMean *tensor.Tensor // [C]
	RunningVar  *tensor.Tensor // [C]
}

// NewBatchNorm2D creates an identity-initialized BatchNorm2D.
func NewBatchNorm2D(channels int) *BatchNorm2D {
	bn := &BatchNorm2D{
		channels:    channels,
		Eps:         1e-5,
		Weight:      tensor.New(channels),
		Bias:        tensor.New(channels),
		RunningMean: tensor.New(channels),
		RunningVar:  tensor.New(channels),
	}
	for i := 0; i < channels; i++ {
		bn.Weight.Data[i] = 1
		bn.RunningVar.Data[i] = 1
	}
	return bn
}

func (bn *BatchNorm2D) OutputShape(in []int) ([]int, error) {
	if len(in) != 4 || in[1] != bn.channels {
		return nil, fmt.Errorf("%w: batchnorm(%d) got %v", ErrShapeMismatch, bn.channels, in)
	}
	return append([]int(nil), in...), nil
}

func (bn *BatchNorm2D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if _, err := bn.OutputShape(x.Shape); err != nil {
		return nil, err
	}
	batch, hw := x.Shape[0], x.Shape[2]*x.Shape[3]
	out := tensor.New(x.Shape...)
	for c := 0; c < bn.channels; c++ {
		scale := bn.Weight.Data[c] / math.Sqrt(bn.RunningVar.Data[c]+bn.Eps)
		shift := bn.Bias.Data[c] - bn.RunningMean.Data[c]*scale
		for b := 0; b < batch; b++ {
			base := (b*bn.channels + c) * hw
			for i := base; i < base+hw; i++ {
				out.Data[i] = x.Data[i]*scale + shift
			}
		}
	}
	return out, nil
}

func (bn *BatchNorm2D) Parameters(prefix string) []*nn.Parameter {
	return []*nn.Parameter{
		{Name: nn.JoinName(prefix, "weight"), Kind: nn.NormWeight, Value: bn.Weight},
		{Name: nn.JoinName(prefix, "bias"), Kind: nn.NormBias, Value: bn.Bias},
		{Name: nn.JoinName(prefix, "running_mean"), Kind: nn.NormRunningMean, Value: bn.RunningMean},
		{Name: nn.JoinName(prefix, "running_var"), Kind: nn.NormRunningVar, Value: bn.RunningVar},
	}
}

func (bn *BatchNorm2D) Tag() string {
	return fmt.Sprintf("BatchNorm2D_%d", bn.channels)
}
