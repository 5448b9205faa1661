package snn

import (
	"fmt"

	"snnssd/nn"
	"snnssd/nn/layers"
	"snnssd/tensor"
)

// ConvBN is a time-distributed 3x3 conv (padding 1, no bias) followed by
// batch norm and the spiking activation.
func ConvBN(in, out, stride int, act nn.Activation) (*nn.Sequential, error) {
	conv, err := layers.NewConv2D(in, out, 3, stride, 1, 1, false)
	if err != nil {
		return nil, fmt.Errorf("%w: conv_bn %d->%d: %v", ErrInvalidConfig, in, out, err)
	}
	return nn.NewSequential(
		layers.NewTimeDistributed(conv, layers.NewBatchNorm2D(out)),
		nn.NewSpiking(act),
	), nil
}

// Conv1x1BN is a time-distributed pointwise conv followed by batch norm and
// the spiking activation.
func Conv1x1BN(in, out int, act nn.Activation) (*nn.Sequential, error) {
	conv, err := layers.NewConv2D(in, out, 1, 1, 0, 1, false)
	if err != nil {
		return nil, fmt.Errorf("%w: conv_1x1_bn %d->%d: %v", ErrInvalidConfig, in, out, err)
	}
	return nn.NewSequential(
		layers.NewTimeDistributed(conv, layers.NewBatchNorm2D(out)),
		nn.NewSpiking(act),
	), nil
}

// BlockSpec describes one inverted residual block.
type BlockSpec struct {
	In, Out   int
	Stride    int
	Expansion int
}

func (s BlockSpec) Validate() error {
	if s.In <= 0 || s.Out <= 0 {
		return fmt.Errorf("%w: block channels %d->%d", ErrInvalidConfig, s.In, s.Out)
	}
	if s.Stride != 1 && s.Stride != 2 {
		return fmt.Errorf("%w: block stride %d not in {1,2}", ErrInvalidConfig, s.Stride)
	}
	if s.Expansion < 1 {
		return fmt.Errorf("%w: block expansion %d", ErrInvalidConfig, s.Expansion)
	}
	return nil
}

// Hidden is the width of the expanded representation.
func (s BlockSpec) Hidden() int { return s.In * s.Expansion }

// Shortcut reports whether the block adds its input to its output.
func (s BlockSpec) Shortcut() bool { return s.Stride == 1 && s.In == s.Out }

// InvertedResidual is the MobileNetV2 block: an optional 1x1 expansion, a
// 3x3 depthwise conv and a linear 1x1 projection, each conv followed by
// batch norm. The expansion and depthwise stages spike; the projection does
// not.
type InvertedResidual struct {
	Spec BlockSpec

	branch *nn.Sequential
	body   nn.Module
}

func NewInvertedResidual(spec BlockSpec, act nn.Activation) (*InvertedResidual, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	hidden := spec.Hidden()

	var stages []nn.Module
	if spec.Expansion != 1 {
		expand, err := layers.NewConv2D(spec.In, hidden, 1, 1, 0, 1, false)
		if err != nil {
			return nil, err
		}
		stages = append(stages,
			layers.NewTimeDistributed(expand, layers.NewBatchNorm2D(hidden)),
			nn.NewSpiking(act),
		)
	}

	dw, err := layers.NewConv2D(hidden, hidden, 3, spec.Stride, 1, hidden, false)
	if err != nil {
		return nil, err
	}
	project, err := layers.NewConv2D(hidden, spec.Out, 1, 1, 0, 1, false)
	if err != nil {
		return nil, err
	}
	stages = append(stages,
		layers.NewTimeDistributed(dw, layers.NewBatchNorm2D(hidden)),
		nn.NewSpiking(act),
		layers.NewTimeDistributed(project, layers.NewBatchNorm2D(spec.Out)),
	)

	ir := &InvertedResidual{Spec: spec, branch: nn.NewSequential(stages...)}
	if spec.Shortcut() {
		ir.body = layers.NewResidual(ir.branch)
	} else {
		ir.body = ir.branch
	}
	return ir, nil
}

func (ir *InvertedResidual) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return ir.body.Forward(x)
}

func (ir *InvertedResidual) OutputShape(in []int) ([]int, error) {
	return ir.body.OutputShape(in)
}

func (ir *InvertedResidual) Parameters(prefix string) []*nn.Parameter {
	return ir.branch.Parameters(nn.JoinName(prefix, "conv"))
}

func (ir *InvertedResidual) Tag() string {
	s := fmt.Sprintf("InvertedResidual_%d_%d_s%d_e%d", ir.Spec.In, ir.Spec.Out, ir.Spec.Stride, ir.Spec.Expansion)
	if ir.Spec.Shortcut() {
		s += "_res"
	}
	return s
}
