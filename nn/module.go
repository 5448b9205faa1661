package nn

import (
	"fmt"
	"strconv"

	"snnssd/tensor"
)

// Module defines a single layer/unit in the network.
type Module interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
	// OutputShape propagates an input shape through the module without
	// touching any data.
	OutputShape(in []int) ([]int, error)
	Tag() string
}

// Activation is a stateful-per-call transform over a time-major tensor
// (T, ...). Any state it integrates across T lives only for one Apply call.
type Activation interface {
	Apply(x *tensor.Tensor) (*tensor.Tensor, error)
	Tag() string
}

// Parameterized is implemented by modules that own parameters or buffers.
type Parameterized interface {
	Parameters(prefix string) []*Parameter
}

// Sequential chains multiple Modules in order.
type Sequential struct {
	Layers []Module
}

// NewSequential builds a Sequential from the given modules.
func NewSequential(layers ...Module) *Sequential {
	return &Sequential{Layers: layers}
}

// Forward applies each layer in sequence.
func (s *Sequential) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	var err error
	out := x
	for _, layer := range s.Layers {
		out, err = layer.Forward(out)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", layer.Tag(), err)
		}
	}
	return out, nil
}

// OutputShape chains OutputShape through every layer.
func (s *Sequential) OutputShape(in []int) ([]int, error) {
	var err error
	shape := in
	for _, layer := range s.Layers {
		shape, err = layer.OutputShape(shape)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", layer.Tag(), err)
		}
	}
	return shape, nil
}

// Parameters collects the parameters of every layer, prefixed by its position.
func (s *Sequential) Parameters(prefix string) []*Parameter {
	var params []*Parameter
	for i, layer := range s.Layers {
		if p, ok := layer.(Parameterized); ok {
			params = append(params, p.Parameters(JoinName(prefix, strconv.Itoa(i)))...)
		}
	}
	return params
}

func (s *Sequential) Tag() string {
	tags := "Sequential["
	for i, m := range s.Layers {
		if i > 0 {
			tags += ","
		}
		tags += m.Tag()
	}
	return tags + "]"
}

// Spiking adapts an Activation into a Module so it can sit in a Sequential.
type Spiking struct {
	Act Activation
}

func NewSpiking(act Activation) *Spiking { return &Spiking{Act: act} }

func (s *Spiking) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return s.Act.Apply(x)
}

func (s *Spiking) OutputShape(in []int) ([]int, error) {
	return append([]int(nil), in...), nil
}

func (s *Spiking) Tag() string { return s.Act.Tag() }
