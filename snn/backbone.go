package snn

import (
	"fmt"

	"snnssd/nn"
	"snnssd/nn/layers"
	"snnssd/tensor"
)

// Layer is one named entry of the flattened backbone sequence.
type Layer struct {
	Name   string
	Module nn.Module
}

// FeatureTap is a backbone layer whose output is handed to the detection
// head, resolved to its position and channel count.
type FeatureTap struct {
	Name     string
	Index    int
	Channels int
}

// Backbone is the spiking MobileNetV2 feature extractor, kept as a flat
// sequence so intermediate outputs can be tapped by name.
type Backbone struct {
	cfg    Config
	layers []Layer
	index  map[string]int
	// channels[i] is the channel count produced by layers[i].
	channels []int
}

// NewBackbone builds the layer sequence for cfg, sharing act between every
// spiking stage.
func NewBackbone(cfg Config, act nn.Activation) (*Backbone, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if act == nil {
		return nil, fmt.Errorf("%w: nil activation", ErrInvalidConfig)
	}
	b := &Backbone{cfg: cfg, index: make(map[string]int)}

	stem, err := ConvBN(InputChannels, cfg.StemChannels, 1, act)
	if err != nil {
		return nil, err
	}
	if err := b.register("stem", stem, cfg.StemChannels); err != nil {
		return nil, err
	}

	in := cfg.StemChannels
	for i, s := range cfg.Stages {
		stage := i + 1
		out := cfg.StageChannels(s)
		for j := 0; j < s.Repeats; j++ {
			stride := 1
			if j == 0 {
				stride = s.Stride
			}
			block, err := NewInvertedResidual(BlockSpec{In: in, Out: out, Stride: stride, Expansion: s.Expansion}, act)
			if err != nil {
				return nil, fmt.Errorf("stage %d block %d: %w", stage, j, err)
			}
			name := fmt.Sprintf("stage%d", stage)
			if j < s.Repeats-1 {
				name = fmt.Sprintf("stage%d_block%d", stage, j)
			}
			if err := b.register(name, block, out); err != nil {
				return nil, err
			}
			in = out
		}
		pool := layers.NewTimeDistributed(layers.NewMaxPool2D(2, 2))
		if err := b.register(fmt.Sprintf("stage%d_pool", stage), pool, out); err != nil {
			return nil, err
		}
	}

	last, err := Conv1x1BN(in, cfg.ProjectedChannels(), act)
	if err != nil {
		return nil, err
	}
	if err := b.register("last", last, cfg.ProjectedChannels()); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Backbone) register(name string, m nn.Module, channels int) error {
	if _, dup := b.index[name]; dup {
		return fmt.Errorf("%w: duplicate layer name %q", ErrInvalidConfig, name)
	}
	b.index[name] = len(b.layers)
	b.layers = append(b.layers, Layer{Name: name, Module: m})
	b.channels = append(b.channels, channels)
	return nil
}

func (b *Backbone) Config() Config { return b.cfg }

// Layers returns the flattened sequence in execution order.
func (b *Backbone) Layers() []Layer { return b.layers }

// Lookup returns the position of a named layer.
func (b *Backbone) Lookup(name string) (int, bool) {
	i, ok := b.index[name]
	return i, ok
}

// OutChannels is the channel count of the final layer.
func (b *Backbone) OutChannels() int { return b.channels[len(b.channels)-1] }

// ResolveTaps maps layer names to FeatureTaps. Names must exist and appear
// in execution order.
func (b *Backbone) ResolveTaps(names []string) ([]FeatureTap, error) {
	taps := make([]FeatureTap, 0, len(names))
	prev := -1
	for _, name := range names {
		i, ok := b.index[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTap, name)
		}
		if i <= prev {
			return nil, fmt.Errorf("%w: tap %q is out of execution order", ErrInvalidConfig, name)
		}
		prev = i
		taps = append(taps, FeatureTap{Name: name, Index: i, Channels: b.channels[i]})
	}
	return taps, nil
}

// CheckInput validates a (T, B, C, H, W) model input shape.
func (b *Backbone) CheckInput(shape []int) error {
	if len(shape) != 5 {
		return fmt.Errorf("%w: expected (T,B,C,H,W), got %v", ErrInvalidInput, shape)
	}
	if shape[0] != b.cfg.TimeSteps() {
		return fmt.Errorf("%w: expected %d time steps, got %d", ErrInvalidInput, b.cfg.TimeSteps(), shape[0])
	}
	if shape[2] != InputChannels {
		return fmt.Errorf("%w: expected %d channels, got %d", ErrInvalidInput, InputChannels, shape[2])
	}
	if shape[1] <= 0 || shape[3] <= 0 || shape[4] <= 0 {
		return fmt.Errorf("%w: empty dimension in %v", ErrInvalidInput, shape)
	}
	return nil
}

// Forward runs the full sequence.
func (b *Backbone) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return b.run(x, nil)
}

func (b *Backbone) run(x *tensor.Tensor, visit func(i int, y *tensor.Tensor)) (*tensor.Tensor, error) {
	if err := b.CheckInput(x.Shape); err != nil {
		return nil, err
	}
	out := x
	var err error
	for i, l := range b.layers {
		out, err = l.Module.Forward(out)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", l.Name, err)
		}
		if visit != nil {
			visit(i, out)
		}
	}
	return out, nil
}

func (b *Backbone) OutputShape(in []int) ([]int, error) {
	return b.shapes(in, nil)
}

func (b *Backbone) shapes(in []int, visit func(i int, shape []int)) ([]int, error) {
	if err := b.CheckInput(in); err != nil {
		return nil, err
	}
	shape := in
	var err error
	for i, l := range b.layers {
		shape, err = l.Module.OutputShape(shape)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", l.Name, err)
		}
		if visit != nil {
			visit(i, shape)
		}
	}
	return shape, nil
}

// Parameters names every tensor "features.<index>...".
func (b *Backbone) Parameters(prefix string) []*nn.Parameter {
	var params []*nn.Parameter
	for i, l := range b.layers {
		if p, ok := l.Module.(nn.Parameterized); ok {
			params = append(params, p.Parameters(nn.JoinName(prefix, fmt.Sprintf("features.%d", i)))...)
		}
	}
	return params
}

func (b *Backbone) Tag() string {
	return fmt.Sprintf("SpikingMobileNetV2_w%g_T%d", b.cfg.WidthMult, b.cfg.TimeSteps())
}
