package snn

import (
	"fmt"

	"snnssd/neuron"
	"snnssd/nn"
	"snnssd/nn/layers"
	"snnssd/tensor"
)

// Classifier sums the backbone spikes over time, max-pools them to one
// value per channel and maps them to class logits.
type Classifier struct {
	Backbone *Backbone
	Pool     *layers.GlobalMaxPool2D
	Flatten  *layers.Flatten
	Head     *layers.Linear
}

// NewClassifier builds a classifier whose spiking stages use the neuron
// described by cfg.Neuron, then initializes its weights from cfg.Seed.
func NewClassifier(cfg Config) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	act, err := neuron.New(cfg.Neuron)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return NewClassifierWithActivation(cfg, act)
}

// NewClassifierWithActivation is NewClassifier with a caller-supplied
// activation shared by every spiking stage.
func NewClassifierWithActivation(cfg Config, act nn.Activation) (*Classifier, error) {
	backbone, err := NewBackbone(cfg, act)
	if err != nil {
		return nil, err
	}
	c := &Classifier{
		Backbone: backbone,
		Pool:     layers.NewGlobalMaxPool2D(),
		Flatten:  layers.NewFlatten(),
		Head:     layers.NewLinear(backbone.OutChannels(), cfg.NumClasses),
	}
	InitWeights(c.Parameters(""), cfg.Seed)
	return c, nil
}

func (c *Classifier) Config() Config { return c.Backbone.Config() }

// Features returns the pooled spike-count features (B, C) that feed the
// final linear layer.
func (c *Classifier) Features(x *tensor.Tensor) (*tensor.Tensor, error) {
	y, err := c.Backbone.Forward(x)
	if err != nil {
		return nil, err
	}
	counts, err := tensor.SumLeading(y)
	if err != nil {
		return nil, err
	}
	pooled, err := c.Pool.Forward(counts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Pool.Tag(), err)
	}
	return c.Flatten.Forward(pooled)
}

// Forward maps a (T, B, 3, H, W) input to (B, NumClasses) logits.
func (c *Classifier) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	feats, err := c.Features(x)
	if err != nil {
		return nil, err
	}
	logits, err := c.Head.Forward(feats)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Head.Tag(), err)
	}
	return logits, nil
}

func (c *Classifier) OutputShape(in []int) ([]int, error) {
	shape, err := c.Backbone.OutputShape(in)
	if err != nil {
		return nil, err
	}
	shape, err = c.Pool.OutputShape(shape[1:])
	if err != nil {
		return nil, err
	}
	shape, err = c.Flatten.OutputShape(shape)
	if err != nil {
		return nil, err
	}
	return c.Head.OutputShape(shape)
}

func (c *Classifier) Parameters(prefix string) []*nn.Parameter {
	params := c.Backbone.Parameters(prefix)
	return append(params, c.Head.Parameters(nn.JoinName(prefix, "classifier"))...)
}

// Reinitialize redraws every weight from seed.
func (c *Classifier) Reinitialize(seed uint64) {
	InitWeights(c.Parameters(""), seed)
}

func (c *Classifier) Tag() string {
	return fmt.Sprintf("SpikingMobileNetV2Classifier_%d", c.Head.OutDim())
}
