// Package snn assembles the spiking MobileNetV2 backbone, its classification
// path and the SSD-Lite detection path out of time-distributed blocks.
//
// All tensors flowing through the backbone are time-major (T, B, C, H, W).
package snn

import (
	"fmt"
	"math"

	"snnssd/neuron"
)

// InputChannels is the channel count of every model input (RGB).
const InputChannels = 3

// spatialFactor is the divisor the input size must honour.
const spatialFactor = 32

// StageSetting is one row of the stage table: every block of the stage
// expands by Expansion, outputs Channels (before width scaling), the stage
// repeats its block Repeats times and the first block uses Stride.
type StageSetting struct {
	Expansion int `json:"expansion"`
	Channels  int `json:"channels"`
	Repeats   int `json:"repeats"`
	Stride    int `json:"stride"`
}

// ReferenceStages is the stage table of the reference network.
var ReferenceStages = []StageSetting{
	{Expansion: 6, Channels: 32, Repeats: 1, Stride: 1},
	{Expansion: 6, Channels: 64, Repeats: 1, Stride: 1},
	{Expansion: 6, Channels: 128, Repeats: 1, Stride: 1},
	{Expansion: 6, Channels: 128, Repeats: 1, Stride: 1},
}

// Config holds everything needed to build a backbone and classifier.
type Config struct {
	NumClasses   int            `json:"num_classes"`
	InputSize    int            `json:"input_size"`
	WidthMult    float64        `json:"width_mult"`
	StemChannels int            `json:"stem_channels"`
	LastChannel  int            `json:"last_channel"`
	Stages       []StageSetting `json:"stages"`
	Neuron       neuron.Params  `json:"neuron"`
	Seed         uint64         `json:"seed"`
}

// DefaultConfig returns the reference classifier configuration.
func DefaultConfig() Config {
	cfg := Config{
		NumClasses:   1000,
		InputSize:    224,
		WidthMult:    1.0,
		StemChannels: 32,
		LastChannel:  128,
		Stages:       append([]StageSetting(nil), ReferenceStages...),
	}
	cfg.Neuron.Defaults()
	return cfg
}

// TimeSteps is the length T of the leading time axis the model expects.
func (c Config) TimeSteps() int { return c.Neuron.TimeSteps }

// MakeDivisible rounds x up to the nearest multiple of divisibleBy.
func MakeDivisible(x float64, divisibleBy int) int {
	return int(math.Ceil(x/float64(divisibleBy))) * divisibleBy
}

// StageChannels is the width-scaled output channel count of a stage.
// Stages that do not expand keep their nominal width.
func (c Config) StageChannels(s StageSetting) int {
	if s.Expansion > 1 {
		return MakeDivisible(float64(s.Channels)*c.WidthMult, 8)
	}
	return s.Channels
}

// ProjectedChannels is the width of the trailing 1x1 projection; it only
// grows with width multipliers above 1.
func (c Config) ProjectedChannels() int {
	if c.WidthMult > 1.0 {
		return MakeDivisible(float64(c.LastChannel)*c.WidthMult, 8)
	}
	return c.LastChannel
}

func (c Config) Validate() error {
	if c.NumClasses <= 0 {
		return fmt.Errorf("%w: num classes must be positive, got %d", ErrInvalidConfig, c.NumClasses)
	}
	if c.InputSize <= 0 || c.InputSize%spatialFactor != 0 {
		return fmt.Errorf("%w: input size %d is not a positive multiple of %d", ErrInvalidConfig, c.InputSize, spatialFactor)
	}
	if c.WidthMult <= 0 {
		return fmt.Errorf("%w: width multiplier must be positive, got %g", ErrInvalidConfig, c.WidthMult)
	}
	if c.StemChannels <= 0 || c.LastChannel <= 0 {
		return fmt.Errorf("%w: stem/last channels must be positive, got %d/%d", ErrInvalidConfig, c.StemChannels, c.LastChannel)
	}
	if len(c.Stages) == 0 {
		return fmt.Errorf("%w: no stages", ErrInvalidConfig)
	}
	for i, s := range c.Stages {
		if s.Expansion < 1 || s.Channels <= 0 || s.Repeats <= 0 {
			return fmt.Errorf("%w: stage %d has %+v", ErrInvalidConfig, i+1, s)
		}
		if s.Stride != 1 && s.Stride != 2 {
			return fmt.Errorf("%w: stage %d stride %d not in {1,2}", ErrInvalidConfig, i+1, s.Stride)
		}
	}
	if err := c.Neuron.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// DetectorConfig extends Config with the multi-scale detection wiring.
type DetectorConfig struct {
	Config

	// Taps names the backbone layers whose outputs feed the head, in
	// backbone order.
	Taps []string `json:"taps"`

	// ExtraStages is the number of 1x1 stages appended after the backbone,
	// each doubling the channel width.
	ExtraStages int `json:"extra_stages"`

	// HeadChannels declares the channel count of every feature map the head
	// consumes. Empty means "whatever the taps and extra stages produce".
	HeadChannels []int `json:"head_channels"`

	// Anchors is the number of anchors predicted per spatial cell.
	Anchors int `json:"anchors"`
}

// DefaultDetectorConfig returns the reference SSD-Lite 320 configuration.
func DefaultDetectorConfig() DetectorConfig {
	cfg := DefaultConfig()
	cfg.NumClasses = 20
	cfg.InputSize = 320
	cfg.WidthMult = 0.5
	return DetectorConfig{
		Config:       cfg,
		Taps:         []string{"stage2", "stage3_pool", "last"},
		ExtraStages:  2,
		HeadChannels: []int{32, 64, 128, 256, 512},
		Anchors:      6,
	}
}

func (c DetectorConfig) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	if len(c.Taps) == 0 {
		return fmt.Errorf("%w: detector needs at least one tap", ErrInvalidConfig)
	}
	if c.ExtraStages < 0 {
		return fmt.Errorf("%w: extra stages must not be negative, got %d", ErrInvalidConfig, c.ExtraStages)
	}
	if c.Anchors <= 0 {
		return fmt.Errorf("%w: anchors must be positive, got %d", ErrInvalidConfig, c.Anchors)
	}
	if n := len(c.HeadChannels); n != 0 && n != len(c.Taps)+c.ExtraStages {
		return fmt.Errorf("%w: %d head channels declared for %d taps + %d extra stages",
			ErrChannelSchedule, n, len(c.Taps), c.ExtraStages)
	}
	return nil
}
