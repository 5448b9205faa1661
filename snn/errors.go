package snn

import (
	"errors"

	"snnssd/nn/layers"
)

var (
	// ErrInvalidConfig is returned when a model cannot be built from its configuration.
	ErrInvalidConfig = errors.New("snn: invalid configuration")
	// ErrInvalidInput is returned by forward passes for tensors the model cannot accept.
	ErrInvalidInput = errors.New("snn: invalid input")
	// ErrUnknownTap is returned when a detector asks for a layer name the backbone never registered.
	ErrUnknownTap = errors.New("snn: unknown feature tap")
	// ErrChannelSchedule is returned when declared head channels disagree with the tapped features.
	ErrChannelSchedule = errors.New("snn: head channel schedule mismatch")
	// ErrShapeInvariant marks a structural shape violation, e.g. a residual add over unequal shapes.
	ErrShapeInvariant = layers.ErrShapeMismatch
	// ErrWeights is returned when a state dict does not fit the model.
	ErrWeights = errors.New("snn: weights do not match model")
)
