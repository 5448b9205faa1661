package layers

import "errors"

var (
	// ErrConfig reports an invalid layer construction parameter.
	ErrConfig = errors.New("layers: invalid configuration")
	// ErrShapeMismatch reports an input whose shape the layer cannot accept.
	ErrShapeMismatch = errors.New("layers: shape mismatch")
)
