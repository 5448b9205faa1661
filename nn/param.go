package nn

import "snnssd/tensor"

// ParamKind tells the initializer and the serializer what a tensor is.
type ParamKind int

const (
	ConvWeight ParamKind = iota
	ConvBias
	NormWeight
	NormBias
	NormRunningMean
	NormRunningVar
	LinearWeight
	LinearBias
)

var kindNames = map[ParamKind]string{
	ConvWeight:      "conv.weight",
	ConvBias:        "conv.bias",
	NormWeight:      "norm.weight",
	NormBias:        "norm.bias",
	NormRunningMean: "norm.running_mean",
	NormRunningVar:  "norm.running_var",
	LinearWeight:    "linear.weight",
	LinearBias:      "linear.bias",
}

func (k ParamKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Trainable is false for running statistics, which are buffers.
func (k ParamKind) Trainable() bool {
	return k != NormRunningMean && k != NormRunningVar
}

// Parameter is a named tensor owned by a module.
type Parameter struct {
	Name  string
	Kind  ParamKind
	Value *tensor.Tensor
}

// JoinName joins a dotted parameter path.
func JoinName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	if name == "" {
		return prefix
	}
	return prefix + "." + name
}

// CountTrainable returns the number of trainable scalars in params.
func CountTrainable(params []*Parameter) int {
	n := 0
	for _, p := range params {
		if p.Kind.Trainable() {
			n += len(p.Value.Data)
		}
	}
	return n
}
