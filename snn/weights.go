package snn

import (
	"fmt"
	"sort"

	"snnssd/nn"
	"snnssd/tensor"
	"snnssd/utils"

	"gonum.org/v1/gonum/stat"
)

// WeightsVersion tags state dicts written by StateDict.
const WeightsVersion = "snnssd/1"

// NumParameters counts the trainable scalars of m; running statistics are
// buffers and do not count.
func NumParameters(m nn.Parameterized) int {
	return nn.CountTrainable(m.Parameters(""))
}

// StateDict snapshots every parameter and buffer of m.
func StateDict(m nn.Parameterized, model string) *utils.ModelWeights {
	w := &utils.ModelWeights{
		Version: WeightsVersion,
		Model:   model,
		Params:  make(map[string]*utils.WeightData),
	}
	for _, p := range m.Parameters("") {
		w.Params[p.Name] = utils.TensorToWeightData(p.Name, p.Value)
	}
	return w
}

// LoadStateDict copies w into m. Every tensor of m must be present with
// the same shape; extra entries in w are rejected too.
func LoadStateDict(m nn.Parameterized, w *utils.ModelWeights) error {
	if w == nil {
		return fmt.Errorf("%w: nil state dict", ErrWeights)
	}
	params := m.Parameters("")
	seen := make(map[string]bool, len(params))
	staged := make([]*tensor.Tensor, 0, len(params))
	for _, p := range params {
		wd, ok := w.Params[p.Name]
		if !ok {
			return fmt.Errorf("%w: missing %q", ErrWeights, p.Name)
		}
		if !tensor.SameShape(wd.Shape, p.Value.Shape) {
			return fmt.Errorf("%w: %q has shape %v, model wants %v", ErrWeights, p.Name, wd.Shape, p.Value.Shape)
		}
		if len(wd.Data) != len(p.Value.Data) {
			return fmt.Errorf("%w: %q has %d values for shape %v", ErrWeights, p.Name, len(wd.Data), wd.Shape)
		}
		seen[p.Name] = true
		staged = append(staged, utils.WeightDataToTensor(wd))
	}
	var extra []string
	for name := range w.Params {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return fmt.Errorf("%w: unexpected entries %v", ErrWeights, extra)
	}
	for i, p := range params {
		copy(p.Value.Data, staged[i].Data)
	}
	return nil
}

// ParamStat summarizes one parameter tensor.
type ParamStat struct {
	Name  string
	Kind  nn.ParamKind
	Count int
	Mean  float64
	Std   float64
}

// ParamStats returns the mean and standard deviation of every parameter.
func ParamStats(params []*nn.Parameter) []ParamStat {
	stats := make([]ParamStat, 0, len(params))
	for _, p := range params {
		s := ParamStat{Name: p.Name, Kind: p.Kind, Count: len(p.Value.Data)}
		if s.Count > 1 {
			s.Mean, s.Std = stat.MeanStdDev(p.Value.Data, nil)
		} else if s.Count == 1 {
			s.Mean = p.Value.Data[0]
		}
		stats = append(stats, s)
	}
	return stats
}
