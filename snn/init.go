package snn

import (
	"math"

	"snnssd/nn"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// linearStd is the standard deviation of fully-connected weights.
const linearStd = 0.01

// InitWeights fills params in order from a single stream seeded by seed:
// conv weights ~ N(0, sqrt(2/(kh*kw*Cout))), linear weights ~ N(0, 0.01),
// norm scales and running variances 1, every bias and running mean 0.
func InitWeights(params []*nn.Parameter, seed uint64) {
	src := rand.NewSource(seed)
	for _, p := range params {
		data := p.Value.Data
		switch p.Kind {
		case nn.ConvWeight:
			shape := p.Value.Shape
			fanOut := shape[0] * shape[2] * shape[3]
			fill(data, distuv.Normal{Mu: 0, Sigma: math.Sqrt(2.0 / float64(fanOut)), Src: src})
		case nn.LinearWeight:
			fill(data, distuv.Normal{Mu: 0, Sigma: linearStd, Src: src})
		case nn.NormWeight, nn.NormRunningVar:
			for i := range data {
				data[i] = 1
			}
		default:
			for i := range data {
				data[i] = 0
			}
		}
	}
}

func fill(data []float64, dist distuv.Normal) {
	for i := range data {
		data[i] = dist.Rand()
	}
}
