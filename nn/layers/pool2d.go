package layers

import (
	"fmt"
	"math"

	"snnssd/tensor"
)

// MaxPool2D takes the maximum over non-overlapping-by-default windows of
// (N, C, H, W) tensors. Trailing rows/columns that do not fill a window are
// dropped.
type MaxPool2D struct {
	poolSize int
	stride   int
}

func NewMaxPool2D(poolSize, stride int) *MaxPool2D {
	return &MaxPool2D{poolSize: poolSize, stride: stride}
}

func (m *MaxPool2D) OutputShape(in []int) ([]int, error) {
	if len(in) != 4 {
		return nil, fmt.Errorf("%w: maxpool expects (N,C,H,W), got %v", ErrShapeMismatch, in)
	}
	outH := (in[2]-m.poolSize)/m.stride + 1
	outW := (in[3]-m.poolSize)/m.stride + 1
	if in[2] < m.poolSize || in[3] < m.poolSize {
		return nil, fmt.Errorf("%w: maxpool window %d larger than %dx%d", ErrShapeMismatch, m.poolSize, in[2], in[3])
	}
	return []int{in[0], in[1], outH, outW}, nil
}

func (m *MaxPool2D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	shape, err := m.OutputShape(x.Shape)
	if err != nil {
		return nil, err
	}
	B, C, H, W := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	outH, outW := shape[2], shape[3]
	p := m.poolSize
	out := tensor.New(shape...)
	for b := 0; b < B; b++ {
		for c := 0; c < C; c++ {
			in := x.Data[(b*C+c)*H*W : (b*C+c+1)*H*W]
			dst := out.Data[(b*C+c)*outH*outW : (b*C+c+1)*outH*outW]
			for oh := 0; oh < outH; oh++ {
				for ow := 0; ow < outW; ow++ {
					best := math.Inf(-1)
					for ph := 0; ph < p; ph++ {
						for pw := 0; pw < p; pw++ {
							v := in[(oh*m.stride+ph)*W+ow*m.stride+pw]
							if v > best {
								best = v
							}
						}
					}
					dst[oh*outW+ow] = best
				}
			}
		}
	}
	return out, nil
}

func (m *MaxPool2D) Tag() string {
	return fmt.Sprintf("MaxPool2D_%d_s%d", m.poolSize, m.stride)
}

// GlobalMaxPool2D is an adaptive max pool to a 1x1 output:
// (N, C, H, W) -> (N, C, 1, 1).
type GlobalMaxPool2D struct{}

func NewGlobalMaxPool2D() *GlobalMaxPool2D { return &GlobalMaxPool2D{} }

func (g *GlobalMaxPool2D) OutputShape(in []int) ([]int, error) {
	if len(in) != 4 || in[2] <= 0 || in[3] <= 0 {
		return nil, fmt.Errorf("%w: global max pool expects (N,C,H,W), got %v", ErrShapeMismatch, in)
	}
	return []int{in[0], in[1], 1, 1}, nil
}

func (g *GlobalMaxPool2D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	shape, err := g.OutputShape(x.Shape)
	if err != nil {
		return nil, err
	}
	hw := x.Shape[2] * x.Shape[3]
	out := tensor.New(shape...)
	for i := range out.Data {
		plane := x.Data[i*hw : (i+1)*hw]
		best := plane[0]
		for _, v := range plane[1:] {
			if v > best {
				best = v
			}
		}
		out.Data[i] = best
	}
	return out, nil
}

func (g *GlobalMaxPool2D) Tag() string { return "GlobalMaxPool2D" }
