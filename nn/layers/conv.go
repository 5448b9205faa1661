package layers

import (
	"fmt"

	"snnssd/nn"
	"snnssd/tensor"

	"gonum.org/v1/gonum/mat"
)

// Conv2D is a 2D convolutional layer over (N, C, H, W) tensors, with
// optional channel groups (groups == channels gives a depthwise conv).
type Conv2D struct {
	inChan, outChan int // number of input/output channels
	kh, kw          int // kernel height and width
	stride, padding int
	groups          int

	// W is [outChan, inChan/groups, kh, kw]; B is [outChan] or nil.
	W *tensor.Tensor
	B *tensor.Tensor
}

// NewConv2D creates a square-kernel Conv2D layer.
func NewConv2D(inChan, outChan, kernel, stride, padding, groups int, bias bool) (*Conv2D, error) {
	if inChan <= 0 || outChan <= 0 {
		return nil, fmt.Errorf("%w: conv channels %d->%d", ErrConfig, inChan, outChan)
	}
	if kernel <= 0 || stride <= 0 || padding < 0 {
		return nil, fmt.Errorf("%w: conv kernel=%d stride=%d padding=%d", ErrConfig, kernel, stride, padding)
	}
	if groups <= 0 || inChan%groups != 0 || outChan%groups != 0 {
		return nil, fmt.Errorf("%w: groups=%d does not divide %d->%d", ErrConfig, groups, inChan, outChan)
	}
	c := &Conv2D{
		inChan:  inChan,
		outChan: outChan,
		kh:      kernel,
		kw:      kernel,
		stride:  stride,
		padding: padding,
		groups:  groups,
		W:       tensor.New(outChan, inChan/groups, kernel, kernel),
	}
	if bias {
		c.B = tensor.New(outChan)
	}
	return c, nil
}

func (c *Conv2D) InChannels() int  { return c.inChan }
func (c *Conv2D) OutChannels() int { return c.outChan }
func (c *Conv2D) Stride() int      { return c.stride }
func (c *Conv2D) Groups() int      { return c.groups }

// GetOutputShape returns the output dimensions for given input dimensions.
func (c *Conv2D) GetOutputShape(inH, inW int) (outH, outW int) {
	outH = (inH+2*c.padding-c.kh)/c.stride + 1
	outW = (inW+2*c.padding-c.kw)/c.stride + 1
	return outH, outW
}

func (c *Conv2D) OutputShape(in []int) ([]int, error) {
	if len(in) != 4 {
		return nil, fmt.Errorf("%w: conv expects (N,C,H,W), got %v", ErrShapeMismatch, in)
	}
	if in[1] != c.inChan {
		return nil, fmt.Errorf("%w: conv expects %d channels, got %d", ErrShapeMismatch, c.inChan, in[1])
	}
	outH, outW := c.GetOutputShape(in[2], in[3])
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("%w: conv input %dx%d too small for kernel %d", ErrShapeMismatch, in[2], in[3], c.kh)
	}
	return []int{in[0], c.outChan, outH, outW}, nil
}

// pointwise reports whether the input can be fed to the GEMM without im2col.
func (c *Conv2D) pointwise() bool {
	return c.kh == 1 && c.kw == 1 && c.stride == 1 && c.padding == 0
}

// Forward computes the convolution as one GEMM per (sample, group):
// W_g [coutG, cinG*kh*kw] x cols [cinG*kh*kw, outH*outW].
func (c *Conv2D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	outShape, err := c.OutputShape(x.Shape)
	if err != nil {
		return nil, err
	}
	batch, height, width := x.Shape[0], x.Shape[2], x.Shape[3]
	outH, outW := outShape[2], outShape[3]
	hw := outH * outW
	cinG := c.inChan / c.groups
	coutG := c.outChan / c.groups
	k := cinG * c.kh * c.kw

	out := tensor.New(outShape...)

	var cols []float64
	var colM *mat.Dense
	if !c.pointwise() {
		cols = make([]float64, k*hw)
		colM = mat.NewDense(k, hw, cols)
	}

	for b := 0; b < batch; b++ {
		for g := 0; g < c.groups; g++ {
			inBase := (b*c.inChan + g*cinG) * height * width
			src := x.Data[inBase : inBase+cinG*height*width]

			var rhs *mat.Dense
			if c.pointwise() {
				rhs = mat.NewDense(cinG, hw, src)
			} else {
				c.im2col(src, cinG, height, width, outH, outW, cols)
				rhs = colM
			}

			wBase := g * coutG * k
			wM := mat.NewDense(coutG, k, c.W.Data[wBase:wBase+coutG*k])

			outBase := (b*c.outChan + g*coutG) * hw
			dst := mat.NewDense(coutG, hw, out.Data[outBase:outBase+coutG*hw])
			dst.Mul(wM, rhs)
		}
	}

	if c.B != nil {
		for b := 0; b < batch; b++ {
			for oc := 0; oc < c.outChan; oc++ {
				bias := c.B.Data[oc]
				if bias == 0 {
					continue
				}
				plane := out.Data[(b*c.outChan+oc)*hw : (b*c.outChan+oc+1)*hw]
				for i := range plane {
					plane[i] += bias
				}
			}
		}
	}
	return out, nil
}

// im2col unfolds the receptive fields of one group into cols, row-major
// [cinG*kh*kw, outH*outW]; padded positions are zero.
func (c *Conv2D) im2col(src []float64, cinG, height, width, outH, outW int, cols []float64) {
	hw := outH * outW
	for ic := 0; ic < cinG; ic++ {
		plane := src[ic*height*width : (ic+1)*height*width]
		for dy := 0; dy < c.kh; dy++ {
			for dx := 0; dx < c.kw; dx++ {
				row := cols[((ic*c.kh+dy)*c.kw+dx)*hw:]
				for oy := 0; oy < outH; oy++ {
					iy := oy*c.stride - c.padding + dy
					for ox := 0; ox < outW; ox++ {
						ix := ox*c.stride - c.padding + dx
						if iy < 0 || iy >= height || ix < 0 || ix >= width {
							row[oy*outW+ox] = 0
							continue
						}
						row[oy*outW+ox] = plane[iy*width+ix]
					}
				}
			}
		}
	}
}

func (c *Conv2D) Parameters(prefix string) []*nn.Parameter {
	params := []*nn.Parameter{{Name: nn.JoinName(prefix, "weight"), Kind: nn.ConvWeight, Value: c.W}}
	if c.B != nil {
		params = append(params, &nn.Parameter{Name: nn.JoinName(prefix, "bias"), Kind: nn.ConvBias, Value: c.B})
	}
	return params
}

func (c *Conv2D) Tag() string {
	if c.groups > 1 {
		return fmt.Sprintf("Conv2D_%d_%d_k%d_s%d_g%d", c.inChan, c.outChan, c.kh, c.stride, c.groups)
	}
	return fmt.Sprintf("Conv2D_%d_%d_k%d_s%d", c.inChan, c.outChan, c.kh, c.stride)
}
