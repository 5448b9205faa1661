package snn

import (
	"fmt"

	"snnssd/nn"
	"snnssd/nn/layers"
	"snnssd/tensor"
)

// channelLast moves C of a (T, B, C, H, W) tensor to the end.
var channelLast = []int{0, 1, 3, 4, 2}

// SSDLiteHead predicts box offsets and class scores for every anchor of
// every cell of every feature map, for each time step.
type SSDLiteHead struct {
	numClasses int
	anchors    int
	inChannels []int

	Loc  []*layers.TimeDistributed
	Conf []*layers.TimeDistributed
}

// NewSSDLiteHead builds one localization and one confidence conv per
// feature map with the given channel counts.
func NewSSDLiteHead(inChannels []int, numClasses, anchors int) (*SSDLiteHead, error) {
	if len(inChannels) == 0 {
		return nil, fmt.Errorf("%w: head needs at least one feature map", ErrInvalidConfig)
	}
	if numClasses <= 0 || anchors <= 0 {
		return nil, fmt.Errorf("%w: head classes=%d anchors=%d", ErrInvalidConfig, numClasses, anchors)
	}
	h := &SSDLiteHead{
		numClasses: numClasses,
		anchors:    anchors,
		inChannels: append([]int(nil), inChannels...),
	}
	for i, c := range inChannels {
		loc, err := layers.NewConv2D(c, anchors*4, 3, 1, 1, 1, true)
		if err != nil {
			return nil, fmt.Errorf("%w: loc %d: %v", ErrInvalidConfig, i, err)
		}
		conf, err := layers.NewConv2D(c, anchors*numClasses, 3, 1, 1, 1, true)
		if err != nil {
			return nil, fmt.Errorf("%w: conf %d: %v", ErrInvalidConfig, i, err)
		}
		h.Loc = append(h.Loc, layers.NewTimeDistributed(loc))
		h.Conf = append(h.Conf, layers.NewTimeDistributed(conf))
	}
	return h, nil
}

func (h *SSDLiteHead) NumClasses() int   { return h.numClasses }
func (h *SSDLiteHead) Anchors() int      { return h.anchors }
func (h *SSDLiteHead) InChannels() []int { return h.inChannels }

// Forward returns, per feature map, locations (T, B, H, W, Anchors*4) and
// confidences (T, B, H, W, Anchors*NumClasses).
func (h *SSDLiteHead) Forward(features []*tensor.Tensor) (locs, confs []*tensor.Tensor, err error) {
	if len(features) != len(h.Loc) {
		return nil, nil, fmt.Errorf("%w: head expects %d feature maps, got %d", ErrShapeInvariant, len(h.Loc), len(features))
	}
	for i, f := range features {
		loc, err := predict(h.Loc[i], f)
		if err != nil {
			return nil, nil, fmt.Errorf("loc %d: %w", i, err)
		}
		conf, err := predict(h.Conf[i], f)
		if err != nil {
			return nil, nil, fmt.Errorf("conf %d: %w", i, err)
		}
		locs = append(locs, loc)
		confs = append(confs, conf)
	}
	return locs, confs, nil
}

func predict(m nn.Module, f *tensor.Tensor) (*tensor.Tensor, error) {
	if f.Rank() != 5 {
		return nil, fmt.Errorf("%w: head feature must be (T,B,C,H,W), got %v", ErrShapeInvariant, f.Shape)
	}
	y, err := m.Forward(f)
	if err != nil {
		return nil, err
	}
	return tensor.Permute(y, channelLast...)
}

// OutputShapes is the shape-only counterpart of Forward.
func (h *SSDLiteHead) OutputShapes(features [][]int) (locs, confs [][]int, err error) {
	if len(features) != len(h.Loc) {
		return nil, nil, fmt.Errorf("%w: head expects %d feature maps, got %d", ErrShapeInvariant, len(h.Loc), len(features))
	}
	for i, f := range features {
		loc, err := h.Loc[i].OutputShape(f)
		if err != nil {
			return nil, nil, fmt.Errorf("loc %d: %w", i, err)
		}
		conf, err := h.Conf[i].OutputShape(f)
		if err != nil {
			return nil, nil, fmt.Errorf("conf %d: %w", i, err)
		}
		locs = append(locs, permuteShape(loc))
		confs = append(confs, permuteShape(conf))
	}
	return locs, confs, nil
}

func permuteShape(s []int) []int {
	out := make([]int, len(channelLast))
	for i, p := range channelLast {
		out[i] = s[p]
	}
	return out
}

func (h *SSDLiteHead) Parameters(prefix string) []*nn.Parameter {
	var params []*nn.Parameter
	for i := range h.Loc {
		params = append(params, h.Loc[i].Parameters(nn.JoinName(prefix, fmt.Sprintf("loc.%d", i)))...)
	}
	for i := range h.Conf {
		params = append(params, h.Conf[i].Parameters(nn.JoinName(prefix, fmt.Sprintf("conf.%d", i)))...)
	}
	return params
}

func (h *SSDLiteHead) Tag() string {
	return fmt.Sprintf("SSDLiteHead_%dmaps_a%d_c%d", len(h.Loc), h.anchors, h.numClasses)
}
