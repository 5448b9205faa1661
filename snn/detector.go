package snn

import (
	"fmt"

	"snnssd/neuron"
	"snnssd/nn"
	"snnssd/tensor"
)

// AnchorPrediction pairs the location and confidence maps of one feature
// scale.
type AnchorPrediction struct {
	Loc  *tensor.Tensor
	Conf *tensor.Tensor
}

// Detector is the spiking SSD-Lite: the backbone, a few extra 1x1 stages
// and a head over the tapped multi-scale features.
type Detector struct {
	cfg      DetectorConfig
	Backbone *Backbone
	Extras   []*nn.Sequential
	Head     *SSDLiteHead

	taps     []FeatureTap
	tapAt    map[int]bool
	schedule []int
}

func NewDetector(cfg DetectorConfig) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	act, err := neuron.New(cfg.Neuron)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return NewDetectorWithActivation(cfg, act)
}

// NewDetectorWithActivation builds the detector around a caller-supplied
// activation and verifies the channel schedule before returning.
func NewDetectorWithActivation(cfg DetectorConfig, act nn.Activation) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	backbone, err := NewBackbone(cfg.Config, act)
	if err != nil {
		return nil, err
	}
	taps, err := backbone.ResolveTaps(cfg.Taps)
	if err != nil {
		return nil, err
	}

	d := &Detector{cfg: cfg, Backbone: backbone, taps: taps, tapAt: make(map[int]bool)}
	for _, t := range taps {
		d.tapAt[t.Index] = true
	}

	in := backbone.OutChannels()
	for i := 0; i < cfg.ExtraStages; i++ {
		stage, err := Conv1x1BN(in, in*2, act)
		if err != nil {
			return nil, fmt.Errorf("extra %d: %w", i, err)
		}
		d.Extras = append(d.Extras, stage)
		in *= 2
	}

	schedule, err := d.deriveSchedule()
	if err != nil {
		return nil, err
	}
	if len(cfg.HeadChannels) > 0 {
		for i, want := range cfg.HeadChannels {
			if schedule[i] != want {
				return nil, fmt.Errorf("%w: feature %d has %d channels, head declares %d (derived %v)",
					ErrChannelSchedule, i, schedule[i], want, schedule)
			}
		}
	}
	d.schedule = schedule

	d.Head, err = NewSSDLiteHead(schedule, cfg.NumClasses, cfg.Anchors)
	if err != nil {
		return nil, err
	}
	InitWeights(d.Parameters(""), cfg.Seed)
	return d, nil
}

// deriveSchedule propagates a probe input through the backbone and extra
// stages and reads the channel count of every feature map.
func (d *Detector) deriveSchedule() ([]int, error) {
	shapes, err := d.featureShapes([]int{d.cfg.TimeSteps(), 1, InputChannels, d.cfg.InputSize, d.cfg.InputSize})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	schedule := make([]int, len(shapes))
	for i, s := range shapes {
		schedule[i] = s[2]
	}
	for i, t := range d.taps {
		if schedule[i] != t.Channels {
			return nil, fmt.Errorf("%w: tap %q registered with %d channels, produces %d",
				ErrShapeInvariant, t.Name, t.Channels, schedule[i])
		}
	}
	return schedule, nil
}

func (d *Detector) Config() DetectorConfig { return d.cfg }

func (d *Detector) Taps() []FeatureTap { return d.taps }

// Schedule is the channel count of every feature map the head consumes.
func (d *Detector) Schedule() []int { return d.schedule }

// Features runs the backbone once, collecting the tapped outputs, then
// the extra stages. The result has len(Taps)+ExtraStages entries.
func (d *Detector) Features(x *tensor.Tensor) ([]*tensor.Tensor, error) {
	var feats []*tensor.Tensor
	y, err := d.Backbone.run(x, func(i int, out *tensor.Tensor) {
		if d.tapAt[i] {
			feats = append(feats, out)
		}
	})
	if err != nil {
		return nil, err
	}
	for i, stage := range d.Extras {
		y, err = stage.Forward(y)
		if err != nil {
			return nil, fmt.Errorf("extra %d: %w", i, err)
		}
		feats = append(feats, y)
	}
	return feats, nil
}

func (d *Detector) featureShapes(in []int) ([][]int, error) {
	var shapes [][]int
	shape, err := d.Backbone.shapes(in, func(i int, s []int) {
		if d.tapAt[i] {
			shapes = append(shapes, s)
		}
	})
	if err != nil {
		return nil, err
	}
	for i, stage := range d.Extras {
		shape, err = stage.OutputShape(shape)
		if err != nil {
			return nil, fmt.Errorf("extra %d: %w", i, err)
		}
		shapes = append(shapes, shape)
	}
	return shapes, nil
}

// Forward maps a (T, B, 3, H, W) input to per-scale location and
// confidence maps, both time-major and channel-last.
func (d *Detector) Forward(x *tensor.Tensor) (locs, confs []*tensor.Tensor, err error) {
	feats, err := d.Features(x)
	if err != nil {
		return nil, nil, err
	}
	return d.Head.Forward(feats)
}

// Predict is Forward with the two lists zipped per scale.
func (d *Detector) Predict(x *tensor.Tensor) ([]AnchorPrediction, error) {
	locs, confs, err := d.Forward(x)
	if err != nil {
		return nil, err
	}
	preds := make([]AnchorPrediction, len(locs))
	for i := range locs {
		preds[i] = AnchorPrediction{Loc: locs[i], Conf: confs[i]}
	}
	return preds, nil
}

// OutputShapes returns the shapes Forward would produce for an input of
// shape in, without computing anything.
func (d *Detector) OutputShapes(in []int) (locs, confs [][]int, err error) {
	feats, err := d.featureShapes(in)
	if err != nil {
		return nil, nil, err
	}
	return d.Head.OutputShapes(feats)
}

func (d *Detector) Parameters(prefix string) []*nn.Parameter {
	params := d.Backbone.Parameters(nn.JoinName(prefix, "backbone"))
	for i, stage := range d.Extras {
		params = append(params, stage.Parameters(nn.JoinName(prefix, fmt.Sprintf("extras.%d", i)))...)
	}
	return append(params, d.Head.Parameters(nn.JoinName(prefix, "head"))...)
}

// Reinitialize redraws every weight from seed.
func (d *Detector) Reinitialize(seed uint64) {
	InitWeights(d.Parameters(""), seed)
}

func (d *Detector) Tag() string {
	return fmt.Sprintf("SpikingSSDLite%d_%s", d.cfg.InputSize, d.Head.Tag())
}
