package split

import (
	"fmt"

	"snnssd/core/ckkswrapper"
	"snnssd/nn/layers"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// EncryptedHead evaluates the classifier's final linear layer on one
// encrypted feature vector per sample. The weights stay in plaintext on
// the server; the input and the logits stay encrypted.
type EncryptedHead struct {
	kit    *ckkswrapper.ServerKit
	weight [][]float64 // [classes][features]
	bias   []float64
	span   int // power of two >= features
}

// HeadRotations lists the rotation steps EncryptedHead needs: the
// tree-sum steps over inDim slots and the right shifts placing each class.
func HeadRotations(inDim, classes int) []int {
	var rots []int
	for step := 1; step < nextPow2(inDim); step *= 2 {
		rots = append(rots, step)
	}
	for j := 1; j < classes; j++ {
		rots = append(rots, -j)
	}
	return rots
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p *= 2
	}
	return p
}

// NewEncryptedHead copies the weights of linear. kit must carry the
// rotation keys from HeadRotations.
func NewEncryptedHead(kit *ckkswrapper.ServerKit, linear *layers.Linear) (*EncryptedHead, error) {
	inDim, classes := linear.InDim(), linear.OutDim()
	slots := kit.Params.MaxSlots()
	if nextPow2(inDim) > slots || classes > slots {
		return nil, fmt.Errorf("head %dx%d does not fit %d slots", classes, inDim, slots)
	}
	if kit.Params.MaxLevel() < 2 {
		return nil, fmt.Errorf("head needs 2 levels, parameters have %d", kit.Params.MaxLevel())
	}
	h := &EncryptedHead{
		kit:    kit,
		weight: make([][]float64, classes),
		bias:   append([]float64(nil), linear.B.Data...),
		span:   nextPow2(inDim),
	}
	for j := range h.weight {
		h.weight[j] = append([]float64(nil), linear.W.Data[j*inDim:(j+1)*inDim]...)
	}
	return h, nil
}

func (h *EncryptedHead) InDim() int   { return len(h.weight[0]) }
func (h *EncryptedHead) Classes() int { return len(h.weight) }

func (h *EncryptedHead) encodeAt(values []float64, level int, scale *rlwe.Scale) (*rlwe.Plaintext, error) {
	pt := ckks.NewPlaintext(h.kit.Params, level)
	if scale != nil {
		pt.Scale = *scale
	}
	if err := h.kit.Encoder.Encode(values, pt); err != nil {
		return nil, fmt.Errorf("encode failed: %w", err)
	}
	return pt, nil
}

// Forward maps an encrypted feature vector (slots 0..InDim-1) to encrypted
// logits (slots 0..Classes-1). Consumes two levels.
func (h *EncryptedHead) Forward(x *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	if x.Level() < 2 {
		return nil, fmt.Errorf("ciphertext at level %d, head needs 2", x.Level())
	}
	eval := h.kit.Evaluator

	e0 := []float64{1}

	var acc *rlwe.Ciphertext
	for j, row := range h.weight {
		ptW, err := h.encodeAt(row, x.Level(), nil)
		if err != nil {
			return nil, err
		}
		dot, err := eval.MulNew(x, ptW)
		if err != nil {
			return nil, fmt.Errorf("MulNew failed: %w", err)
		}
		if err = eval.Rescale(dot, dot); err != nil {
			return nil, fmt.Errorf("Rescale failed: %w", err)
		}
		for step := 1; step < h.span; step *= 2 {
			rot, err := eval.RotateNew(dot, step)
			if err != nil {
				return nil, fmt.Errorf("RotateNew(%d) failed: %w", step, err)
			}
			if dot, err = eval.AddNew(dot, rot); err != nil {
				return nil, fmt.Errorf("AddNew failed: %w", err)
			}
		}

		// Keep only slot 0, then move it to slot j.
		mask, err := h.encodeAt(e0, dot.Level(), nil)
		if err != nil {
			return nil, err
		}
		logit, err := eval.MulNew(dot, mask)
		if err != nil {
			return nil, fmt.Errorf("MulNew failed: %w", err)
		}
		if err = eval.Rescale(logit, logit); err != nil {
			return nil, fmt.Errorf("Rescale failed: %w", err)
		}
		if j > 0 {
			if logit, err = eval.RotateNew(logit, -j); err != nil {
				return nil, fmt.Errorf("RotateNew(%d) failed: %w", -j, err)
			}
		}

		if acc == nil {
			acc = logit
		} else if acc, err = eval.AddNew(acc, logit); err != nil {
			return nil, fmt.Errorf("AddNew failed: %w", err)
		}
	}

	ptB, err := h.encodeAt(h.bias, acc.Level(), &acc.Scale)
	if err != nil {
		return nil, err
	}
	out, err := eval.AddNew(acc, ptB)
	if err != nil {
		return nil, fmt.Errorf("AddNew failed: %w", err)
	}
	return out, nil
}
