package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Tensor is a simple n-D array backed by a flat, row-major []float64.
type Tensor struct {
	Data  []float64
	Shape []int
}

// New allocates a zero Tensor of given shape (product of dims = len(Data)).
func New(shape ...int) *Tensor {
	return &Tensor{
		Data:  make([]float64, Size(shape)),
		Shape: append([]int(nil), shape...),
	}
}

// FromData wraps a copy of data with the given shape.
func FromData(data []float64, shape ...int) (*Tensor, error) {
	if Size(shape) != len(data) {
		return nil, fmt.Errorf("data length %d does not match shape %v", len(data), shape)
	}
	return &Tensor{
		Data:  append([]float64(nil), data...),
		Shape: append([]int(nil), shape...),
	}, nil
}

// Size returns the number of elements a tensor of the given shape holds.
func Size(shape []int) int {
	total := 1
	for _, d := range shape {
		total *= d
	}
	return total
}

// Rank returns the number of axes.
func (t *Tensor) Rank() int { return len(t.Shape) }

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		Data:  append([]float64(nil), t.Data...),
		Shape: append([]int(nil), t.Shape...),
	}
}

// Reshape returns a tensor sharing t's data under a new shape.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	if Size(shape) != len(t.Data) {
		return nil, fmt.Errorf("cannot reshape %v to %v", t.Shape, shape)
	}
	return &Tensor{Data: t.Data, Shape: append([]int(nil), shape...)}, nil
}

// SameShape reports whether a and b have identical shapes.
func SameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Add returns a+b (same shape), or error if shapes differ.
func Add(a, b *Tensor) (*Tensor, error) {
	if !SameShape(a.Shape, b.Shape) {
		return nil, fmt.Errorf("shape mismatch: %v vs %v", a.Shape, b.Shape)
	}
	out := New(a.Shape...)
	for i := range a.Data {
		out.Data[i] = a.Data[i] + b.Data[i]
	}
	return out, nil
}

// SumLeading reduces the leading axis: (N, ...) -> (...).
func SumLeading(a *Tensor) (*Tensor, error) {
	if len(a.Shape) < 2 {
		return nil, fmt.Errorf("SumLeading requires rank >= 2, got %v", a.Shape)
	}
	out := New(a.Shape[1:]...)
	n := len(out.Data)
	for i := 0; i < a.Shape[0]; i++ {
		slice := a.Data[i*n : (i+1)*n]
		for j, v := range slice {
			out.Data[j] += v
		}
	}
	return out, nil
}

// Permute returns a contiguous copy of a with its axes reordered so that
// output axis i is input axis perm[i].
func Permute(a *Tensor, perm ...int) (*Tensor, error) {
	rank := len(a.Shape)
	if len(perm) != rank {
		return nil, fmt.Errorf("permutation %v does not match rank %d", perm, rank)
	}
	seen := make([]bool, rank)
	outShape := make([]int, rank)
	for i, p := range perm {
		if p < 0 || p >= rank || seen[p] {
			return nil, fmt.Errorf("invalid permutation %v", perm)
		}
		seen[p] = true
		outShape[i] = a.Shape[p]
	}

	inStrides := strides(a.Shape)
	// stride in the input for each output axis
	walk := make([]int, rank)
	for i, p := range perm {
		walk[i] = inStrides[p]
	}

	out := New(outShape...)
	idx := make([]int, rank)
	src := 0
	for o := range out.Data {
		out.Data[o] = a.Data[src]
		// advance the output multi-index, tracking the input offset
		for ax := rank - 1; ax >= 0; ax-- {
			idx[ax]++
			src += walk[ax]
			if idx[ax] < outShape[ax] {
				break
			}
			src -= walk[ax] * outShape[ax]
			idx[ax] = 0
		}
	}
	return out, nil
}

func strides(shape []int) []int {
	s := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= shape[i]
	}
	return s
}

// Matrix views a 2-D tensor as a gonum matrix sharing the same backing data.
func (t *Tensor) Matrix() (*mat.Dense, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("Matrix requires a 2-D tensor, got %v", t.Shape)
	}
	if len(t.Data) == 0 {
		return nil, fmt.Errorf("Matrix requires a non-empty tensor")
	}
	return mat.NewDense(t.Shape[0], t.Shape[1], t.Data), nil
}

// MatMul returns a×b (2-D only), or error if dims mismatch.
func MatMul(a, b *Tensor) (*Tensor, error) {
	if len(a.Shape) != 2 || len(b.Shape) != 2 {
		return nil, fmt.Errorf("MatMul requires 2-D tensors, got %v and %v", a.Shape, b.Shape)
	}
	if a.Shape[1] != b.Shape[0] {
		return nil, fmt.Errorf("inner dimensions must match: %d vs %d", a.Shape[1], b.Shape[0])
	}
	am, err := a.Matrix()
	if err != nil {
		return nil, err
	}
	bm, err := b.Matrix()
	if err != nil {
		return nil, err
	}
	out := New(a.Shape[0], b.Shape[1])
	om := mat.NewDense(a.Shape[0], b.Shape[1], out.Data)
	om.Mul(am, bm)
	return out, nil
}

// At returns the element at the given indices.
// For a 4D tensor [a, b, c, d], At(i, j, k, l) returns the element at position [i][j][k][l].
func (t *Tensor) At(indices ...int) float64 {
	return t.Data[t.offset("At", indices)]
}

// Set sets the element at the given indices to the given value.
func (t *Tensor) Set(value float64, indices ...int) {
	t.Data[t.offset("Set", indices)] = value
}

func (t *Tensor) offset(op string, indices []int) int {
	if len(indices) != len(t.Shape) {
		panic(fmt.Sprintf("%s: expected %d indices, got %d", op, len(t.Shape), len(indices)))
	}
	idx := 0
	stride := 1
	for i := len(indices) - 1; i >= 0; i-- {
		if indices[i] < 0 || indices[i] >= t.Shape[i] {
			panic(fmt.Sprintf("%s: index %d out of bounds for dimension %d (shape: %v)", op, indices[i], i, t.Shape))
		}
		idx += indices[i] * stride
		stride *= t.Shape[i]
	}
	return idx
}
