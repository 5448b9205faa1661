// Package ckkswrapper bundles the CKKS parameters and key material shared by
// the two ends of a split inference session.
package ckkswrapper

import (
	"fmt"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// Default parameter set: two multiplicative levels, enough for one
// plaintext-weight product followed by one slot mask.
var (
	DefaultLogN            = 13
	DefaultLogQ            = []int{55, 40, 40}
	DefaultLogP            = []int{45}
	DefaultLogDefaultScale = 40
)

// HeContext is the client side: it owns the secret key.
type HeContext struct {
	Params    ckks.Parameters
	Encoder   *ckks.Encoder
	Encryptor *rlwe.Encryptor
	Decryptor *rlwe.Decryptor

	kgen *rlwe.KeyGenerator
	sk   *rlwe.SecretKey
}

// ServerKit is everything the evaluating party needs; it holds no secret.
type ServerKit struct {
	Params    ckks.Parameters
	Encoder   *ckks.Encoder
	Evaluator *ckks.Evaluator
}

// NewHeContext builds a context with the default parameter set.
func NewHeContext() *HeContext {
	h, err := NewHeContextWithLogN(DefaultLogN)
	if err != nil {
		panic(err)
	}
	return h
}

// NewHeContextWithLogN builds a context over a ring of degree 2^logN with
// the default modulus chain.
func NewHeContextWithLogN(logN int) (*HeContext, error) {
	params, err := ckks.NewParametersFromLiteral(ckks.ParametersLiteral{
		LogN:            logN,
		LogQ:            DefaultLogQ,
		LogP:            DefaultLogP,
		LogDefaultScale: DefaultLogDefaultScale,
	})
	if err != nil {
		return nil, fmt.Errorf("ckks parameters: %w", err)
	}
	kgen := rlwe.NewKeyGenerator(params)
	sk, pk := kgen.GenKeyPairNew()
	return &HeContext{
		Params:    params,
		Encoder:   ckks.NewEncoder(params),
		Encryptor: rlwe.NewEncryptor(params, pk),
		Decryptor: rlwe.NewDecryptor(params, sk),
		kgen:      kgen,
		sk:        sk,
	}, nil
}

// GenServerKit generates a relinearization key and one Galois key per
// rotation step, and wraps them into an evaluator.
func (h *HeContext) GenServerKit(rots []int) *ServerKit {
	rlk := h.kgen.GenRelinearizationKeyNew(h.sk)
	galEls := make([]uint64, 0, len(rots))
	seen := make(map[uint64]bool, len(rots))
	for _, r := range rots {
		el := h.Params.GaloisElement(r)
		if !seen[el] {
			seen[el] = true
			galEls = append(galEls, el)
		}
	}
	evk := rlwe.NewMemEvaluationKeySet(rlk, h.kgen.GenGaloisKeysNew(galEls, h.sk)...)
	return &ServerKit{
		Params:    h.Params,
		Encoder:   ckks.NewEncoder(h.Params),
		Evaluator: ckks.NewEvaluator(h.Params, evk),
	}
}

// EncryptReal encodes values into the first slots at the top level and
// encrypts them.
func (h *HeContext) EncryptReal(values []float64) (*rlwe.Ciphertext, error) {
	if len(values) > h.Params.MaxSlots() {
		return nil, fmt.Errorf("%d values exceed %d slots", len(values), h.Params.MaxSlots())
	}
	pt := ckks.NewPlaintext(h.Params, h.Params.MaxLevel())
	if err := h.Encoder.Encode(values, pt); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return h.Encryptor.EncryptNew(pt)
}

// DecryptReal decrypts ct and returns the real part of its first n slots.
func (h *HeContext) DecryptReal(ct *rlwe.Ciphertext, n int) ([]float64, error) {
	if n > h.Params.MaxSlots() {
		return nil, fmt.Errorf("%d values exceed %d slots", n, h.Params.MaxSlots())
	}
	decoded := make([]complex128, h.Params.MaxSlots())
	if err := h.Encoder.Decode(h.Decryptor.DecryptNew(ct), decoded); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = real(decoded[i])
	}
	return out, nil
}
