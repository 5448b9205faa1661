package split

import (
	"io"
	"testing"

	"snnssd/core/ckkswrapper"
	"snnssd/nn/layers"
	"snnssd/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
	"golang.org/x/exp/rand"
)

const heTolerance = 1e-3

func randomLinear(in, out int, seed uint64) *layers.Linear {
	rng := rand.New(rand.NewSource(seed))
	l := layers.NewLinear(in, out)
	for i := range l.W.Data {
		l.W.Data[i] = rng.NormFloat64() * 0.1
	}
	for i := range l.B.Data {
		l.B.Data[i] = rng.Float64() - 0.5
	}
	return l
}

// spikeCounts mimics pooled spike counts: non-negative multiples of 0.25.
func spikeCounts(batch, dim int, seed uint64) *tensor.Tensor {
	rng := rand.New(rand.NewSource(seed))
	x := tensor.New(batch, dim)
	for i := range x.Data {
		x.Data[i] = float64(rng.Intn(17)) * 0.25
	}
	return x
}

func TestHeadRotations(t *testing.T) {
	assert.Equal(t, []int{1, 2, 4, -1, -2}, HeadRotations(5, 3))
	assert.Equal(t, []int{1, 2, 4, 8, 16, 32, 64}, HeadRotations(128, 1))
}

func TestEncryptedHeadMatchesPlaintext(t *testing.T) {
	const in, classes = 24, 5
	he := ckkswrapper.NewHeContext()
	kit := he.GenServerKit(HeadRotations(in, classes))
	linear := randomLinear(in, classes, 1)

	head, err := NewEncryptedHead(kit, linear)
	require.NoError(t, err)
	assert.Equal(t, in, head.InDim())
	assert.Equal(t, classes, head.Classes())

	feats := spikeCounts(2, in, 2)
	want, err := linear.Forward(feats)
	require.NoError(t, err)

	for b := 0; b < 2; b++ {
		ct, err := he.EncryptReal(feats.Data[b*in : (b+1)*in])
		require.NoError(t, err)
		out, err := head.Forward(ct)
		require.NoError(t, err)
		assert.Equal(t, 0, out.Level(), "head consumes both levels")

		got, err := he.DecryptReal(out, classes)
		require.NoError(t, err)
		assert.InDeltaSlice(t, want.Data[b*classes:(b+1)*classes], got, heTolerance)
	}
}

func TestEncryptedHeadRejectsLowLevel(t *testing.T) {
	he := ckkswrapper.NewHeContext()
	kit := he.GenServerKit(HeadRotations(4, 2))
	head, err := NewEncryptedHead(kit, randomLinear(4, 2, 3))
	require.NoError(t, err)

	pt := ckks.NewPlaintext(he.Params, 1)
	require.NoError(t, he.Encoder.Encode([]float64{1, 2, 3, 4}, pt))
	ct, err := he.Encryptor.EncryptNew(pt)
	require.NoError(t, err)
	_, err = head.Forward(ct)
	assert.Error(t, err)
}

func TestSplitSessionOverPipes(t *testing.T) {
	const in, classes = 16, 3
	he := ckkswrapper.NewHeContext()
	kit := he.GenServerKit(HeadRotations(in, classes))
	linear := randomLinear(in, classes, 4)
	head, err := NewEncryptedHead(kit, linear)
	require.NoError(t, err)

	toServer, fromClient := io.Pipe()
	toClient, fromServer := io.Pipe()
	server := NewServer(head, NewProtocol(toServer, fromServer))
	client := NewClient(he, NewProtocol(toClient, fromClient))

	done := make(chan error, 1)
	go func() { done <- server.Serve() }()

	feats := spikeCounts(3, in, 5)
	got, err := client.Infer(7, feats)
	require.NoError(t, err)
	require.NoError(t, client.Close())
	require.NoError(t, <-done)

	want, err := linear.Forward(feats)
	require.NoError(t, err)
	assert.Equal(t, []int{3, classes}, got.Shape)
	assert.InDeltaSlice(t, want.Data, got.Data, heTolerance)
	assert.Greater(t, server.Busy.Nanoseconds(), int64(0))
}

func TestSplitSessionReportsServerErrors(t *testing.T) {
	he := ckkswrapper.NewHeContext()
	kit := he.GenServerKit(HeadRotations(8, 2))
	head, err := NewEncryptedHead(kit, randomLinear(8, 2, 6))
	require.NoError(t, err)

	toServer, fromClient := io.Pipe()
	toClient, fromServer := io.Pipe()
	server := NewServer(head, NewProtocol(toServer, fromServer))
	client := NewClient(he, NewProtocol(toClient, fromClient))

	done := make(chan error, 1)
	go func() { done <- server.Serve() }()

	// Wrong feature width: the server refuses and tells the client.
	_, err = client.Infer(0, spikeCounts(1, 4, 7))
	assert.ErrorContains(t, err, "remote error")
	assert.Error(t, <-done)
}
